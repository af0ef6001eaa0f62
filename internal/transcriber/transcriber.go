package transcriber

import (
	"context"
	"log/slog"
	"os"

	"switchboard/internal/config"
	"switchboard/internal/language"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/services"
	"switchboard/internal/services/transcribe"
	"switchboard/internal/stage"
)

// Transcriber sends normalized audio to the speech-to-text service and
// stores the transcript on the entry.
type Transcriber struct {
	cfg    *config.Config
	client *transcribe.Client
	logger *slog.Logger
}

// New constructs a transcriber stage adapter.
func New(cfg *config.Config, client *transcribe.Client, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "transcriber"),
	}
}

// Prepare checks the normalized artifact from the previous stage survives.
func (t *Transcriber) Prepare(_ context.Context, entry *ledger.Entry) error {
	if entry.NormalizedFile == "" {
		return services.Wrap(services.ErrInvalidInput, ledger.StageTranscribe, "prepare", "entry has no normalized audio", nil)
	}
	if _, err := os.Stat(entry.NormalizedFile); err != nil {
		return services.Wrap(services.ErrInvalidInput, ledger.StageTranscribe, "prepare", "normalized audio missing: "+entry.NormalizedFile, err)
	}
	return nil
}

// Execute transcribes the normalized audio. The detected language is kept on
// the entry so the orchestrator can answer in the caller's own language.
func (t *Transcriber) Execute(ctx context.Context, entry *ledger.Entry) error {
	result, err := t.client.Transcribe(ctx, entry.NormalizedFile)
	if err != nil {
		return err
	}

	entry.TranscriptText = result.Text
	entry.DetectedLanguage = language.NormalizeOr(result.DetectedLanguage, t.cfg.Caller.DefaultLanguage)
	entry.Confidence = result.Confidence

	logging.FromContext(ctx, t.logger).Info("recording transcribed",
		logging.String(logging.FieldIdentity, entry.Identity),
		logging.String("detected_language", entry.DetectedLanguage),
		logging.Float64("confidence", entry.Confidence),
		logging.Int("transcript_chars", len(entry.TranscriptText)),
	)
	return nil
}

// HealthCheck reports whether the transcription service is configured.
func (t *Transcriber) HealthCheck(_ context.Context) stage.Health {
	if t.cfg.Transcription.URL == "" {
		return stage.Unhealthy("transcriber", "transcription url is not configured")
	}
	return stage.Healthy("transcriber")
}
