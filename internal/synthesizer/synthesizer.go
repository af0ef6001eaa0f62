package synthesizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/services"
	"switchboard/internal/services/synthesize"
	"switchboard/internal/stage"
)

// ResponseMetadata is the sidecar document written next to each rendered
// response so the playback system can route it without opening the ledger.
type ResponseMetadata struct {
	Identity         string    `json:"identity"`
	CallerPhone      string    `json:"caller_phone"`
	TranscriptText   string    `json:"transcript_text"`
	DetectedLanguage string    `json:"detected_language"`
	AnswerText       string    `json:"answer_text"`
	TargetLanguage   string    `json:"target_language"`
	NeedsReview      bool      `json:"needs_review"`
	ReviewReason     string    `json:"review_reason,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Synthesizer renders the answer as audio and publishes it to the responses
// directory together with its metadata sidecar.
type Synthesizer struct {
	cfg    *config.Config
	client *synthesize.Client
	logger *slog.Logger
}

// New constructs a synthesizer stage adapter.
func New(cfg *config.Config, client *synthesize.Client, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "synthesizer"),
	}
}

// Prepare validates the answer produced by the previous stage.
func (s *Synthesizer) Prepare(_ context.Context, entry *ledger.Entry) error {
	if entry.AnswerText == "" {
		return services.Wrap(services.ErrInvalidInput, ledger.StageSynthesize, "prepare", "entry has no answer text", nil)
	}
	return nil
}

// Execute renders the answer audio. The response lands in the responses
// directory via rename from staging so consumers never observe a partial
// file.
func (s *Synthesizer) Execute(ctx context.Context, entry *ledger.Entry) error {
	audio, err := s.client.Speak(ctx, entry.AnswerText, entry.TargetLanguage)
	if err != nil {
		return err
	}

	responsePath := filepath.Join(s.cfg.Paths.ResponsesDir, "response_"+entry.Identity+".wav")
	if err := s.publish(responsePath, audio); err != nil {
		return services.Wrap(services.ErrTransient, ledger.StageSynthesize, "publish", "write response audio", err)
	}

	metadataPath := filepath.Join(s.cfg.Paths.ResponsesDir, entry.Identity+"_response.json")
	metadata := ResponseMetadata{
		Identity:         entry.Identity,
		CallerPhone:      entry.CallerPhone,
		TranscriptText:   entry.TranscriptText,
		DetectedLanguage: entry.DetectedLanguage,
		AnswerText:       entry.AnswerText,
		TargetLanguage:   entry.TargetLanguage,
		NeedsReview:      entry.NeedsReview,
		ReviewReason:     entry.ReviewReason,
		GeneratedAt:      time.Now().UTC(),
	}
	encoded, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, ledger.StageSynthesize, "publish", "encode response metadata", err)
	}
	if err := s.publish(metadataPath, encoded); err != nil {
		return services.Wrap(services.ErrTransient, ledger.StageSynthesize, "publish", "write response metadata", err)
	}

	entry.ResponseFile = responsePath
	logging.FromContext(ctx, s.logger).Info("response published",
		logging.String(logging.FieldIdentity, entry.Identity),
		logging.String("response_file", responsePath),
		logging.Int("audio_bytes", len(audio)),
	)
	return nil
}

// HealthCheck reports whether the synthesis service and responses directory
// are usable.
func (s *Synthesizer) HealthCheck(_ context.Context) stage.Health {
	if s.cfg.Synthesis.URL == "" {
		return stage.Unhealthy("synthesizer", "synthesis url is not configured")
	}
	if info, err := os.Stat(s.cfg.Paths.ResponsesDir); err != nil || !info.IsDir() {
		return stage.Unhealthy("synthesizer", "responses directory is not accessible")
	}
	return stage.Healthy("synthesizer")
}

// publish writes data into staging and renames it into place atomically.
func (s *Synthesizer) publish(finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(s.cfg.Paths.StagingDir, filepath.Base(finalPath)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
