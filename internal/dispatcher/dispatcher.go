package dispatcher

import (
	"context"
	"log/slog"

	"switchboard/internal/callerid"
	"switchboard/internal/config"
	"switchboard/internal/language"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/services"
	"switchboard/internal/services/orchestrate"
	"switchboard/internal/stage"
)

// Dispatcher forwards transcripts to the orchestrator and records the answer.
// When the orchestrator refuses a question for domain reasons the configured
// fallback answer is substituted and the entry is flagged for human review,
// so every caller still receives a spoken response.
type Dispatcher struct {
	cfg    *config.Config
	client *orchestrate.Client
	logger *slog.Logger
}

// New constructs a dispatcher stage adapter.
func New(cfg *config.Config, client *orchestrate.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Prepare validates the transcript produced by the previous stage.
func (d *Dispatcher) Prepare(_ context.Context, entry *ledger.Entry) error {
	if entry.TranscriptText == "" {
		return services.Wrap(services.ErrInvalidInput, ledger.StageDispatch, "prepare", "entry has no transcript", nil)
	}
	return nil
}

// Execute asks the orchestrator for an answer to the transcribed question.
func (d *Dispatcher) Execute(ctx context.Context, entry *ledger.Entry) error {
	request := orchestrate.Request{
		TranscriptText: entry.TranscriptText,
		SourceLanguage: entry.DetectedLanguage,
		CallerContext: callerid.Context{
			Phone:    entry.CallerPhone,
			Language: entry.DetectedLanguage,
		},
	}

	logger := logging.FromContext(ctx, d.logger)
	answer, err := d.client.Ask(ctx, request)
	if err != nil {
		if services.IsUpstreamDomain(err) {
			d.applyFallback(logger, entry, err)
			return nil
		}
		return err
	}

	entry.AnswerText = answer.AnswerText
	entry.TargetLanguage = language.NormalizeOr(answer.TargetLanguage, entry.DetectedLanguage)

	logger.Info("answer dispatched",
		logging.String(logging.FieldIdentity, entry.Identity),
		logging.String("target_language", entry.TargetLanguage),
		logging.Int("answer_chars", len(entry.AnswerText)),
	)
	return nil
}

// HealthCheck reports whether the orchestrator is configured.
func (d *Dispatcher) HealthCheck(_ context.Context) stage.Health {
	if d.cfg.Orchestrator.URL == "" {
		return stage.Unhealthy("dispatcher", "orchestrator url is not configured")
	}
	return stage.Healthy("dispatcher")
}

func (d *Dispatcher) applyFallback(logger *slog.Logger, entry *ledger.Entry, cause error) {
	entry.AnswerText = d.cfg.Orchestrator.FallbackAnswer
	entry.TargetLanguage = language.NormalizeOr(d.cfg.Orchestrator.FallbackLanguage, entry.DetectedLanguage)
	entry.NeedsReview = true
	entry.ReviewReason = services.Message(cause)

	logger.Warn("orchestrator refused question, using fallback answer",
		logging.String(logging.FieldIdentity, entry.Identity),
		logging.String("review_reason", entry.ReviewReason),
		logging.String("target_language", entry.TargetLanguage),
	)
}
