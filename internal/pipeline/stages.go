package pipeline

import (
	"log/slog"

	"switchboard/internal/config"
	"switchboard/internal/dispatcher"
	"switchboard/internal/ledger"
	"switchboard/internal/normalizer"
	"switchboard/internal/services/orchestrate"
	"switchboard/internal/services/synthesize"
	"switchboard/internal/services/transcribe"
	"switchboard/internal/stage"
	"switchboard/internal/synthesizer"
	"switchboard/internal/transcriber"
)

// StageDef binds a stage adapter to its slice of the entry lifecycle. The
// driver claims entries at Start, holds them at Processing while the handler
// runs, and lands them at Done.
type StageDef struct {
	Name        string
	Start       ledger.Status
	Processing  ledger.Status
	Done        ledger.Status
	Handler     stage.Handler
	MaxAttempts int
}

// BuildStages wires the standard four-stage pipeline from configuration.
func BuildStages(cfg *config.Config, logger *slog.Logger) []StageDef {
	return []StageDef{
		{
			Name:        ledger.StageNormalize,
			Start:       ledger.StatusDiscovered,
			Processing:  ledger.StatusNormalizing,
			Done:        ledger.StatusNormalized,
			Handler:     normalizer.New(cfg, logger),
			MaxAttempts: cfg.MaxAttempts(ledger.StageNormalize),
		},
		{
			Name:        ledger.StageTranscribe,
			Start:       ledger.StatusNormalized,
			Processing:  ledger.StatusTranscribing,
			Done:        ledger.StatusTranscribed,
			Handler:     transcriber.New(cfg, transcribe.NewClient(cfg.Transcription, logger), logger),
			MaxAttempts: cfg.MaxAttempts(ledger.StageTranscribe),
		},
		{
			Name:        ledger.StageDispatch,
			Start:       ledger.StatusTranscribed,
			Processing:  ledger.StatusDispatching,
			Done:        ledger.StatusDispatched,
			Handler:     dispatcher.New(cfg, orchestrate.NewClient(cfg.Orchestrator, logger), logger),
			MaxAttempts: cfg.MaxAttempts(ledger.StageDispatch),
		},
		{
			Name:        ledger.StageSynthesize,
			Start:       ledger.StatusDispatched,
			Processing:  ledger.StatusSynthesizing,
			Done:        ledger.StatusCompleted,
			Handler:     synthesizer.New(cfg, synthesize.NewClient(cfg.Synthesis, logger), logger),
			MaxAttempts: cfg.MaxAttempts(ledger.StageSynthesize),
		},
	}
}
