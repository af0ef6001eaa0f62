package testsupport

import (
	"path/filepath"
	"testing"

	"switchboard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, applies any provided options, and creates the
// directories so stages can write artifacts immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfg.Paths.ResponsesDir = filepath.Join(base, "responses")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Transcription.URL = "http://127.0.0.1:0/transcribe"
	cfg.Orchestrator.URL = "http://127.0.0.1:0/ask"
	cfg.Synthesis.URL = "http://127.0.0.1:0/speak"
	cfg.Watcher.PollInterval = 1
	cfg.Watcher.StableScans = 1
	cfg.Pipeline.QueuePollInterval = 1
	cfg.Pipeline.ErrorRetryInterval = 1
	cfg.Pipeline.BackoffInitialSeconds = 0
	cfg.Pipeline.BackoffMaxSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithStableScans overrides how many consecutive unchanged scans mark a
// recording complete.
func WithStableScans(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Watcher.StableScans = n
	}
}

// WithMaxAttempts sets the retry ceiling for every stage.
func WithMaxAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.NormalizeMaxAttempts = n
		cfg.Pipeline.TranscribeMaxAttempts = n
		cfg.Pipeline.DispatchMaxAttempts = n
		cfg.Pipeline.SynthesizeMaxAttempts = n
	}
}
