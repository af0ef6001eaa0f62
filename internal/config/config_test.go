package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"switchboard/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, found, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Fatal("expected found=false for missing file")
	}
	if cfg.Watcher.Strategy != "poll" {
		t.Fatalf("expected default watcher strategy, got %q", cfg.Watcher.Strategy)
	}
	if cfg.Caller.DefaultLanguage != "hi" {
		t.Fatalf("expected default caller language hi, got %q", cfg.Caller.DefaultLanguage)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
recordings_dir = "/srv/calls/in"

[pipeline]
workers = 4

[watcher]
extensions = ["WAV", ".Mp3"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, found, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if cfg.Paths.RecordingsDir != "/srv/calls/in" {
		t.Fatalf("expected overridden recordings dir, got %q", cfg.Paths.RecordingsDir)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.QueuePollInterval != 5 {
		t.Fatalf("expected default poll interval, got %d", cfg.Pipeline.QueuePollInterval)
	}
	// Extensions are normalized to lowercase dotted form.
	if len(cfg.Watcher.Extensions) != 2 || cfg.Watcher.Extensions[0] != ".wav" || cfg.Watcher.Extensions[1] != ".mp3" {
		t.Fatalf("unexpected extensions: %v", cfg.Watcher.Extensions)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_TRANSCRIPTION_API_KEY", "from-env")
	t.Setenv("SWITCHBOARD_NTFY_TOPIC", "https://ntfy.example/switchboard")

	cfg, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transcription.APIKey != "from-env" {
		t.Fatalf("expected env API key, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/switchboard" {
		t.Fatalf("expected env ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		keyword string
	}{
		{"missing recordings dir", func(c *config.Config) { c.Paths.RecordingsDir = "" }, "recordings_dir"},
		{"bad watcher strategy", func(c *config.Config) { c.Watcher.Strategy = "magic" }, "strategy"},
		{"zero workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "workers"},
		{"no extensions", func(c *config.Config) { c.Watcher.Extensions = nil }, "extensions"},
		{"zero retry ceiling", func(c *config.Config) { c.Pipeline.TranscribeMaxAttempts = 0 }, "transcribe_max_attempts"},
		{"missing transcription url", func(c *config.Config) { c.Transcription.URL = "" }, "transcription.url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Transcription.URL = "http://localhost:9000"
			cfg.Orchestrator.URL = "http://localhost:9001"
			cfg.Synthesis.URL = "http://localhost:9002"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.keyword) {
				t.Fatalf("expected error mentioning %q, got %v", tc.keyword, err)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}

	// The generated sample must itself parse.
	if _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}
