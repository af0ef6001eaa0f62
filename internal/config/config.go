package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	ResponsesDir  string `toml:"responses_dir"`
	StagingDir    string `toml:"staging_dir"`
	LogDir        string `toml:"log_dir"`
}

// Watcher contains recording-discovery configuration.
type Watcher struct {
	// Strategy selects how new recordings are detected: "poll" rescans the
	// directory on an interval, "inotify" subscribes to close-write events
	// (Linux only).
	Strategy     string   `toml:"strategy"`
	PollInterval int      `toml:"poll_interval"`
	StableScans  int      `toml:"stable_scans"`
	Extensions   []string `toml:"extensions"`
}

// Pipeline contains driver timing, concurrency, and retry configuration.
type Pipeline struct {
	Workers               int `toml:"workers"`
	QueuePollInterval     int `toml:"queue_poll_interval"`
	ErrorRetryInterval    int `toml:"error_retry_interval"`
	HeartbeatInterval     int `toml:"heartbeat_interval"`
	HeartbeatTimeout      int `toml:"heartbeat_timeout"`
	BackoffInitialSeconds int `toml:"backoff_initial_seconds"`
	BackoffMaxSeconds     int `toml:"backoff_max_seconds"`

	NormalizeMaxAttempts  int `toml:"normalize_max_attempts"`
	TranscribeMaxAttempts int `toml:"transcribe_max_attempts"`
	DispatchMaxAttempts   int `toml:"dispatch_max_attempts"`
	SynthesizeMaxAttempts int `toml:"synthesize_max_attempts"`
}

// Transcription contains configuration for the speech-to-text service.
type Transcription struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Orchestrator contains configuration for the question-answering collaborator.
type Orchestrator struct {
	URL              string `toml:"url"`
	APIKey           string `toml:"api_key"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	FallbackAnswer   string `toml:"fallback_answer"`
	FallbackLanguage string `toml:"fallback_language"`
}

// Synthesis contains configuration for the text-to-speech service.
type Synthesis struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	Voice          string `toml:"voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Caller contains defaults applied when a recording carries no caller data.
type Caller struct {
	DefaultPhone    string `toml:"default_phone"`
	DefaultLanguage string `toml:"default_language"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Responses      bool   `toml:"responses"`
	Review         bool   `toml:"review"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watcher       Watcher       `toml:"watcher"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Transcription Transcription `toml:"transcription"`
	Orchestrator  Orchestrator  `toml:"orchestrator"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Caller        Caller        `toml:"caller"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "switchboard", "config.toml"), nil
}

// Load reads configuration from path (or the default location when path is
// empty), layers it over defaults, applies environment overrides, and
// normalizes directory paths. A missing file yields defaults, reported
// through the second return value.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, false, err
		}
		resolved = defaultPath
	}
	resolved = ExpandPath(resolved)

	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		cfg.applyEnvOverrides()
		cfg.normalize()
		return &cfg, false, nil
	default:
		return nil, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return &cfg, true, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	path = ExpandPath(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordingsDir, c.Paths.ResponsesDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for normalization.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// MaxAttempts returns the retry ceiling configured for a stage name.
func (c *Config) MaxAttempts(stage string) int {
	switch stage {
	case "normalize":
		return c.Pipeline.NormalizeMaxAttempts
	case "transcribe":
		return c.Pipeline.TranscribeMaxAttempts
	case "dispatch":
		return c.Pipeline.DispatchMaxAttempts
	case "synthesize":
		return c.Pipeline.SynthesizeMaxAttempts
	default:
		return 1
	}
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("SWITCHBOARD_TRANSCRIPTION_API_KEY")); v != "" {
		c.Transcription.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SWITCHBOARD_ORCHESTRATOR_API_KEY")); v != "" {
		c.Orchestrator.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SWITCHBOARD_SYNTHESIS_API_KEY")); v != "" {
		c.Synthesis.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SWITCHBOARD_NTFY_TOPIC")); v != "" {
		c.Notifications.NtfyTopic = v
	}
}

func (c *Config) normalize() {
	c.Paths.RecordingsDir = ExpandPath(c.Paths.RecordingsDir)
	c.Paths.ResponsesDir = ExpandPath(c.Paths.ResponsesDir)
	c.Paths.StagingDir = ExpandPath(c.Paths.StagingDir)
	c.Paths.LogDir = ExpandPath(c.Paths.LogDir)

	exts := make([]string, 0, len(c.Watcher.Extensions))
	for _, ext := range c.Watcher.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) > 0 {
		c.Watcher.Extensions = exts
	}
}

// ExpandPath resolves a leading ~ against the user home directory.
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
