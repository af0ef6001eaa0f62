package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatcher(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RecordingsDir) == "" {
		return errors.New("paths.recordings_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ResponsesDir) == "" {
		return errors.New("paths.responses_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	return nil
}

func (c *Config) validateWatcher() error {
	switch strings.ToLower(strings.TrimSpace(c.Watcher.Strategy)) {
	case "poll", "inotify":
	default:
		return fmt.Errorf("watcher.strategy must be \"poll\" or \"inotify\", got %q", c.Watcher.Strategy)
	}
	if err := ensurePositiveMap(map[string]int{
		"watcher.poll_interval": c.Watcher.PollInterval,
		"watcher.stable_scans":  c.Watcher.StableScans,
	}); err != nil {
		return err
	}
	if len(c.Watcher.Extensions) == 0 {
		return errors.New("watcher.extensions must list at least one recording extension")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	return ensurePositiveMap(map[string]int{
		"pipeline.workers":                 c.Pipeline.Workers,
		"pipeline.queue_poll_interval":     c.Pipeline.QueuePollInterval,
		"pipeline.error_retry_interval":    c.Pipeline.ErrorRetryInterval,
		"pipeline.heartbeat_interval":      c.Pipeline.HeartbeatInterval,
		"pipeline.heartbeat_timeout":       c.Pipeline.HeartbeatTimeout,
		"pipeline.backoff_initial_seconds": c.Pipeline.BackoffInitialSeconds,
		"pipeline.backoff_max_seconds":     c.Pipeline.BackoffMaxSeconds,
		"pipeline.normalize_max_attempts":  c.Pipeline.NormalizeMaxAttempts,
		"pipeline.transcribe_max_attempts": c.Pipeline.TranscribeMaxAttempts,
		"pipeline.dispatch_max_attempts":   c.Pipeline.DispatchMaxAttempts,
		"pipeline.synthesize_max_attempts": c.Pipeline.SynthesizeMaxAttempts,
	})
}

func (c *Config) validateServices() error {
	if strings.TrimSpace(c.Transcription.URL) == "" {
		return errors.New("transcription.url must be set")
	}
	if strings.TrimSpace(c.Orchestrator.URL) == "" {
		return errors.New("orchestrator.url must be set")
	}
	if strings.TrimSpace(c.Synthesis.URL) == "" {
		return errors.New("synthesis.url must be set")
	}
	return ensurePositiveMap(map[string]int{
		"transcription.timeout_seconds": c.Transcription.TimeoutSeconds,
		"orchestrator.timeout_seconds":  c.Orchestrator.TimeoutSeconds,
		"synthesis.timeout_seconds":     c.Synthesis.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be greater than zero", key)
		}
	}
	return nil
}
