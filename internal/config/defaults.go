package config

const (
	defaultRecordingsDir   = "~/.local/share/switchboard/recordings"
	defaultResponsesDir    = "~/.local/share/switchboard/responses"
	defaultStagingDir      = "~/.local/share/switchboard/staging"
	defaultLogDir          = "~/.local/share/switchboard/logs"
	defaultWatcherStrategy = "poll"
	defaultPollInterval    = 2
	defaultStableScans     = 2
	defaultWorkers         = 2
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultFallbackAnswer  = "We could not answer your question right now. An advisor will call you back."
	defaultCallerLanguage  = "hi"
	defaultVoice           = "default"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			ResponsesDir:  defaultResponsesDir,
			StagingDir:    defaultStagingDir,
			LogDir:        defaultLogDir,
		},
		Watcher: Watcher{
			Strategy:     defaultWatcherStrategy,
			PollInterval: defaultPollInterval,
			StableScans:  defaultStableScans,
			Extensions:   []string{".wav", ".mp3", ".ogg", ".gsm"},
		},
		Pipeline: Pipeline{
			Workers:               defaultWorkers,
			QueuePollInterval:     5,
			ErrorRetryInterval:    10,
			HeartbeatInterval:     15,
			HeartbeatTimeout:      120,
			BackoffInitialSeconds: 1,
			BackoffMaxSeconds:     60,
			NormalizeMaxAttempts:  2,
			TranscribeMaxAttempts: 3,
			DispatchMaxAttempts:   3,
			SynthesizeMaxAttempts: 3,
		},
		Transcription: Transcription{
			TimeoutSeconds: 120,
		},
		Orchestrator: Orchestrator{
			TimeoutSeconds:   120,
			FallbackAnswer:   defaultFallbackAnswer,
			FallbackLanguage: defaultCallerLanguage,
		},
		Synthesis: Synthesis{
			Voice:          defaultVoice,
			TimeoutSeconds: 120,
		},
		Caller: Caller{
			DefaultLanguage: defaultCallerLanguage,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Responses:      true,
			Review:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
