package config

import "runtime"

const (
	defaultWatchDir       = "~/media"
	defaultStateDir       = "~/.local/share/scribed"
	defaultLogDir         = "~/.local/share/scribed/logs"
	defaultDebounceMS     = 500
	defaultQueueCapacity  = 64
	defaultFullPolicy     = "block"
	defaultMaxRetries     = 3
	defaultBackendCommand = "uvx"
	defaultBackendModel   = "tiny"
	defaultBackendLang    = "en"
	defaultBeamSize       = 1
	defaultBackendTimeout = 1800
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	maxDefaultWorkers     = 4
)

func defaultWorkerCount() int {
	count := runtime.NumCPU()
	if count > maxDefaultWorkers {
		count = maxDefaultWorkers
	}
	if count < 1 {
		count = 1
	}
	return count
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir: defaultWatchDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Watch: Watch{
			Recursive:  true,
			DebounceMS: defaultDebounceMS,
			Extensions: []string{"mp3", "wav", "mp4", "mkv", "mov", "flv", "aac", "m4a"},
		},
		Queue: Queue{
			Capacity:   defaultQueueCapacity,
			FullPolicy: defaultFullPolicy,
		},
		Workers: Workers{
			Count:      defaultWorkerCount(),
			MaxRetries: defaultMaxRetries,
		},
		Backend: Backend{
			Command:        defaultBackendCommand,
			Model:          defaultBackendModel,
			Language:       defaultBackendLang,
			BeamSize:       defaultBeamSize,
			TimeoutSeconds: defaultBackendTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
