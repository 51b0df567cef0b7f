// Package testsupport provides shared scaffolding for package tests: configs
// seeded with per-test temp directories, tracking store constructors with
// registered cleanup, and media file helpers.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scribed/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// The watch directory is created so monitors can start immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "media")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Watch.DebounceMS = 20
	cfg.Workers.Count = 2
	cfg.Backend.TimeoutSeconds = 10

	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatalf("mkdir watch dir: %v", err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers overrides the worker count on the test config.
func WithWorkers(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workers.Count = count
	}
}

// WithMaxRetries overrides the retry ceiling on the test config.
func WithMaxRetries(retries int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workers.MaxRetries = retries
	}
}
