package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribed/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if path == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Queue.Capacity != 64 {
		t.Fatalf("unexpected default queue capacity %d", cfg.Queue.Capacity)
	}
	if cfg.Workers.Count < 1 {
		t.Fatalf("worker count %d below minimum", cfg.Workers.Count)
	}
	if !cfg.Watch.Recursive {
		t.Fatal("expected recursive watch by default")
	}
	if len(cfg.Watch.Extensions) == 0 {
		t.Fatal("expected default extensions")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
watch_dir = "` + filepath.Join(dir, "media") + `"
state_dir = "` + filepath.Join(dir, "state") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[watch]
debounce_ms = 250
extensions = [".MP3", "wav", "wav", ""]

[queue]
full_policy = "REJECT"

[workers]
count = 2
max_retries = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Watch.DebounceMS != 250 {
		t.Fatalf("debounce_ms = %d", cfg.Watch.DebounceMS)
	}
	if len(cfg.Watch.Extensions) != 2 || cfg.Watch.Extensions[0] != "mp3" || cfg.Watch.Extensions[1] != "wav" {
		t.Fatalf("extensions not normalized: %v", cfg.Watch.Extensions)
	}
	if cfg.Queue.FullPolicy != "reject" {
		t.Fatalf("full_policy = %q", cfg.Queue.FullPolicy)
	}
	if cfg.Workers.MaxRetries != 5 {
		t.Fatalf("max_retries = %d", cfg.Workers.MaxRetries)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "bad full policy",
			body:    "[queue]\nfull_policy = \"drop-oldest\"\n",
			wantErr: "queue.full_policy",
		},
		{
			name:    "bad log format",
			body:    "[logging]\nformat = \"xml\"\n",
			wantErr: "logging.format",
		},
		{
			name:    "empty extensions",
			body:    "[watch]\nextensions = [\"\", \" \"]\n",
			wantErr: "watch.extensions",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config did not load cleanly: exists=%v err=%v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(dir, "media")
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", d, err)
		}
	}
	// The watch dir is the operator's responsibility.
	if _, err := os.Stat(cfg.Paths.WatchDir); !os.IsNotExist(err) {
		t.Fatalf("watch dir should not be created, stat err = %v", err)
	}
}
