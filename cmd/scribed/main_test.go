package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribed/internal/config"
	"scribed/internal/testsupport"
	"scribed/internal/tracking"
)

type cliEnv struct {
	configPath string
	cfg        *config.Config
}

func setupCLIEnv(t *testing.T) cliEnv {
	t.Helper()

	base := t.TempDir()
	watchDir := filepath.Join(base, "media")
	stateDir := filepath.Join(base, "state")
	logDir := filepath.Join(base, "logs")
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		t.Fatalf("mkdir watch dir: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
watch_dir = %q
state_dir = %q
log_dir = %q
`, watchDir, stateDir, logDir)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cliEnv{configPath: configPath, cfg: cfg}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	full := args
	if configPath != "" {
		full = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(full)

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output missing %q:\n%s", want, output)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init without --overwrite refuses to clobber.
	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected error for existing config")
	}
	if _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowCommand(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "watch_dir")
	requireContains(t, out, "[backend]")
}

func TestStatusCommandEmptyStore(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Integrity: yes")
	requireContains(t, out, "No tracked files")
}

func TestQueueListAndRetryCommands(t *testing.T) {
	env := setupCLIEnv(t)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	failedPath := filepath.Join(env.cfg.Paths.WatchDir, "bad.mp4")
	testsupport.PutRecord(t, store, &tracking.Record{
		Path:         failedPath,
		Fingerprint:  "10:10",
		Status:       tracking.StatusFailed,
		FailureCount: 3,
		ErrorMessage: "decode error",
	})
	store.Close()

	out, err := runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, failedPath)
	requireContains(t, out, "decode error")

	out, err = runCLI(t, env.configPath, "queue", "list", "--status", "done")
	if err != nil {
		t.Fatalf("queue list --status done: %v", err)
	}
	requireContains(t, out, "No tracked files")

	out, err = runCLI(t, env.configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Reset 1 failed files")

	out, err = runCLI(t, env.configPath, "queue", "list", "--status", "pending")
	if err != nil {
		t.Fatalf("queue list --status pending: %v", err)
	}
	requireContains(t, out, failedPath)
}

func TestQueueClearCommand(t *testing.T) {
	env := setupCLIEnv(t)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.PutRecord(t, store, &tracking.Record{
		Path:        filepath.Join(env.cfg.Paths.WatchDir, "done.mp4"),
		Fingerprint: "10:10",
		Status:      tracking.StatusDone,
	})
	testsupport.PutRecord(t, store, &tracking.Record{
		Path:        filepath.Join(env.cfg.Paths.WatchDir, "pending.mp4"),
		Fingerprint: "20:20",
		Status:      tracking.StatusPending,
	})
	store.Close()

	if _, err := runCLI(t, env.configPath, "queue", "clear"); err == nil {
		t.Fatal("clear without a selector must fail")
	}

	out, err := runCLI(t, env.configPath, "queue", "clear", "--done")
	if err != nil {
		t.Fatalf("queue clear --done: %v", err)
	}
	requireContains(t, out, "Removed 1 records")

	out, err = runCLI(t, env.configPath, "queue", "clear", "--all")
	if err != nil {
		t.Fatalf("queue clear --all: %v", err)
	}
	requireContains(t, out, "Removed 1 records")
}

func TestUnknownStatusFilterRejected(t *testing.T) {
	env := setupCLIEnv(t)

	if _, err := runCLI(t, env.configPath, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
