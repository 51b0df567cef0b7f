package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribed/internal/logging"
	"scribed/internal/media"
	"scribed/internal/testsupport"
	"scribed/internal/tracking"
	"scribed/internal/transcriber"
)

// countingBackend records invocations per media path.
type countingBackend struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCountingBackend() *countingBackend {
	return &countingBackend{calls: make(map[string]int)}
}

func (b *countingBackend) Transcribe(ctx context.Context, path string) (string, error) {
	b.mu.Lock()
	b.calls[path]++
	b.mu.Unlock()
	return "transcript of " + filepath.Base(path) + "\n", nil
}

func (b *countingBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *countingBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sum := 0
	for _, n := range b.calls {
		sum += n
	}
	return sum
}

func startDaemon(t *testing.T, backend transcriber.Backend) (*Daemon, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(2))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, err := New(cfg, logging.NewNop(), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return d, cfg.Paths.WatchDir
}

func waitForDone(t *testing.T, d *Daemon, path string) *tracking.Record {
	t.Helper()

	var record *tracking.Record
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		var err error
		record, err = d.store.Get(context.Background(), path)
		if err != nil || record == nil || record.Status != tracking.StatusDone {
			return false
		}
		_, statErr := os.Stat(record.TranscriptPath)
		return statErr == nil
	})
	return record
}

func TestDaemonEndToEnd(t *testing.T) {
	backend := newCountingBackend()
	d, dir := startDaemon(t, backend)

	// Two files arriving together both reach done.
	aPath := filepath.Join(dir, "a.mp4")
	bPath := filepath.Join(dir, "b.mp4")
	testsupport.WriteFile(t, aPath, "audio a")
	testsupport.WriteFile(t, bPath, "audio b")

	waitForDone(t, d, aPath)
	bRecord := waitForDone(t, d, bPath)
	if backend.count(aPath) != 1 || backend.count(bPath) != 1 {
		t.Fatalf("each file transcribed once, got a=%d b=%d", backend.count(aPath), backend.count(bPath))
	}

	// Deleting a transcript triggers exactly one re-transcription.
	if err := os.Remove(media.TranscriptPath(aPath)); err != nil {
		t.Fatalf("remove transcript: %v", err)
	}
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		return backend.count(aPath) == 2
	})
	waitForDone(t, d, aPath)

	// Renaming a done file relabels without invoking the backend.
	cPath := filepath.Join(dir, "c.mp4")
	if err := os.Rename(bPath, cPath); err != nil {
		t.Fatalf("rename: %v", err)
	}
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		record, err := d.store.Get(context.Background(), cPath)
		return err == nil && record != nil && record.Status == tracking.StatusDone
	})

	record, err := d.store.Get(context.Background(), cPath)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Fingerprint != bRecord.Fingerprint {
		t.Fatal("rename must preserve the fingerprint")
	}
	if record.TranscriptPath != media.TranscriptPath(cPath) {
		t.Fatalf("transcript path not rewritten: %q", record.TranscriptPath)
	}
	if _, err := os.Stat(media.TranscriptPath(cPath)); err != nil {
		t.Fatalf("transcript should follow the rename: %v", err)
	}
	if old, _ := d.store.Get(context.Background(), bPath); old != nil {
		t.Fatal("old identity should be gone")
	}
	if backend.count(bPath)+backend.count(cPath) != 1 {
		t.Fatalf("rename must not re-transcribe, got b=%d c=%d", backend.count(bPath), backend.count(cPath))
	}

	// Allow any stray debounce timers to settle, then confirm no extra work.
	time.Sleep(150 * time.Millisecond)
	if got := backend.total(); got != 3 {
		t.Fatalf("backend invoked %d times in total, want 3", got)
	}
}

func TestDaemonStopDrainsInFlightWork(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var ctxErr error
	var once sync.Once
	backend := transcriber.Func(func(ctx context.Context, path string) (string, error) {
		once.Do(func() { close(started) })
		<-release
		ctxErr = ctx.Err()
		return "slow transcript\n", nil
	})
	d, dir := startDaemon(t, backend)

	path := filepath.Join(dir, "slow.mp4")
	testsupport.WriteFile(t, path, "audio")
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the backend was still running")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the backend finished")
	}

	if ctxErr != nil {
		t.Fatalf("shutdown cancelled the in-flight backend call: %v", ctxErr)
	}
	record, err := d.store.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record == nil || record.Status != tracking.StatusDone {
		t.Fatalf("drained job should settle as done, got %+v", record)
	}
	if _, err := os.Stat(media.TranscriptPath(path)); err != nil {
		t.Fatalf("transcript missing after drain: %v", err)
	}
}

func TestDaemonIgnoresUnsupportedFiles(t *testing.T) {
	backend := newCountingBackend()
	d, dir := startDaemon(t, backend)

	testsupport.WriteFile(t, filepath.Join(dir, "readme.pdf"), "not media")
	time.Sleep(200 * time.Millisecond)

	if got := backend.total(); got != 0 {
		t.Fatalf("unsupported file reached the backend %d times", got)
	}
	status, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Records) != 0 {
		t.Fatalf("unsupported file entered the model: %+v", status.Records)
	}
}

func TestDaemonReconcilesOnStartup(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(2))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	// The file arrived while no daemon was running.
	path := filepath.Join(cfg.Paths.WatchDir, "offline.mp3")
	testsupport.WriteFile(t, path, "added while down")

	backend := newCountingBackend()
	d, err := New(cfg, logging.NewNop(), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	waitForDone(t, d, path)
	if backend.count(path) != 1 {
		t.Fatalf("offline file transcribed %d times, want 1", backend.count(path))
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	backend := newCountingBackend()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	first, err := New(cfg, logging.NewNop(), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { first.Close() })

	second, err := New(cfg, logging.NewNop(), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance must not start")
	}
}

func TestDaemonStartFailsWithoutWatchDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.RemoveAll(cfg.Paths.WatchDir); err != nil {
		t.Fatalf("remove watch dir: %v", err)
	}

	d, err := New(cfg, logging.NewNop(), newCountingBackend())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected startup failure for missing watch directory")
	}
}
