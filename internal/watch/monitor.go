package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scribed/internal/config"
	"scribed/internal/logging"
	"scribed/internal/media"
	"scribed/internal/tracking"
)

// Monitor translates raw filesystem notifications into normalized Events.
//
// It filters to the supported-format allow-list, ignores transcript files
// except for their deletion, coalesces notification bursts per path within
// a debounce window, pairs rename halves, and on startup scans the watched
// tree to synthesize Created events for files the tracking store does not
// already account for. It is the sole producer on its event channel.
type Monitor struct {
	cfg      *config.Config
	store    *tracking.Store
	logger   *slog.Logger
	formats  media.FormatSet
	debounce time.Duration

	fsw    *fsnotify.Watcher
	events chan Event
	stopCh chan struct{}

	mu          sync.Mutex
	pending     map[string]*pendingFile
	transcripts map[string]*time.Timer
	renames     []*pendingRename
	closed      bool
	stopOnce    sync.Once
}

type pendingFile struct {
	timer   *time.Timer
	created bool
}

type pendingRename struct {
	oldPath     string
	fingerprint string // last tracked fingerprint, "" when untracked
	timer       *time.Timer
}

// NewMonitor constructs a monitor for the configured watch directory.
func NewMonitor(cfg *config.Config, store *tracking.Store, logger *slog.Logger) (*Monitor, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Monitor{
		cfg:         cfg,
		store:       store,
		logger:      logging.WithComponent(logger, "monitor"),
		formats:     media.NewFormatSet(cfg.Watch.Extensions),
		debounce:    time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		fsw:         fsw,
		events:      make(chan Event, 64),
		stopCh:      make(chan struct{}),
		pending:     make(map[string]*pendingFile),
		transcripts: make(map[string]*time.Timer),
	}, nil
}

// Events returns the monitor's output channel. The channel is never closed;
// consumers stop via their own context.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Start registers filesystem watches, performs the reconciliation scan, and
// launches the notification loop. A missing or unreadable watch directory
// is a fatal error.
func (m *Monitor) Start(ctx context.Context) error {
	root := m.cfg.Paths.WatchDir
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch directory %q is not a directory", root)
	}

	if err := m.addWatches(root); err != nil {
		return err
	}
	if err := m.scan(ctx, root); err != nil {
		return err
	}

	go m.run(ctx)
	m.logger.Info("monitoring started",
		logging.String("dir", root),
		logging.Bool("recursive", m.cfg.Watch.Recursive),
		logging.Duration("debounce", m.debounce),
	)
	return nil
}

// Stop halts the monitor and releases filesystem resources. Events already
// buffered remain readable; no new ones are produced.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		for _, p := range m.pending {
			p.timer.Stop()
		}
		for _, timer := range m.transcripts {
			timer.Stop()
		}
		for _, r := range m.renames {
			r.timer.Stop()
		}
		m.mu.Unlock()

		close(m.stopCh)
		if err := m.fsw.Close(); err != nil {
			m.logger.Warn("close watcher", logging.Error(err))
		}
	})
}

func (m *Monitor) addWatches(root string) error {
	if err := m.fsw.Add(root); err != nil {
		return fmt.Errorf("watch %q: %w", root, err)
	}
	if !m.cfg.Watch.Recursive {
		return nil
	}
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		if err := m.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %q: %w", path, err)
		}
		return nil
	})
}

// scan reconciles on-disk state against the tracking store, synthesizing a
// Created event for every supported file without a satisfied record. This
// recovers files added, changed, or stripped of their transcript while the
// process was down.
func (m *Monitor) scan(ctx context.Context, root string) error {
	var found, enqueued int
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && !m.cfg.Watch.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !m.formats.Supported(path) {
			return nil
		}
		found++

		fp, err := media.Stat(path)
		if err != nil {
			m.logger.Warn("scan: stat failed", logging.String("path", path), logging.Error(err))
			return nil
		}
		record, err := m.store.Get(ctx, path)
		if err != nil {
			return fmt.Errorf("scan: read record for %q: %w", path, err)
		}
		if recordSatisfied(record, fp) {
			return nil
		}
		enqueued++
		m.emit(Event{Op: OpCreated, Path: path, At: time.Now()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan watch directory: %w", err)
	}
	m.logger.Info("reconciliation scan complete",
		logging.Int("media_files", found),
		logging.Int("needing_transcription", enqueued),
	)
	return nil
}

func recordSatisfied(record *tracking.Record, fp media.Fingerprint) bool {
	if record == nil || record.Status != tracking.StatusDone {
		return false
	}
	if record.Fingerprint != fp.String() {
		return false
	}
	return fileExists(record.TranscriptPath)
}

func (m *Monitor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			m.handleRaw(event)
		case err, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", logging.Error(err))
		}
	}
}

// handleRaw classifies one raw fsnotify event. Split out from the loop so
// tests can feed synthetic notifications without a kernel watcher.
func (m *Monitor) handleRaw(event fsnotify.Event) {
	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			m.watchNewDir(path)
			return
		}
	}

	if media.IsTranscript(path) {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			m.scheduleTranscriptCheck(path)
		}
		return
	}

	if !m.formats.Supported(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if m.pairRename(path) {
			return
		}
		m.scheduleMedia(path, true)
	case event.Op&fsnotify.Write != 0:
		m.scheduleMedia(path, false)
	case event.Op&fsnotify.Remove != 0:
		m.scheduleMedia(path, false)
	case event.Op&fsnotify.Rename != 0:
		m.registerRename(path)
	}
}

func (m *Monitor) watchNewDir(path string) {
	if !m.cfg.Watch.Recursive {
		return
	}
	if err := m.fsw.Add(path); err != nil {
		m.logger.Warn("watch new directory", logging.String("path", path), logging.Error(err))
		return
	}
	m.logger.Debug("watching new directory", logging.String("path", path))
	// Files may have been moved in with the directory before the watch
	// took effect; sweep them into the debounce machinery.
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			m.watchNewDir(child)
			continue
		}
		if m.formats.Supported(child) {
			m.scheduleMedia(child, true)
		}
	}
}

func (m *Monitor) scheduleMedia(path string, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if p, ok := m.pending[path]; ok {
		p.timer.Reset(m.debounce)
		return
	}
	p := &pendingFile{created: created}
	p.timer = time.AfterFunc(m.debounce, func() { m.flushMedia(path) })
	m.pending[path] = p
}

// flushMedia emits the single logical event reflecting the final observed
// state of a path once its debounce window closes.
func (m *Monitor) flushMedia(path string) {
	m.mu.Lock()
	p, ok := m.pending[path]
	if !ok || m.closed {
		m.mu.Unlock()
		return
	}
	delete(m.pending, path)
	created := p.created
	m.mu.Unlock()

	now := time.Now()
	if !fileExists(path) {
		m.emit(Event{Op: OpRemoved, Path: path, At: now})
		return
	}
	if created {
		m.emit(Event{Op: OpCreated, Path: path, At: now})
		return
	}
	m.emit(Event{Op: OpModified, Path: path, At: now})
}

func (m *Monitor) scheduleTranscriptCheck(transcriptPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if timer, ok := m.transcripts[transcriptPath]; ok {
		timer.Reset(m.debounce)
		return
	}
	m.transcripts[transcriptPath] = time.AfterFunc(m.debounce, func() {
		m.flushTranscript(transcriptPath)
	})
}

func (m *Monitor) flushTranscript(transcriptPath string) {
	m.mu.Lock()
	if _, ok := m.transcripts[transcriptPath]; !ok || m.closed {
		m.mu.Unlock()
		return
	}
	delete(m.transcripts, transcriptPath)
	m.mu.Unlock()

	if fileExists(transcriptPath) {
		return // recreated within the window
	}
	source := m.formats.SourceForTranscript(transcriptPath)
	if source == "" {
		return // no media file for it; nothing to re-transcribe
	}
	m.emit(Event{Op: OpTranscriptRemoved, Path: source, At: time.Now()})
}

// registerRename records the disappearing half of a rename. fsnotify
// reports renames as Rename(old) then Create(new) without correlation, so
// the old path is held for one debounce window awaiting its partner.
func (m *Monitor) registerRename(oldPath string) {
	var fingerprint string
	if record, err := m.store.Get(context.Background(), oldPath); err == nil && record != nil {
		fingerprint = record.Fingerprint
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	r := &pendingRename{oldPath: oldPath, fingerprint: fingerprint}
	r.timer = time.AfterFunc(m.debounce, func() { m.expireRename(r) })
	m.renames = append(m.renames, r)
}

// expireRename degrades an unpaired rename into a removal; the file left
// the watched tree (or to an unwatched subtree).
func (m *Monitor) expireRename(r *pendingRename) {
	m.mu.Lock()
	found := false
	for i, candidate := range m.renames {
		if candidate == r {
			m.renames = append(m.renames[:i], m.renames[i+1:]...)
			found = true
			break
		}
	}
	closed := m.closed
	m.mu.Unlock()

	if !found || closed {
		return
	}
	m.emit(Event{Op: OpRemoved, Path: r.oldPath, At: time.Now()})
}

// pairRename matches a Create against a held rename half. The tracked
// fingerprint of the old path is compared against the created file; when
// fingerprints are unavailable the oldest pending rename is assumed. A
// mispairing is harmless downstream: the deduplicator verifies the
// relabeled record against the file and re-enqueues on mismatch.
func (m *Monitor) pairRename(newPath string) bool {
	fp, statErr := media.Stat(newPath)

	m.mu.Lock()
	if m.closed || len(m.renames) == 0 {
		m.mu.Unlock()
		return false
	}

	idx := -1
	if statErr == nil {
		for i, r := range m.renames {
			if r.fingerprint != "" && r.fingerprint == fp.String() {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		idx = 0
	}
	r := m.renames[idx]
	m.renames = append(m.renames[:idx], m.renames[idx+1:]...)
	r.timer.Stop()
	m.mu.Unlock()

	m.emit(Event{Op: OpRenamed, Path: newPath, OldPath: r.oldPath, At: time.Now()})
	return true
}

func (m *Monitor) emit(event Event) {
	select {
	case m.events <- event:
	case <-m.stopCh:
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
