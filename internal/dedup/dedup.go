package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"scribed/internal/jobs"
	"scribed/internal/logging"
	"scribed/internal/media"
	"scribed/internal/tracking"
	"scribed/internal/watch"
)

// Deduplicator consumes monitor events, consults the tracking store, and
// applies the resulting decision: persisting record transitions, enqueueing
// jobs, cancelling queued work, and relabeling records across renames. It
// runs as a single goroutine, so record reads and writes for one event are
// never interleaved with another event's.
type Deduplicator struct {
	store      *tracking.Store
	queue      *jobs.Queue
	maxRetries int
	logger     *slog.Logger
}

// New constructs a deduplicator over the store and queue.
func New(store *tracking.Store, queue *jobs.Queue, maxRetries int, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		store:      store,
		queue:      queue,
		maxRetries: maxRetries,
		logger:     logging.WithComponent(logger, "dedup"),
	}
}

// Run consumes events until the context is cancelled. A failed event is
// logged and dropped rather than stopping the consumer; the startup scan
// recovers anything lost this way.
func (d *Deduplicator) Run(ctx context.Context, events <-chan watch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if err := d.Handle(ctx, event); err != nil {
				if errors.Is(err, jobs.ErrClosed) {
					return
				}
				d.logger.Error("event handling failed",
					logging.String("op", event.Op.String()),
					logging.String("path", event.Path),
					logging.Error(err),
				)
			}
		}
	}
}

// Handle resolves and applies a single event.
func (d *Deduplicator) Handle(ctx context.Context, event watch.Event) error {
	record, err := d.store.Get(ctx, recordKey(event))
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}

	decision := Decide(event, record, d.probe(event), d.maxRetries)
	d.logger.Debug("decision",
		logging.String("op", event.Op.String()),
		logging.String("path", event.Path),
		logging.String("action", decision.Action.String()),
		logging.String("reason", decision.Reason),
	)

	switch decision.Action {
	case ActionEnqueue:
		return d.applyEnqueue(ctx, event.Path, decision.Fingerprint, record)
	case ActionCancel:
		return d.applyCancel(ctx, event.Path, record, decision)
	case ActionRelabel:
		return d.applyRelabel(ctx, event, record, decision)
	default:
		return nil
	}
}

// recordKey is the identity a decision's record is read under. Renames are
// keyed by the old path, everything else by the media path itself.
func recordKey(event watch.Event) string {
	if event.Op == watch.OpRenamed {
		return event.OldPath
	}
	return event.Path
}

func (d *Deduplicator) probe(event watch.Event) Probe {
	p := Probe{JobQueued: d.queue.Has(event.Path)}
	if fp, err := media.Stat(event.Path); err == nil {
		p.Fingerprint = fp.String()
	}
	p.TranscriptExists = fileExists(media.TranscriptPath(event.Path))
	if event.Op == watch.OpRenamed {
		p.OldTranscriptExists = fileExists(media.TranscriptPath(event.OldPath))
	}
	return p
}

// applyEnqueue persists the pending record before the job enters the
// queue, so a crash or full-queue rejection leaves a pending record the
// startup scan will restore.
func (d *Deduplicator) applyEnqueue(ctx context.Context, path, fingerprint string, record *tracking.Record) error {
	next := &tracking.Record{
		Path:           path,
		Fingerprint:    fingerprint,
		Status:         tracking.StatusPending,
		TranscriptPath: media.TranscriptPath(path),
	}
	if record != nil {
		next.CreatedAt = record.CreatedAt
	}
	if err := d.store.Put(ctx, next); err != nil {
		return fmt.Errorf("persist pending record: %w", err)
	}
	if err := d.queue.Enqueue(jobs.New(path, fingerprint)); err != nil {
		if errors.Is(err, jobs.ErrFull) {
			d.logger.Warn("queue full, job rejected", logging.String("path", path))
			return nil
		}
		return err
	}
	return nil
}

func (d *Deduplicator) applyCancel(ctx context.Context, path string, record *tracking.Record, decision Decision) error {
	d.queue.Cancel(path)
	if record == nil || !decision.RemoveRecord {
		return nil
	}
	if _, err := d.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("collect record: %w", err)
	}
	return nil
}

func (d *Deduplicator) applyRelabel(ctx context.Context, event watch.Event, record *tracking.Record, decision Decision) error {
	d.queue.Cancel(event.OldPath)

	newTranscript := media.TranscriptPath(event.Path)
	if decision.MoveTranscript {
		oldTranscript := media.TranscriptPath(event.OldPath)
		if err := os.Rename(oldTranscript, newTranscript); err != nil {
			d.logger.Warn("move transcript failed",
				logging.String("from", oldTranscript),
				logging.String("to", newTranscript),
				logging.Error(err),
			)
		}
	}
	if err := d.store.Rename(ctx, event.OldPath, event.Path, newTranscript); err != nil {
		return fmt.Errorf("relabel record: %w", err)
	}
	if !decision.Reenqueue {
		return nil
	}
	return d.applyEnqueue(ctx, event.Path, decision.Fingerprint, record)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
