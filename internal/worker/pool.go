// Package worker runs the transcription executors. A fixed-size pool pulls
// jobs from the queue, re-verifies each job's fingerprint against the file
// on disk, invokes the backend under a per-attempt timeout, writes
// transcripts atomically, and drives record transitions through retries to
// done or failed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scribed/internal/config"
	"scribed/internal/jobs"
	"scribed/internal/logging"
	"scribed/internal/media"
	"scribed/internal/tracking"
	"scribed/internal/transcriber"
)

// Pool owns the worker goroutines. Workers exit when the queue closes;
// Wait blocks until the last in-flight job has settled.
type Pool struct {
	store      *tracking.Store
	queue      *jobs.Queue
	backend    transcriber.Backend
	logger     *slog.Logger
	count      int
	maxRetries int
	timeout    time.Duration

	wg sync.WaitGroup
}

// NewPool constructs a pool from the workers and backend configuration.
func NewPool(cfg *config.Config, store *tracking.Store, queue *jobs.Queue, backend transcriber.Backend, logger *slog.Logger) *Pool {
	return &Pool{
		store:      store,
		queue:      queue,
		backend:    backend,
		logger:     logging.WithComponent(logger, "worker"),
		count:      cfg.Workers.Count,
		maxRetries: cfg.Workers.MaxRetries,
		timeout:    time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.logger.Info("workers started", logging.Int("count", p.count))
}

// Wait blocks until every worker has exited. Close the queue first.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With(logging.Int("worker", id))
	for {
		job, err := p.queue.Dequeue()
		if err != nil {
			return
		}
		p.process(ctx, logger, job)
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	// The file may have changed or vanished since the job was enqueued. A
	// stale job is discarded without side effects; the event that changed
	// the file has already enqueued its successor.
	fp, err := media.Stat(job.Identity)
	if err != nil || fp.String() != job.Fingerprint {
		logger.Debug("discarding stale job",
			logging.String("path", job.Identity),
			logging.String("job_id", job.ID),
		)
		return
	}

	record, err := p.store.Get(ctx, job.Identity)
	if err != nil {
		logger.Error("read record", logging.String("path", job.Identity), logging.Error(err))
		return
	}
	if record == nil {
		record = &tracking.Record{
			Path:           job.Identity,
			TranscriptPath: media.TranscriptPath(job.Identity),
		}
	}
	record.Fingerprint = job.Fingerprint
	record.Status = tracking.StatusInProgress
	record.ErrorMessage = ""
	if err := p.store.Put(ctx, record); err != nil {
		logger.Error("mark in progress", logging.String("path", job.Identity), logging.Error(err))
		return
	}

	logger.Info("transcribing",
		logging.String("path", job.Identity),
		logging.Int("attempt", job.Attempt),
	)
	started := time.Now()
	text, err := p.transcribe(ctx, job.Identity)
	if err != nil {
		p.settleFailure(ctx, logger, job, record, err)
		return
	}

	// The backend ran to completion, but the result only counts if the
	// file is still the one the job described.
	if fp, statErr := media.Stat(job.Identity); statErr != nil {
		p.discardResult(ctx, logger, job, record)
		return
	} else if fp.String() != job.Fingerprint {
		// The change produced its own event and a newer job, but that job
		// may itself be cancelled later; don't strand the record as
		// in_progress in the meantime.
		logger.Debug("discarding result for changed file", logging.String("path", job.Identity))
		record.Status = tracking.StatusPending
		if err := p.store.Put(ctx, record); err != nil {
			logger.Error("reset discarded record", logging.String("path", job.Identity), logging.Error(err))
		}
		return
	}

	if err := writeTranscript(record.TranscriptPath, text); err != nil {
		p.settleFailure(ctx, logger, job, record, err)
		return
	}

	record.Status = tracking.StatusDone
	record.FailureCount = 0
	record.ErrorMessage = ""
	if err := p.store.Put(ctx, record); err != nil {
		logger.Error("mark done", logging.String("path", job.Identity), logging.Error(err))
		return
	}
	logger.Info("transcription complete",
		logging.String("path", job.Identity),
		logging.String("transcript", record.TranscriptPath),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
}

func (p *Pool) transcribe(ctx context.Context, path string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	text, err := p.backend.Transcribe(ctx, path)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("backend timed out after %s: %w", p.timeout, err)
	}
	return text, err
}

// settleFailure counts one failed attempt and either re-enqueues a retry
// or parks the record as failed. A failed record stays failed until the
// file changes; touching it produces a new event and resets the cycle.
func (p *Pool) settleFailure(ctx context.Context, logger *slog.Logger, job *jobs.Job, record *tracking.Record, cause error) {
	record.FailureCount++
	record.ErrorMessage = cause.Error()

	if record.FailureCount < p.maxRetries {
		record.Status = tracking.StatusPending
		if err := p.store.Put(ctx, record); err != nil {
			logger.Error("persist retry state", logging.String("path", job.Identity), logging.Error(err))
			return
		}
		logger.Warn("transcription failed, retrying",
			logging.String("path", job.Identity),
			logging.Int("attempt", job.Attempt),
			logging.Error(cause),
		)
		// Never block here: workers are the only dequeuers, so waiting on
		// a full queue would wedge the pool. A rejected retry stays
		// pending and the next scan re-enqueues it.
		if err := p.queue.TryEnqueue(job.Retry()); err != nil {
			logger.Debug("retry not enqueued", logging.String("path", job.Identity), logging.Error(err))
		}
		return
	}

	record.Status = tracking.StatusFailed
	if err := p.store.Put(ctx, record); err != nil {
		logger.Error("persist failed state", logging.String("path", job.Identity), logging.Error(err))
		return
	}
	logger.Error("transcription failed permanently",
		logging.String("path", job.Identity),
		logging.Int("failures", record.FailureCount),
		logging.Error(cause),
	)
}

// discardResult drops a completed result whose file has vanished, and
// collects the record when nothing else refers to it.
func (p *Pool) discardResult(ctx context.Context, logger *slog.Logger, job *jobs.Job, record *tracking.Record) {
	logger.Debug("discarding result for removed file", logging.String("path", job.Identity))
	if fileExists(record.TranscriptPath) {
		return
	}
	current, err := p.store.Get(ctx, job.Identity)
	if err != nil || current == nil {
		return
	}
	if current.Status == tracking.StatusInProgress && current.Fingerprint == job.Fingerprint {
		if _, err := p.store.Remove(ctx, job.Identity); err != nil {
			logger.Error("collect record", logging.String("path", job.Identity), logging.Error(err))
		}
	}
}

// writeTranscript writes text to path via a temp file and rename, so a
// reader never observes a partial transcript.
func writeTranscript(path, text string) error {
	tmpPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.WriteFile(tmpPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize transcript: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
