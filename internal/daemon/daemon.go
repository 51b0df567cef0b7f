package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scribed/internal/config"
	"scribed/internal/dedup"
	"scribed/internal/jobs"
	"scribed/internal/logging"
	"scribed/internal/tracking"
	"scribed/internal/transcriber"
	"scribed/internal/watch"
	"scribed/internal/worker"
)

// Daemon owns the running process: tracking store, monitor, deduplicator,
// queue, and worker pool, with flock-based locking so only one instance
// serves a state directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *tracking.Store
	queue   *jobs.Queue
	monitor *watch.Monitor
	dedup   *dedup.Deduplicator
	pool    *worker.Pool

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	cancel   context.CancelFunc
	consumer sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	LockPath   string
	QueueDepth int
	Records    map[tracking.Status]int
}

// New wires a daemon from configuration. A nil backend selects the
// configured whisper service.
func New(cfg *config.Config, logger *slog.Logger, backend transcriber.Backend) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if backend == nil {
		backend = transcriber.NewService(cfg.Backend)
	}

	store, err := tracking.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}

	policy, err := jobs.ParseFullPolicy(cfg.Queue.FullPolicy)
	if err != nil {
		store.Close()
		return nil, err
	}
	queue := jobs.NewQueue(cfg.Queue.Capacity, policy)

	monitor, err := watch.NewMonitor(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "scribed.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		queue:    queue,
		monitor:  monitor,
		dedup:    dedup.New(store, queue, cfg.Workers.MaxRetries, logger),
		pool:     worker.NewPool(cfg, store, queue, backend, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers interrupted work, and launches
// the pipeline: workers, the event consumer, then the monitor with its
// reconciliation scan.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribed instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Records left in progress by a crash have no worker behind them.
	reset, err := d.store.ResetInProgress(runCtx)
	if err != nil {
		d.releaseLock()
		cancel()
		return fmt.Errorf("reset interrupted records: %w", err)
	}
	if reset > 0 {
		d.logger.Info("reset interrupted records", logging.Int64("count", reset))
	}

	// Workers are shut down by closing the queue, never by cancellation:
	// a claimed job runs its backend call to completion (bounded by the
	// per-attempt timeout) even while Stop drains the pipeline.
	d.pool.Start(context.WithoutCancel(runCtx))
	d.consumer.Add(1)
	go func() {
		defer d.consumer.Done()
		d.dedup.Run(runCtx, d.monitor.Events())
	}()

	if err := d.monitor.Start(runCtx); err != nil {
		d.monitor.Stop()
		cancel()
		d.consumer.Wait()
		d.queue.Close()
		d.pool.Wait()
		d.releaseLock()
		return fmt.Errorf("start monitor: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("scribed daemon started",
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop shuts the pipeline down in dependency order: no new events, no new
// jobs, then drain the workers and release the lock. Jobs still queued are
// dropped; their pending records are restored by the next startup scan.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.consumer.Wait()
	d.queue.Close()
	d.pool.Wait()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("scribed daemon stopped")
}

// Close stops the daemon and releases the tracking store.
func (d *Daemon) Close() error {
	d.Stop()
	d.monitor.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime state and record counts.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:    d.running.Load(),
		LockPath:   d.lockPath,
		QueueDepth: d.queue.Len(),
		Records:    stats,
	}, nil
}

// DatabaseHealth returns detailed tracking store diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (tracking.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
