// Package jobs provides the bounded in-memory queue feeding transcription
// workers. Jobs are transient: durable state lives in the tracking store,
// and anything dropped here (rejection, shutdown) is restored by the next
// startup scan.
package jobs

import (
	"errors"
	"sync"
)

// FullPolicy controls Enqueue behavior when the queue is at capacity.
type FullPolicy int

const (
	// Block applies backpressure: Enqueue waits for space.
	Block FullPolicy = iota
	// Reject makes Enqueue return ErrFull instead of waiting.
	Reject
)

// ParseFullPolicy maps the configuration string onto a FullPolicy.
func ParseFullPolicy(value string) (FullPolicy, error) {
	switch value {
	case "block", "":
		return Block, nil
	case "reject":
		return Reject, nil
	default:
		return Block, errors.New("full policy must be \"block\" or \"reject\"")
	}
}

var (
	// ErrClosed is returned once the queue has shut down.
	ErrClosed = errors.New("job queue closed")
	// ErrFull is returned by Enqueue under the Reject policy.
	ErrFull = errors.New("job queue full")
)

// Queue is a bounded FIFO of pending jobs with at most one queued job per
// identity. Enqueueing a second job for an identity replaces the first in
// place (the newer fingerprint wins), which is what keeps the
// one-live-job-per-file invariant cheap to maintain.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []*Job
	capacity int
	policy   FullPolicy
	closed   bool
}

// NewQueue constructs a queue holding at most capacity jobs.
func NewQueue(capacity int, policy FullPolicy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		items:    make([]*Job, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job, replacing any queued job for the same identity.
// When the queue is full it blocks or returns ErrFull per the policy.
func (q *Queue) Enqueue(job *Job) error {
	return q.enqueue(job, q.policy == Block)
}

// TryEnqueue adds a job without ever blocking, returning ErrFull when the
// queue is at capacity regardless of the configured policy. Workers use it
// for retries: a worker that blocked on its own queue could never dequeue
// again, so a rejected retry stays pending in the store instead.
func (q *Queue) TryEnqueue(job *Job) error {
	return q.enqueue(job, false)
}

func (q *Queue) enqueue(job *Job, block bool) error {
	if job == nil {
		return errors.New("job is nil")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return ErrClosed
		}
		for i, queued := range q.items {
			if queued.Identity == job.Identity {
				q.items[i] = job
				return nil
			}
		}
		if len(q.items) < q.capacity {
			q.items = append(q.items, job)
			q.notEmpty.Signal()
			return nil
		}
		if !block {
			return ErrFull
		}
		q.notFull.Wait()
	}
}

// Dequeue removes and returns the oldest job, blocking while the queue is
// empty. It returns ErrClosed after Close; jobs still queued at shutdown
// are intentionally dropped, since their records remain pending in the
// tracking store.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return nil, ErrClosed
		}
		if len(q.items) > 0 {
			job := q.items[0]
			q.items = q.items[1:]
			q.notFull.Signal()
			return job, nil
		}
		q.notEmpty.Wait()
	}
}

// Cancel removes any not-yet-claimed job for the identity. Reports whether
// a job was removed. Jobs already claimed by a worker are unaffected; the
// worker's fingerprint re-check discards stale results.
func (q *Queue) Cancel(identity string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, queued := range q.items {
		if queued.Identity == identity {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.notFull.Signal()
			return true
		}
	}
	return false
}

// Has reports whether a job for the identity is currently queued.
func (q *Queue) Has(identity string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queued := range q.items {
		if queued.Identity == identity {
			return true
		}
	}
	return false
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close shuts the queue down and wakes every waiter. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
