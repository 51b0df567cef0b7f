package jobs_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"scribed/internal/jobs"
)

func TestDequeueIsFIFO(t *testing.T) {
	q := jobs.NewQueue(8, jobs.Block)
	for _, path := range []string{"/m/a.mp3", "/m/b.mp3", "/m/c.mp3"} {
		if err := q.Enqueue(jobs.New(path, "1:1")); err != nil {
			t.Fatalf("Enqueue(%s): %v", path, err)
		}
	}

	for _, want := range []string{"/m/a.mp3", "/m/b.mp3", "/m/c.mp3"} {
		job, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if job.Identity != want {
			t.Fatalf("Dequeue order: got %s, want %s", job.Identity, want)
		}
	}
}

func TestEnqueueReplacesSameIdentity(t *testing.T) {
	q := jobs.NewQueue(2, jobs.Reject)
	if err := q.Enqueue(jobs.New("/m/a.mp3", "1:1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(jobs.New("/m/a.mp3", "2:2")); err != nil {
		t.Fatalf("Enqueue replacement: %v", err)
	}

	if q.Len() != 1 {
		t.Fatalf("expected single queued job, got %d", q.Len())
	}
	job, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.Fingerprint != "2:2" {
		t.Fatalf("newer fingerprint should win, got %s", job.Fingerprint)
	}
}

func TestRejectPolicyWhenFull(t *testing.T) {
	q := jobs.NewQueue(1, jobs.Reject)
	if err := q.Enqueue(jobs.New("/m/a.mp3", "1:1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err := q.Enqueue(jobs.New("/m/b.mp3", "1:1"))
	if !errors.Is(err, jobs.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestTryEnqueueNeverBlocks(t *testing.T) {
	q := jobs.NewQueue(1, jobs.Block)
	if err := q.Enqueue(jobs.New("/m/a.mp3", "1:1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.TryEnqueue(jobs.New("/m/b.mp3", "1:1")); !errors.Is(err, jobs.ErrFull) {
		t.Fatalf("expected ErrFull under Block policy, got %v", err)
	}
	// Same identity replaces in place even at capacity.
	if err := q.TryEnqueue(jobs.New("/m/a.mp3", "2:2")); err != nil {
		t.Fatalf("TryEnqueue replace: %v", err)
	}
	job, err := q.Dequeue()
	if err != nil || job.Fingerprint != "2:2" {
		t.Fatalf("got %#v, %v", job, err)
	}
}

func TestBlockPolicyAppliesBackpressure(t *testing.T) {
	q := jobs.NewQueue(1, jobs.Block)
	if err := q.Enqueue(jobs.New("/m/a.mp3", "1:1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	enqueued := make(chan error, 1)
	go func() {
		enqueued <- q.Enqueue(jobs.New("/m/b.mp3", "1:1"))
	}()

	select {
	case err := <-enqueued:
		t.Fatalf("Enqueue returned %v before space freed", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	select {
	case err := <-enqueued:
		if err != nil {
			t.Fatalf("blocked Enqueue: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not unblock after Dequeue")
	}
}

func TestCancelRemovesQueuedJob(t *testing.T) {
	q := jobs.NewQueue(4, jobs.Block)
	for _, path := range []string{"/m/a.mp3", "/m/b.mp3", "/m/c.mp3"} {
		if err := q.Enqueue(jobs.New(path, "1:1")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if !q.Cancel("/m/b.mp3") {
		t.Fatal("Cancel should report removal")
	}
	if q.Cancel("/m/b.mp3") {
		t.Fatal("second Cancel should find nothing")
	}
	if q.Has("/m/b.mp3") {
		t.Fatal("cancelled identity still queued")
	}

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	if first.Identity != "/m/a.mp3" || second.Identity != "/m/c.mp3" {
		t.Fatalf("unexpected order after cancel: %s, %s", first.Identity, second.Identity)
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	q := jobs.NewQueue(1, jobs.Block)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	for range 2 {
		go func() {
			defer wg.Done()
			_, err := q.Dequeue()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, jobs.ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	}

	if err := q.Enqueue(jobs.New("/m/late.mp3", "1:1")); !errors.Is(err, jobs.ErrClosed) {
		t.Fatalf("Enqueue after Close: %v", err)
	}
}

func TestRetryIncrementsAttempt(t *testing.T) {
	job := jobs.New("/m/a.mp3", "1:1")
	retry := job.Retry()
	if retry.Attempt != 2 || retry.Fingerprint != job.Fingerprint || retry.Identity != job.Identity {
		t.Fatalf("unexpected retry job: %#v", retry)
	}
	if retry.ID == job.ID {
		t.Fatal("retry should carry a fresh ID")
	}
}
