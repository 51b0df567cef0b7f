package testsupport

import (
	"context"
	"testing"
	"time"

	"scribed/internal/config"
	"scribed/internal/tracking"
)

// MustOpenStore opens a tracking.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *tracking.Store {
	t.Helper()

	store, err := tracking.Open(cfg)
	if err != nil {
		t.Fatalf("tracking.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// PutRecord persists a record for tests using the provided store.
func PutRecord(t testing.TB, store *tracking.Store, record *tracking.Record) {
	t.Helper()

	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("store.Put: %v", err)
	}
}

// WaitFor polls condition until it returns true or the deadline passes.
func WaitFor(t testing.TB, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
