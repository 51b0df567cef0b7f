// Package dedup turns filesystem events into job decisions.
//
// The decision rules live in a pure function, Decide, operating on an
// event, the tracked record, and a probe of on-disk state. Deduplicator
// wraps it with the side effects: store transitions, queue admission and
// cancellation, and record relabeling across renames. Running the applier
// as a single consumer goroutine is what upholds the one-live-job-per-file
// guarantee without any in-memory bookkeeping beside the queue itself.
package dedup
