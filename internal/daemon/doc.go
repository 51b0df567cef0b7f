// Package daemon coordinates the long-running scribed process.
//
// It wires configuration, the tracking store, the filesystem monitor, the
// deduplicating event consumer, and the worker pool into a single
// lifecycle with flock-based locking to prevent multiple instances.
// Orchestration logic lives here; the individual pipeline stages live in
// their own packages.
package daemon
