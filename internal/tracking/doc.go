// Package tracking persists per-file transcription state in SQLite.
//
// The Store maps each media file identity (its absolute path) to the
// fingerprint last transcribed, its lifecycle status, failure count, and
// transcript location. It survives process restarts and is the single
// source of truth the deduplicator and workers coordinate through; the
// filesystem, not the store, is authoritative, and the startup scan
// reconciles the two.
//
// Schema changes bump the version in schema.go; mismatched databases are
// rejected and can safely be deleted because the scan rebuilds state.
package tracking
