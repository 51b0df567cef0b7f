// Package config loads, normalizes, and validates scribed configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need: the watched directory, format allow-list,
// debounce window, queue bounds, worker pool sizing, and the transcription
// backend command.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
