// Package watch observes the configured directory tree and produces
// normalized media file events: created, modified, renamed, removed, and
// transcript-removed. Raw fsnotify notifications are filtered against the
// format allow-list, debounced per path, and reconciled against the
// tracking store at startup so nothing is missed across restarts.
package watch
