// Package transcriber defines the transcription backend contract and the
// faster-whisper CLI implementation behind it.
package transcriber

import "context"

// Backend converts one media file into transcript text, or fails. The call
// is an opaque unit of work: callers bound it with a context deadline and
// never interrupt it mid-run.
type Backend interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Func adapts a plain function to Backend. Used by tests.
type Func func(ctx context.Context, path string) (string, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}
