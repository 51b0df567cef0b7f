package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Job is one transcription attempt for a file identity at a specific
// fingerprint. Jobs are immutable once created; a changed fingerprint
// always produces a new job rather than mutating one in flight.
type Job struct {
	ID          string
	Identity    string // absolute media path
	Fingerprint string
	Attempt     int
	EnqueuedAt  time.Time
}

// New creates a first-attempt job for an identity and fingerprint.
func New(identity, fingerprint string) *Job {
	return &Job{
		ID:          uuid.NewString(),
		Identity:    identity,
		Fingerprint: fingerprint,
		Attempt:     1,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Retry derives the follow-up attempt for the same fingerprint.
func (j *Job) Retry() *Job {
	return &Job{
		ID:          uuid.NewString(),
		Identity:    j.Identity,
		Fingerprint: j.Fingerprint,
		Attempt:     j.Attempt + 1,
		EnqueuedAt:  time.Now().UTC(),
	}
}
