package tracking

import "time"

// Status represents the transcription lifecycle of a tracked file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusDone,
	StatusFailed,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	for _, status := range allStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Record is the persisted transcription state for one media file identity.
type Record struct {
	Path           string
	Fingerprint    string
	Status         Status
	FailureCount   int
	TranscriptPath string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DatabaseHealth captures diagnostic information about the tracking database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}
