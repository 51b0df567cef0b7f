package watch

import "time"

// Op classifies a normalized filesystem observation.
type Op int

const (
	// OpCreated is a supported media file appearing (or found by the
	// startup scan without a satisfied tracking record).
	OpCreated Op = iota
	// OpModified is a supported media file's content changing.
	OpModified
	// OpRenamed is a media file moving from OldPath to Path.
	OpRenamed
	// OpRemoved is a media file disappearing.
	OpRemoved
	// OpTranscriptRemoved is a transcript deletion, reported against the
	// media file it belonged to.
	OpTranscriptRemoved
)

func (op Op) String() string {
	switch op {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpRenamed:
		return "renamed"
	case OpRemoved:
		return "removed"
	case OpTranscriptRemoved:
		return "transcript_removed"
	default:
		return "unknown"
	}
}

// Event is a normalized, debounced file observation. Path always names the
// media file, even for transcript removals. OldPath is set only for renames.
type Event struct {
	Op      Op
	Path    string
	OldPath string
	At      time.Time
}
