package dedup

import (
	"scribed/internal/tracking"
	"scribed/internal/watch"
)

// Action is the outcome class of a dedup decision.
type Action int

const (
	// ActionDrop discards the event; the tracked state already satisfies it.
	ActionDrop Action = iota
	// ActionEnqueue persists a pending record and enqueues a job.
	ActionEnqueue
	// ActionCancel cancels any queued job and optionally collects the record.
	ActionCancel
	// ActionRelabel moves the record to a new identity.
	ActionRelabel
)

func (a Action) String() string {
	switch a {
	case ActionDrop:
		return "drop"
	case ActionEnqueue:
		return "enqueue"
	case ActionCancel:
		return "cancel"
	case ActionRelabel:
		return "relabel"
	default:
		return "unknown"
	}
}

// Probe carries the on-disk facts a decision depends on, captured before
// Decide runs so the decision itself stays pure.
type Probe struct {
	// Fingerprint is the current fingerprint of the event's media path,
	// empty when the file is absent or unreadable.
	Fingerprint string
	// TranscriptExists reports whether the transcript derived from the
	// event's media path is on disk.
	TranscriptExists bool
	// OldTranscriptExists reports whether the transcript derived from a
	// rename's old path is on disk. Only meaningful for renames.
	OldTranscriptExists bool
	// JobQueued reports whether a job for the event's identity is sitting
	// in the queue.
	JobQueued bool
}

// Decision is what Decide resolved an event to.
type Decision struct {
	Action Action
	// Fingerprint to enqueue under, for ActionEnqueue and relabels with
	// Reenqueue set.
	Fingerprint string
	// RemoveRecord marks the record for collection on ActionCancel: the
	// media file is gone, no transcript remains, and no worker holds it.
	RemoveRecord bool
	// Reenqueue, on ActionRelabel, requests a fresh job under the new
	// identity after the record moves.
	Reenqueue bool
	// MoveTranscript, on ActionRelabel, requests the on-disk transcript
	// follow the media file to its new derived path.
	MoveTranscript bool
	// Reason is a short explanation for the log line.
	Reason string
}

func drop(reason string) Decision {
	return Decision{Action: ActionDrop, Reason: reason}
}

func enqueue(fingerprint, reason string) Decision {
	return Decision{Action: ActionEnqueue, Fingerprint: fingerprint, Reason: reason}
}

// Decide maps one event plus the tracked record and probed disk state onto
// a decision. It is deterministic and free of side effects so the rules
// can be tested as a table.
func Decide(event watch.Event, record *tracking.Record, probe Probe, maxRetries int) Decision {
	switch event.Op {
	case watch.OpCreated, watch.OpModified:
		return decideUpsert(record, probe, maxRetries)
	case watch.OpTranscriptRemoved:
		return decideTranscriptRemoved(record, probe)
	case watch.OpRemoved:
		return decideRemoved(record, probe)
	case watch.OpRenamed:
		return decideRenamed(record, probe, maxRetries)
	default:
		return drop("unknown event op")
	}
}

func decideUpsert(record *tracking.Record, probe Probe, maxRetries int) Decision {
	if probe.Fingerprint == "" {
		return drop("file absent")
	}
	if record == nil {
		return enqueue(probe.Fingerprint, "untracked file")
	}
	if record.Fingerprint != probe.Fingerprint {
		return enqueue(probe.Fingerprint, "content changed")
	}
	switch record.Status {
	case tracking.StatusDone:
		if probe.TranscriptExists {
			return drop("already transcribed")
		}
		return enqueue(probe.Fingerprint, "transcript missing")
	case tracking.StatusFailed:
		if record.FailureCount < maxRetries {
			return enqueue(probe.Fingerprint, "attempts remaining")
		}
		return drop("retries exhausted")
	case tracking.StatusInProgress:
		return drop("transcription in flight")
	default: // pending
		if probe.JobQueued {
			return drop("job already queued")
		}
		// A pending record with no queued job means the job was lost
		// (queue shutdown, rejection); restore it. There is a narrow
		// window where a worker has dequeued the job but not yet written
		// in_progress, in which case this enqueues a duplicate; the
		// worker's fingerprint re-check keeps the duplicate harmless for
		// a changed file, and an unchanged one is transcribed once more
		// at worst.
		return enqueue(probe.Fingerprint, "pending without job")
	}
}

func decideTranscriptRemoved(record *tracking.Record, probe Probe) Decision {
	if probe.Fingerprint == "" {
		return drop("file absent")
	}
	if probe.TranscriptExists {
		return drop("transcript restored")
	}
	if record != nil && record.Status == tracking.StatusInProgress {
		return drop("transcription in flight")
	}
	if record != nil && record.Status == tracking.StatusPending && probe.JobQueued {
		return drop("job already queued")
	}
	return enqueue(probe.Fingerprint, "transcript removed")
}

func decideRemoved(record *tracking.Record, probe Probe) Decision {
	d := Decision{Action: ActionCancel, Reason: "media removed"}
	if record == nil {
		return d
	}
	// The record is collected only once nothing refers to it: the file is
	// gone, no transcript survives it, and no worker holds the identity.
	d.RemoveRecord = !probe.TranscriptExists && record.Status != tracking.StatusInProgress
	return d
}

func decideRenamed(record *tracking.Record, probe Probe, maxRetries int) Decision {
	if record == nil {
		// Nothing tracked under the old path; treat the new path as a
		// plain arrival.
		return decideUpsert(nil, probe, maxRetries)
	}
	d := Decision{
		Action:         ActionRelabel,
		MoveTranscript: probe.OldTranscriptExists,
		Reason:         "file renamed",
	}
	if probe.Fingerprint == "" {
		return d
	}
	transcriptPresent := probe.TranscriptExists || probe.OldTranscriptExists
	switch {
	case record.Fingerprint != probe.Fingerprint:
		d.Reenqueue = true
	case record.Status == tracking.StatusDone:
		d.Reenqueue = !transcriptPresent
	case record.Status == tracking.StatusFailed:
		d.Reenqueue = record.FailureCount < maxRetries
	default:
		// Pending or in flight under the old identity: cancel-and-restart
		// under the new one.
		d.Reenqueue = true
	}
	if d.Reenqueue {
		d.Fingerprint = probe.Fingerprint
	}
	return d
}
