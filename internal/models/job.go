package models

import (
	"time"

	"github.com/google/uuid"
)

// JobPhase is the position of a printer in the job lifecycle
type JobPhase string

const (
	JobPhaseUnknown    JobPhase = "unknown"
	JobPhaseIdle       JobPhase = "idle"
	JobPhaseInProgress JobPhase = "in_progress"
)

// JobOutcome is the terminal state of a job
type JobOutcome string

const (
	JobCompleted JobOutcome = "completed"
	JobFailed    JobOutcome = "failed"
)

// JobState is the per-printer record used to deduplicate notifications.
// It is only mutated by the watcher of that printer.
type JobState struct {
	Phase        JobPhase     `json:"phase"`
	JobID        uint64       `json:"job_id"`
	File         string       `json:"file,omitempty"`
	StartedAt    time.Time    `json:"started_at,omitempty"`
	LastState    MachineState `json:"last_state"`
	LastProgress Progress     `json:"last_progress"`
}

// NotificationEvent is handed to the notifier when a job reaches a terminal state
type NotificationEvent struct {
	ID         uuid.UUID       `json:"id"`
	Printer    PrinterIdentity `json:"printer"`
	JobID      uint64          `json:"job_id"`
	Outcome    JobOutcome      `json:"outcome"`
	File       string          `json:"file,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Snapshot   []byte          `json:"-"`
}

// HasSnapshot reports whether an image is attached
func (e NotificationEvent) HasSnapshot() bool {
	return len(e.Snapshot) > 0
}

// Duration returns how long the job ran, or zero when the start is unknown
func (e NotificationEvent) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// JobRecord is a persisted summary of a finished job
type JobRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Printer     string     `db:"printer" json:"printer"`
	JobID       int64      `db:"job_id" json:"job_id"`
	File        *string    `db:"file" json:"file"`
	Outcome     JobOutcome `db:"outcome" json:"outcome"`
	HasSnapshot bool       `db:"has_snapshot" json:"has_snapshot"`
	StartedAt   *time.Time `db:"started_at" json:"started_at"`
	FinishedAt  time.Time  `db:"finished_at" json:"finished_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// NewJobRecord builds a history record from a notification event
func NewJobRecord(event NotificationEvent) JobRecord {
	record := JobRecord{
		ID:          event.ID,
		Printer:     event.Printer.Name,
		JobID:       int64(event.JobID),
		Outcome:     event.Outcome,
		HasSnapshot: event.HasSnapshot(),
		FinishedAt:  event.FinishedAt,
	}
	if event.File != "" {
		file := event.File
		record.File = &file
	}
	if !event.StartedAt.IsZero() {
		started := event.StartedAt
		record.StartedAt = &started
	}
	return record
}
