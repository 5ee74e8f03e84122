// Package watcher polls printers and turns status changes into job lifecycle events.
package watcher

import (
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// Transition is the output of one observation
type Transition struct {
	// Started is set when a new job entered progress
	Started bool
	// Outcome is set when the tracked job reached a terminal state
	Outcome models.JobOutcome
	// Job is the job the transition refers to
	Job models.JobState
}

// Changed reports whether the observation produced an event
func (t Transition) Changed() bool {
	return t.Started || t.Outcome != ""
}

// Tracker is the job state machine of one printer:
//
//	Unknown/Idle --printing--> InProgress{id+1}
//	InProgress --completed--> Idle (emit completed)
//	InProgress --error--> Idle (emit failed)
//	InProgress --idle--> Idle (emit completed if progress reached the end, else failed)
//
// Paused, busy and unknown observations leave an in-progress job untouched, and
// terminal observations outside a job emit nothing.
type Tracker struct {
	state models.JobState
}

// NewTracker returns a tracker in the Unknown phase
func NewTracker() *Tracker {
	return &Tracker{state: models.JobState{Phase: models.JobPhaseUnknown, LastState: models.StateUnknown}}
}

// State returns the current job state
func (t *Tracker) State() models.JobState {
	return t.state
}

// Observe feeds one successful poll into the state machine
func (t *Tracker) Observe(status *models.ParsedStatus, now time.Time) Transition {
	observed := status.State()
	defer func() { t.state.LastState = observed }()

	switch t.state.Phase {
	case models.JobPhaseInProgress:
		switch observed {
		case models.StateCompleted:
			return t.finish(models.JobCompleted)
		case models.StateError:
			return t.finish(models.JobFailed)
		case models.StateIdle:
			if t.state.LastProgress.Complete() || status.Progress.Complete() {
				return t.finish(models.JobCompleted)
			}
			return t.finish(models.JobFailed)
		default:
			t.state.LastProgress = status.Progress
			if file := currentFile(status); file != "" {
				t.state.File = file
			}
			return Transition{}
		}

	default:
		switch observed {
		case models.StatePrinting, models.StatePaused:
			t.state = models.JobState{
				Phase:        models.JobPhaseInProgress,
				JobID:        t.state.JobID + 1,
				File:         currentFile(status),
				StartedAt:    now,
				LastProgress: status.Progress,
			}
			return Transition{Started: true, Job: t.state}
		case models.StateIdle, models.StateCompleted, models.StateError:
			t.state.Phase = models.JobPhaseIdle
		}
		return Transition{}
	}
}

func (t *Tracker) finish(outcome models.JobOutcome) Transition {
	job := t.state
	t.state.Phase = models.JobPhaseIdle
	return Transition{Outcome: outcome, Job: job}
}

func currentFile(status *models.ParsedStatus) string {
	if status.Status.CurrentFile == nil {
		return ""
	}
	return *status.Status.CurrentFile
}
