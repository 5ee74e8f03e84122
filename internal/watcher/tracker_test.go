package watcher

import (
	"testing"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

func TestTrackerIdempotentTerminalState(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	if got := tr.Observe(status(models.StatePrinting), now); !got.Started || got.Job.JobID != 1 {
		t.Fatalf("Observe(printing) = %+v", got)
	}
	if got := tr.Observe(status(models.StateCompleted), now); got.Outcome != models.JobCompleted {
		t.Fatalf("Observe(completed) = %+v", got)
	}
	for i := 0; i < 5; i++ {
		if got := tr.Observe(status(models.StateCompleted), now); got.Changed() {
			t.Fatalf("repeated terminal observation %d produced %+v", i, got)
		}
	}
	if tr.State().Phase != models.JobPhaseIdle {
		t.Errorf("Phase = %s, want idle", tr.State().Phase)
	}
}

func TestTrackerKeepsFileAndStart(t *testing.T) {
	tr := NewTracker()
	started := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	file := "part.gx"

	s := status(models.StatePrinting)
	s.Status.CurrentFile = &file
	tr.Observe(s, started)
	tr.Observe(status(models.StateBusy), started.Add(time.Minute))

	got := tr.Observe(status(models.StateCompleted), started.Add(time.Hour))
	if got.Job.File != file || !got.Job.StartedAt.Equal(started) {
		t.Errorf("finished job = %+v", got.Job)
	}
	if tr.State().LastState != models.StateCompleted {
		t.Errorf("LastState = %s", tr.State().LastState)
	}
}
