package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/camera"
	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/notify"
)

func status(state models.MachineState) *models.ParsedStatus {
	return &models.ParsedStatus{Status: models.Status{State: state}}
}

func statusWithProgress(state models.MachineState, done, total int64) *models.ParsedStatus {
	s := status(state)
	s.Progress = models.Progress{BytesDone: done, BytesTotal: total}
	return s
}

// scriptedPoller returns one scripted result per poll; a nil status is a poll failure
type scriptedPoller struct {
	mu      sync.Mutex
	results []*models.ParsedStatus
}

func (p *scriptedPoller) Identity() models.PrinterIdentity {
	return models.PrinterIdentity{Name: "p1", Host: "10.0.0.1", ControlPort: 8899}
}

func (p *scriptedPoller) Poll(context.Context) (*models.ParsedStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := p.results[0]
	p.results = p.results[1:]
	if next == nil {
		return nil, errors.New("connection refused")
	}
	return next, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event models.NotificationEvent) notify.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return notify.Report{EventID: event.ID}
}

type recordingHistory struct {
	records []models.JobRecord
}

func (h *recordingHistory) Record(_ context.Context, r models.JobRecord) error {
	h.records = append(h.records, r)
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.PrinterEvent
}

func (e *recordingEvents) Publish(event models.PrinterEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEvents) count(t models.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func runSequence(t *testing.T, results []*models.ParsedStatus, cfg Config) (*Watcher, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	cfg.Notifier = notifier
	w := New(&scriptedPoller{results: results}, cfg)
	for range results {
		w.Step(context.Background())
	}
	return w, notifier
}

// Notifications fire only on terminal states, so this sequence completes job 1
// and leaves job 2 running: one event, not two. Finishing job 2 yields the
// second event, see TestWatcherTwoJobsGetSequentialIDs.
func TestWatcherPollSequence(t *testing.T) {
	seq := []*models.ParsedStatus{
		status(models.StateIdle),
		status(models.StatePrinting),
		status(models.StatePrinting),
		status(models.StateCompleted),
		status(models.StateCompleted),
		status(models.StateIdle),
		status(models.StatePrinting),
	}
	w, notifier := runSequence(t, seq, Config{})

	if len(notifier.events) != 1 {
		t.Fatalf("events = %d, want 1 (second job still running)", len(notifier.events))
	}
	if ev := notifier.events[0]; ev.JobID != 1 || ev.Outcome != models.JobCompleted {
		t.Errorf("event = job %d %s, want job 1 completed", ev.JobID, ev.Outcome)
	}
	state := w.JobState()
	if state.Phase != models.JobPhaseInProgress || state.JobID != 2 {
		t.Errorf("JobState() = %+v, want in progress job 2", state)
	}
}

func TestWatcherTwoJobsGetSequentialIDs(t *testing.T) {
	seq := []*models.ParsedStatus{
		status(models.StateIdle),
		status(models.StatePrinting),
		status(models.StatePrinting),
		status(models.StateCompleted),
		status(models.StateCompleted),
		status(models.StateIdle),
		status(models.StatePrinting),
		status(models.StateCompleted),
		status(models.StateCompleted),
	}
	_, notifier := runSequence(t, seq, Config{})

	if len(notifier.events) != 2 {
		t.Fatalf("events = %d, want 2", len(notifier.events))
	}
	first, second := notifier.events[0].JobID, notifier.events[1].JobID
	if first == second || second != first+1 {
		t.Errorf("job ids = %d, %d; want consecutive", first, second)
	}
}

func TestWatcherPollFailureDoesNotFabricateCompletion(t *testing.T) {
	seq := []*models.ParsedStatus{
		status(models.StatePrinting),
		nil,
		nil,
		status(models.StatePrinting),
		nil,
	}
	w, notifier := runSequence(t, seq, Config{})

	if len(notifier.events) != 0 {
		t.Fatalf("events = %d, want 0", len(notifier.events))
	}
	if state := w.JobState(); state.Phase != models.JobPhaseInProgress || state.JobID != 1 {
		t.Errorf("JobState() = %+v", state)
	}
}

func TestWatcherIdleOutcome(t *testing.T) {
	tests := []struct {
		name string
		seq  []*models.ParsedStatus
		want models.JobOutcome
	}{
		{
			name: "finished file",
			seq: []*models.ParsedStatus{
				statusWithProgress(models.StatePrinting, 10, 100),
				statusWithProgress(models.StatePrinting, 100, 100),
				statusWithProgress(models.StateIdle, 0, 0),
			},
			want: models.JobCompleted,
		},
		{
			name: "cancelled",
			seq: []*models.ParsedStatus{
				statusWithProgress(models.StatePrinting, 10, 100),
				statusWithProgress(models.StateIdle, 0, 0),
			},
			want: models.JobFailed,
		},
		{
			name: "error",
			seq: []*models.ParsedStatus{
				status(models.StatePrinting),
				status(models.StateError),
				status(models.StateError),
			},
			want: models.JobFailed,
		},
		{
			name: "paused then resumed",
			seq: []*models.ParsedStatus{
				status(models.StatePrinting),
				status(models.StatePaused),
				status(models.StatePrinting),
				status(models.StateCompleted),
			},
			want: models.JobCompleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, notifier := runSequence(t, tt.seq, Config{})
			if len(notifier.events) != 1 {
				t.Fatalf("events = %d, want 1", len(notifier.events))
			}
			if got := notifier.events[0].Outcome; got != tt.want {
				t.Errorf("outcome = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWatcherTerminalStateBeforeAnyJob(t *testing.T) {
	_, notifier := runSequence(t, []*models.ParsedStatus{
		status(models.StateCompleted),
		status(models.StateIdle),
		status(models.StateError),
	}, Config{})
	if len(notifier.events) != 0 {
		t.Errorf("events = %d, want 0", len(notifier.events))
	}
}

func TestWatcherAttachesSnapshot(t *testing.T) {
	history := &recordingHistory{}
	events := &recordingEvents{}
	cfg := Config{
		Snapshot: func(ctx context.Context, printer string) ([]byte, error) {
			return []byte("jpeg:" + printer), nil
		},
		History: history,
		Events:  events,
	}
	_, notifier := runSequence(t, []*models.ParsedStatus{
		status(models.StatePrinting),
		status(models.StateCompleted),
	}, cfg)

	if len(notifier.events) != 1 || string(notifier.events[0].Snapshot) != "jpeg:p1" {
		t.Fatalf("events = %+v", notifier.events)
	}
	if len(history.records) != 1 || !history.records[0].HasSnapshot || history.records[0].JobID != 1 {
		t.Errorf("history = %+v", history.records)
	}
	if events.count(models.EventJobStarted) != 1 || events.count(models.EventJobFinished) != 1 {
		t.Errorf("hub events = %+v", events.events)
	}
}

func TestWatcherSnapshotFailureStillNotifies(t *testing.T) {
	for _, snapErr := range []error{camera.ErrNoCamera, &camera.StreamError{Printer: "p1", Err: errors.New("reset")}} {
		cfg := Config{
			Snapshot: func(context.Context, string) ([]byte, error) { return nil, snapErr },
		}
		_, notifier := runSequence(t, []*models.ParsedStatus{
			status(models.StatePrinting),
			status(models.StateCompleted),
		}, cfg)
		if len(notifier.events) != 1 || notifier.events[0].HasSnapshot() {
			t.Errorf("snapshot error %v: events = %+v", snapErr, notifier.events)
		}
	}
}

func TestWatcherSnapshotTimeout(t *testing.T) {
	cfg := Config{
		SnapshotTimeout: 50 * time.Millisecond,
		Snapshot: func(ctx context.Context, _ string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	start := time.Now()
	_, notifier := runSequence(t, []*models.ParsedStatus{
		status(models.StatePrinting),
		status(models.StateCompleted),
	}, cfg)
	if time.Since(start) > time.Second {
		t.Errorf("snapshot timeout not honoured: %v", time.Since(start))
	}
	if len(notifier.events) != 1 {
		t.Errorf("events = %d, want 1", len(notifier.events))
	}
}

func TestWatcherOnlineEvents(t *testing.T) {
	events := &recordingEvents{}
	runSequence(t, []*models.ParsedStatus{
		status(models.StateIdle),
		nil,
		nil,
		status(models.StateIdle),
	}, Config{Events: events})

	if n := events.count(models.EventPrinterOnline); n != 3 {
		t.Errorf("online events = %d, want 3 (up, down, up)", n)
	}
}

func TestGroupRunStopsOnCancel(t *testing.T) {
	g := NewGroup([]Poller{&scriptedPoller{}}, Config{Interval: 10 * time.Millisecond})
	if _, ok := g.Watcher("p1"); !ok {
		t.Fatal("Watcher(p1) missing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
