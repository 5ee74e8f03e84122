package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jackzmc/flashforge-api-server/internal/camera"
	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/notify"
)

// Defaults for the poll loop
const (
	DefaultInterval        = 60 * time.Second
	DefaultSnapshotTimeout = 5 * time.Second
)

// Poller reads the status of one printer. *printer.Printer implements it.
type Poller interface {
	Identity() models.PrinterIdentity
	Poll(ctx context.Context) (*models.ParsedStatus, error)
}

// Notifier delivers a finished job to its destinations
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent) notify.Report
}

// Recorder stores finished jobs
type Recorder interface {
	Record(ctx context.Context, record models.JobRecord) error
}

// Publisher broadcasts dashboard events
type Publisher interface {
	Publish(event models.PrinterEvent)
}

// SnapshotFunc grabs one camera frame of a printer
type SnapshotFunc func(ctx context.Context, printer string) ([]byte, error)

// Config wires a Watcher. Only Poller is required.
type Config struct {
	Interval        time.Duration
	SnapshotTimeout time.Duration
	Snapshot        SnapshotFunc
	Notifier        Notifier
	History         Recorder
	Events          Publisher
	Logger          *slog.Logger
}

// Watcher polls one printer on a fixed interval
type Watcher struct {
	poller   Poller
	identity models.PrinterIdentity
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	tracker *Tracker
	online  *bool
	state   models.MachineState
}

// New creates a watcher for poller
func New(poller Poller, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identity := poller.Identity()
	return &Watcher{
		poller:   poller,
		identity: identity,
		cfg:      cfg,
		logger:   logger.With("printer", identity.Name),
		now:      time.Now,
		tracker:  NewTracker(),
	}
}

// JobState returns the tracked job of the printer
func (w *Watcher) JobState() models.JobState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tracker.State()
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watcher started", "interval", w.cfg.Interval)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.Step(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// Step performs one poll and handles the resulting transition.
// A failed poll leaves the job state untouched.
func (w *Watcher) Step(ctx context.Context) Transition {
	pollCtx, cancel := context.WithTimeout(ctx, w.cfg.Interval)
	status, err := w.poller.Poll(pollCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("poll failed", "error", err)
		}
		w.setOnline(false)
		return Transition{}
	}
	w.setOnline(true)

	now := w.now()
	w.mu.Lock()
	tr := w.tracker.Observe(status, now)
	stateChanged := w.state != status.State()
	w.state = status.State()
	w.mu.Unlock()

	if stateChanged {
		w.publish(models.PrinterEvent{Type: models.EventPrinterState, State: status.State()})
	}
	if tr.Started {
		w.logger.Info("job started", "job_id", tr.Job.JobID, "file", tr.Job.File)
		w.publish(models.PrinterEvent{Type: models.EventJobStarted, JobID: tr.Job.JobID, File: tr.Job.File})
	}
	if tr.Outcome != "" {
		w.finish(ctx, tr, now)
	}
	return tr
}

func (w *Watcher) finish(ctx context.Context, tr Transition, now time.Time) {
	event := models.NotificationEvent{
		ID:         uuid.New(),
		Printer:    w.identity,
		JobID:      tr.Job.JobID,
		Outcome:    tr.Outcome,
		File:       tr.Job.File,
		StartedAt:  tr.Job.StartedAt,
		FinishedAt: now,
	}
	w.logger.Info("job finished", "job_id", event.JobID, "outcome", event.Outcome, "file", event.File)

	if w.cfg.Snapshot != nil {
		snapCtx, cancel := context.WithTimeout(ctx, w.cfg.SnapshotTimeout)
		frame, err := w.cfg.Snapshot(snapCtx, w.identity.Name)
		cancel()
		switch {
		case err == nil:
			event.Snapshot = frame
		case errors.Is(err, camera.ErrNoCamera):
		default:
			w.logger.Warn("snapshot failed, notifying without image", "error", err)
		}
	}

	if w.cfg.History != nil {
		if err := w.cfg.History.Record(ctx, models.NewJobRecord(event)); err != nil {
			w.logger.Error("failed to record job", "error", err)
		}
	}

	w.publish(models.PrinterEvent{
		Type:    models.EventJobFinished,
		JobID:   event.JobID,
		Outcome: event.Outcome,
		File:    event.File,
	})

	if w.cfg.Notifier != nil {
		report := w.cfg.Notifier.Notify(ctx, event)
		if failed := report.Failed(); len(failed) > 0 {
			w.logger.Warn("some notifications failed", "failed", len(failed), "total", len(report.Results))
		}
	}
}

func (w *Watcher) setOnline(online bool) {
	w.mu.Lock()
	changed := w.online == nil || *w.online != online
	w.online = &online
	w.mu.Unlock()

	if changed {
		w.publish(models.PrinterEvent{Type: models.EventPrinterOnline, Online: &online})
	}
}

func (w *Watcher) publish(event models.PrinterEvent) {
	if w.cfg.Events == nil {
		return
	}
	event.Printer = w.identity.Name
	event.Timestamp = w.now()
	w.cfg.Events.Publish(event)
}

// Group runs one watcher per printer
type Group struct {
	watchers map[string]*Watcher
	order    []string
}

// NewGroup creates a watcher for every poller with a shared config
func NewGroup(pollers []Poller, cfg Config) *Group {
	g := &Group{watchers: make(map[string]*Watcher, len(pollers))}
	for _, p := range pollers {
		w := New(p, cfg)
		g.watchers[w.identity.Name] = w
		g.order = append(g.order, w.identity.Name)
	}
	return g
}

// Watcher returns the watcher of a printer
func (g *Group) Watcher(name string) (*Watcher, bool) {
	w, ok := g.watchers[name]
	return w, ok
}

// Run starts every watcher and blocks until ctx is cancelled and all have stopped
func (g *Group) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range g.order {
		w := g.watchers[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()
}
