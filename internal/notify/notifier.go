// Package notify delivers job completion events to email, webhook and MQTT destinations.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// DefaultTimeout bounds a single destination delivery
const DefaultTimeout = 30 * time.Second

// Destination is one notification target
type Destination interface {
	// Name identifies the destination in reports and logs, e.g. "webhook:https://..."
	Name() string
	Send(ctx context.Context, msg Message, event models.NotificationEvent) error
}

// Result is the delivery outcome of one destination
type Result struct {
	Destination string `json:"destination"`
	Err         error  `json:"-"`
}

// Report collects the outcome of a dispatch
type Report struct {
	EventID uuid.UUID `json:"event_id"`
	Results []Result  `json:"results"`
}

// Failed returns the results that carry an error
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Resolver returns the destinations configured for a printer and outcome
type Resolver interface {
	Destinations(printer string, outcome models.JobOutcome) []Destination
}

// Notifier fans events out to destinations. Destinations are independent: a slow
// or failing one never delays or suppresses the others beyond its own timeout.
type Notifier struct {
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewNotifier creates a notifier. A nil resolver disables Notify.
func NewNotifier(resolver Resolver, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{resolver: resolver, timeout: timeout, logger: logger}
}

// Notify resolves the destinations of event and dispatches to them
func (n *Notifier) Notify(ctx context.Context, event models.NotificationEvent) Report {
	if n.resolver == nil {
		return Report{EventID: event.ID}
	}
	return n.Dispatch(ctx, event, n.resolver.Destinations(event.Printer.Name, event.Outcome))
}

// Dispatch delivers event to every destination concurrently and waits for all of them.
// An empty destination list is a no-op.
func (n *Notifier) Dispatch(ctx context.Context, event models.NotificationEvent, destinations []Destination) Report {
	report := Report{EventID: event.ID, Results: make([]Result, len(destinations))}
	if len(destinations) == 0 {
		return report
	}
	msg := NewMessage(event)

	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Results[i] = Result{Destination: dest.Name(), Err: n.send(ctx, dest, msg, event)}
		}()
	}
	wg.Wait()

	for _, res := range report.Results {
		if res.Err != nil {
			n.logger.Error("notification failed", "destination", res.Destination, "printer", event.Printer.Name, "job_id", event.JobID, "error", res.Err)
		} else {
			n.logger.Info("notification sent", "destination", res.Destination, "printer", event.Printer.Name, "job_id", event.JobID)
		}
	}
	return report
}

func (n *Notifier) send(ctx context.Context, dest Destination, msg Message, event models.NotificationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("destination panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return dest.Send(ctx, msg, event)
}
