package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// Message is the human readable rendering of an event
type Message struct {
	Subject string
	Body    string
}

// NewMessage renders event
func NewMessage(event models.NotificationEvent) Message {
	printer := event.Printer.Name
	var subject string
	switch event.Outcome {
	case models.JobCompleted:
		subject = "Print complete on " + printer
	default:
		subject = "Print failed on " + printer
	}

	var b strings.Builder
	file := event.File
	if file == "" {
		file = "unknown file"
	}
	if event.Outcome == models.JobCompleted {
		fmt.Fprintf(&b, "%s has finished printing %s.\n", printer, file)
	} else {
		fmt.Fprintf(&b, "%s stopped printing %s before it finished.\n", printer, file)
	}
	fmt.Fprintf(&b, "\nPrinter: %s (%s)\n", printer, event.Printer.Host)
	fmt.Fprintf(&b, "Job: #%d\n", event.JobID)
	if d := event.Duration(); d > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", d.Truncate(time.Second))
	}
	fmt.Fprintf(&b, "Finished: %s\n", event.FinishedAt.Format(time.RFC1123))

	return Message{Subject: subject, Body: b.String()}
}
