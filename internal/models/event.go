package models

import "time"

// EventType identifies messages broadcast on the event hub
type EventType string

const (
	EventPrinterState  EventType = "printer.state"
	EventPrinterOnline EventType = "printer.online"
	EventJobStarted    EventType = "job.started"
	EventJobFinished   EventType = "job.finished"
)

// PrinterEvent is a dashboard event about one printer
type PrinterEvent struct {
	Type      EventType    `json:"type"`
	Printer   string       `json:"printer"`
	State     MachineState `json:"state,omitempty"`
	Online    *bool        `json:"online,omitempty"`
	JobID     uint64       `json:"job_id,omitempty"`
	Outcome   JobOutcome   `json:"outcome,omitempty"`
	File      string       `json:"file,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
