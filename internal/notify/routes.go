package notify

import "github.com/Jackzmc/flashforge-api-server/internal/models"

// Targets lists the addresses of one event type
type Targets struct {
	Emails     []string
	Webhooks   []string
	MQTTTopics []string
}

// Empty reports whether no destination is configured
func (t Targets) Empty() bool {
	return len(t.Emails) == 0 && len(t.Webhooks) == 0 && len(t.MQTTTopics) == 0
}

// Override replaces the default targets of one printer. Nil fields keep the defaults.
type Override struct {
	OnDone   *Targets
	OnFailed *Targets
}

// Routes resolves destinations from configuration
type Routes struct {
	OnDone   Targets
	OnFailed Targets
	Printers map[string]Override

	// SMTP is required for email targets, MQTT for topic targets; targets
	// without their transport are skipped.
	SMTP *SMTPConfig
	MQTT Publisher

	// NewWebhook builds webhook destinations; nil uses NewWebhook
	NewWebhook func(url string) Destination
}

// Destinations implements Resolver
func (r *Routes) Destinations(printer string, outcome models.JobOutcome) []Destination {
	targets := r.targets(printer, outcome)

	var out []Destination
	if len(targets.Emails) > 0 && r.SMTP != nil {
		out = append(out, NewEmail(*r.SMTP, targets.Emails))
	}
	for _, url := range targets.Webhooks {
		if r.NewWebhook != nil {
			out = append(out, r.NewWebhook(url))
		} else {
			out = append(out, NewWebhook(url))
		}
	}
	if r.MQTT != nil {
		for _, topic := range targets.MQTTTopics {
			out = append(out, NewMQTTTopic(topic, r.MQTT))
		}
	}
	return out
}

func (r *Routes) targets(printer string, outcome models.JobOutcome) Targets {
	override := r.Printers[printer]
	if outcome == models.JobCompleted {
		if override.OnDone != nil {
			return *override.OnDone
		}
		return r.OnDone
	}
	if override.OnFailed != nil {
		return *override.OnFailed
	}
	return r.OnFailed
}
