package camera

import (
	"log/slog"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// Options configures a Manager
type Options struct {
	Buffer int
	Logger *slog.Logger
	// SourceFor overrides how upstream sources are built
	SourceFor func(models.PrinterIdentity) Source
}

// Manager owns one relay per printer that has a camera
type Manager struct {
	relays map[string]*Relay
}

// NewManager creates an idle relay for every identity with a camera port
func NewManager(identities []models.PrinterIdentity, opts Options) *Manager {
	sourceFor := opts.SourceFor
	if sourceFor == nil {
		sourceFor = func(id models.PrinterIdentity) Source {
			return NewMJPEGSource(id.CameraURL())
		}
	}

	m := &Manager{relays: make(map[string]*Relay)}
	for _, id := range identities {
		if !id.HasCamera() {
			continue
		}
		m.relays[id.Name] = NewRelay(id.Name, sourceFor(id), opts.Buffer, opts.Logger)
	}
	return m
}

// Relay returns the relay of a printer, or ErrNoCamera
func (m *Manager) Relay(name string) (*Relay, error) {
	r, ok := m.relays[name]
	if !ok {
		return nil, ErrNoCamera
	}
	return r, nil
}

// Stats returns relay counters keyed by printer name
func (m *Manager) Stats() map[string]Stats {
	out := make(map[string]Stats, len(m.relays))
	for name, r := range m.relays {
		out[name] = r.Stats()
	}
	return out
}

// Close shuts every relay down
func (m *Manager) Close() {
	for _, r := range m.relays {
		r.Close()
	}
}
