package service

import (
	"context"

	"github.com/Jackzmc/flashforge-api-server/internal/camera"
	"github.com/Jackzmc/flashforge-api-server/internal/db/repository"
	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
	"github.com/Jackzmc/flashforge-api-server/internal/watcher"
)

// PrinterService handles printer-related operations for the HTTP API
type PrinterService struct {
	registry *printer.Registry
	cameras  *camera.Manager
	jobs     repository.JobRepository
	watchers *watcher.Group
}

// NewPrinterService creates a new printer service. cameras, jobs and watchers may be nil.
func NewPrinterService(registry *printer.Registry, cameras *camera.Manager, jobs repository.JobRepository, watchers *watcher.Group) *PrinterService {
	return &PrinterService{
		registry: registry,
		cameras:  cameras,
		jobs:     jobs,
		watchers: watchers,
	}
}

// List returns the printer names in configuration order
func (s *PrinterService) List() []string {
	return s.registry.List()
}

func (s *PrinterService) Info(ctx context.Context, name string) (*models.Info, error) {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.Info(ctx)
}

func (s *PrinterService) Status(ctx context.Context, name string) (*models.Status, error) {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.Status(ctx)
}

func (s *PrinterService) Temperatures(ctx context.Context, name string) (models.Temperatures, error) {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.Temperatures(ctx)
}

func (s *PrinterService) HeadPosition(ctx context.Context, name string) (*models.HeadPosition, error) {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.HeadPosition(ctx)
}

func (s *PrinterService) Progress(ctx context.Context, name string) (*models.Progress, error) {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.Progress(ctx)
}

// Poll reads every status field of a printer at once
func (s *PrinterService) Poll(ctx context.Context, name string) (*models.ParsedStatus, error) {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.Poll(ctx)
}

func (s *PrinterService) SetTemperature(ctx context.Context, name string, index int, celsius float64) error {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return err
	}
	return p.SetTemperature(ctx, index, celsius)
}

func (s *PrinterService) SetLED(ctx context.Context, name string, r, g, b int) error {
	p, err := s.registry.Resolve(name)
	if err != nil {
		return err
	}
	return p.SetLED(ctx, r, g, b)
}

// relay resolves the printer first so unknown names are not reported as camera-less
func (s *PrinterService) relay(name string) (*camera.Relay, error) {
	if _, err := s.registry.Resolve(name); err != nil {
		return nil, err
	}
	if s.cameras == nil {
		return nil, camera.ErrNoCamera
	}
	return s.cameras.Relay(name)
}

// Snapshot returns one JPEG frame from the printer's camera
func (s *PrinterService) Snapshot(ctx context.Context, name string) ([]byte, error) {
	r, err := s.relay(name)
	if err != nil {
		return nil, err
	}
	return r.Snapshot(ctx)
}

// Subscribe attaches a viewer to the printer's camera until ctx is done or the
// subscription is closed.
func (s *PrinterService) Subscribe(ctx context.Context, name string) (*camera.Subscription, error) {
	r, err := s.relay(name)
	if err != nil {
		return nil, err
	}
	return r.Subscribe(ctx)
}

// Jobs returns the finished jobs of a printer, newest first
func (s *PrinterService) Jobs(ctx context.Context, name string, limit int) ([]models.JobRecord, error) {
	if _, err := s.registry.Resolve(name); err != nil {
		return nil, err
	}
	if s.jobs == nil {
		return []models.JobRecord{}, nil
	}
	return s.jobs.ListByPrinter(ctx, name, limit)
}

// PrinterHealth summarizes one printer for the health endpoint
type PrinterHealth struct {
	Name       string           `json:"name"`
	Connection printer.Health   `json:"connection"`
	Camera     *camera.Stats    `json:"camera,omitempty"`
	Job        *models.JobState `json:"job,omitempty"`
}

// Health reports connection, camera and job state of every printer without
// touching the network.
func (s *PrinterService) Health() []PrinterHealth {
	var stats map[string]camera.Stats
	if s.cameras != nil {
		stats = s.cameras.Stats()
	}

	out := make([]PrinterHealth, 0, len(s.registry.List()))
	for _, p := range s.registry.Printers() {
		h := PrinterHealth{
			Name:       p.Name(),
			Connection: p.Connection().Health(),
		}
		if st, ok := stats[p.Name()]; ok {
			h.Camera = &st
		}
		if s.watchers != nil {
			if w, ok := s.watchers.Watcher(p.Name()); ok {
				job := w.JobState()
				h.Job = &job
			}
		}
		out = append(out, h)
	}
	return out
}
