package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// Options tunes printer connections
type Options struct {
	CommandTimeout time.Duration
	DialTimeout    time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Registry is the fixed set of printers known to the server. It is built once at
// startup and only read afterwards, so lookups need no locking.
type Registry struct {
	order    []string
	printers map[string]*Printer
}

// NewRegistry builds a registry. Names must be unique and non-empty.
func NewRegistry(identities []models.PrinterIdentity, opts Options) (*Registry, error) {
	r := &Registry{
		order:    make([]string, 0, len(identities)),
		printers: make(map[string]*Printer, len(identities)),
	}
	for _, id := range identities {
		if id.Name == "" {
			return nil, errors.New("printer name must not be empty")
		}
		if _, dup := r.printers[id.Name]; dup {
			return nil, fmt.Errorf("duplicate printer name %q", id.Name)
		}
		r.order = append(r.order, id.Name)
		r.printers[id.Name] = New(id, opts)
	}
	return r, nil
}

// Resolve returns the printer called name or a *NotFoundError
func (r *Registry) Resolve(name string) (*Printer, error) {
	p, ok := r.printers[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return p, nil
}

// List returns the printer names in configuration order
func (r *Registry) List() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Printers returns the printers in configuration order
func (r *Registry) Printers() []*Printer {
	out := make([]*Printer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.printers[name])
	}
	return out
}

// Identities returns the printer identities in configuration order
func (r *Registry) Identities() []models.PrinterIdentity {
	out := make([]models.PrinterIdentity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.printers[name].Identity())
	}
	return out
}

// Close closes every printer connection
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, p := range r.Printers() {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
