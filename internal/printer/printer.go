package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/protocol"
)

// Printer pairs a configured identity with its control connection
type Printer struct {
	identity models.PrinterIdentity
	conn     *Connection
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Printer. The connection is opened lazily.
func New(identity models.PrinterIdentity, opts Options) *Printer {
	opts = opts.withDefaults()
	return &Printer{
		identity: identity,
		conn:     NewConnection(identity.Name, identity.ControlAddress(), opts.DialTimeout, opts.Logger),
		timeout:  opts.CommandTimeout,
		logger:   opts.Logger.With("printer", identity.Name),
	}
}

func (p *Printer) Identity() models.PrinterIdentity { return p.identity }
func (p *Printer) Name() string                     { return p.identity.Name }
func (p *Printer) Connection() *Connection          { return p.conn }

// Send issues a raw request with the printer's command timeout
func (p *Printer) Send(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	return p.conn.Send(ctx, req, p.timeout)
}

// Info queries the machine information (M115)
func (p *Printer) Info(ctx context.Context) (*models.Info, error) {
	resp, err := p.Send(ctx, protocol.GetInfo())
	if err != nil {
		return nil, err
	}
	return protocol.ParseInfo(resp)
}

// Status queries the machine status (M119)
func (p *Printer) Status(ctx context.Context) (*models.Status, error) {
	resp, err := p.Send(ctx, protocol.GetStatus())
	if err != nil {
		return nil, err
	}
	return protocol.ParseStatus(resp)
}

// Temperatures queries the sensor readings (M105)
func (p *Printer) Temperatures(ctx context.Context) (models.Temperatures, error) {
	resp, err := p.Send(ctx, protocol.GetTemperature())
	if err != nil {
		return nil, err
	}
	return protocol.ParseTemperatures(resp)
}

// HeadPosition queries the head coordinates (M114)
func (p *Printer) HeadPosition(ctx context.Context) (*models.HeadPosition, error) {
	resp, err := p.Send(ctx, protocol.GetHeadPosition())
	if err != nil {
		return nil, err
	}
	return protocol.ParseHeadPosition(resp)
}

// Progress queries the print progress (M27)
func (p *Printer) Progress(ctx context.Context) (*models.Progress, error) {
	resp, err := p.Send(ctx, protocol.GetProgress())
	if err != nil {
		return nil, err
	}
	return protocol.ParseProgress(resp)
}

// SetTemperature sets the target of extruder index
func (p *Printer) SetTemperature(ctx context.Context, index int, celsius float64) error {
	_, err := p.Send(ctx, protocol.SetTemperature(index, celsius))
	return err
}

// SetLED sets the chamber light colour
func (p *Printer) SetLED(ctx context.Context, r, g, b int) error {
	_, err := p.Send(ctx, protocol.SetLED(r, g, b))
	return err
}

// Poll gathers status, temperatures, position and progress in one pass.
// Status and progress are required. A temperature or position reply that does
// not parse is logged and left empty; any other failure aborts the poll.
func (p *Printer) Poll(ctx context.Context) (*models.ParsedStatus, error) {
	status, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to poll status: %w", err)
	}
	out := &models.ParsedStatus{Status: *status}

	temps, err := p.Temperatures(ctx)
	switch {
	case err == nil:
		out.Temperatures = temps
	case isParseError(err):
		p.logger.Warn("ignoring unparseable temperatures", "error", err)
	default:
		return nil, fmt.Errorf("failed to poll temperatures: %w", err)
	}

	pos, err := p.HeadPosition(ctx)
	switch {
	case err == nil:
		out.Position = *pos
	case isParseError(err):
		p.logger.Warn("ignoring unparseable head position", "error", err)
	default:
		return nil, fmt.Errorf("failed to poll head position: %w", err)
	}

	progress, err := p.Progress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to poll progress: %w", err)
	}
	out.Progress = *progress

	return out, nil
}

func isParseError(err error) bool {
	var parseErr *protocol.ParseError
	return errors.As(err, &parseErr)
}

// Close releases the printer connection
func (p *Printer) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}
