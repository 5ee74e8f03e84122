// Package printer manages the TCP control connections to the configured printers.
package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/protocol"
)

// Default timeouts for printer I/O
const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultDialTimeout    = 3 * time.Second
)

// Health is a point-in-time view of a connection
type Health struct {
	Connected   bool      `json:"connected"`
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// Connection is the single control socket of one printer. At most one command
// is in flight at a time; callers queue on a semaphore that honours their context.
type Connection struct {
	name        string
	addr        string
	dialTimeout time.Duration
	logger      *slog.Logger

	sem    chan struct{}
	conn   net.Conn
	reader *protocol.Reader

	mu     sync.Mutex
	health Health
}

// NewConnection creates a connection to addr. Nothing is dialled until the first Send.
func NewConnection(name, addr string, dialTimeout time.Duration, logger *slog.Logger) *Connection {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		name:        name,
		addr:        addr,
		dialTimeout: dialTimeout,
		logger:      logger.With("printer", name),
		sem:         make(chan struct{}, 1),
	}
}

// Send writes one request and waits for its response. The exchange must finish
// before min(ctx deadline, now+timeout). Any transport or decode failure closes the
// socket and is returned as a *ConnectionError; the next Send reconnects.
// A response carrying the failure marker is returned along with a *CommandError.
func (c *Connection) Send(ctx context.Context, req protocol.Request, timeout time.Duration) (*protocol.Response, error) {
	payload, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.acquire(ctx, deadline); err != nil {
		return nil, &ConnectionError{Printer: c.name, Op: "acquire", Err: err}
	}
	defer c.release()

	if c.conn == nil {
		if err := c.connect(ctx, deadline); err != nil {
			c.fail(err)
			return nil, err
		}
	}

	resp, err := c.exchange(ctx, payload, req.Code, deadline)
	if err != nil {
		cerr := &ConnectionError{Printer: c.name, Op: "send " + string(req.Code), Err: err}
		c.teardown()
		c.fail(cerr)
		return nil, cerr
	}
	c.succeed()

	if !resp.OK {
		return resp, &CommandError{Printer: c.name, Code: req.Code, Message: resp.Message}
	}
	return resp, nil
}

func (c *Connection) acquire(ctx context.Context, deadline time.Time) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errDeadline
	}
}

func (c *Connection) release() {
	<-c.sem
}

// connect dials the printer and performs the control handshake. Caller holds the semaphore.
func (c *Connection) connect(ctx context.Context, deadline time.Time) error {
	dialDeadline := time.Now().Add(c.dialTimeout)
	if deadline.Before(dialDeadline) {
		dialDeadline = deadline
	}
	dialCtx, cancel := context.WithDeadline(ctx, dialDeadline)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return &ConnectionError{Printer: c.name, Op: "dial", Err: err}
	}
	c.conn = conn
	c.reader = protocol.NewReader(conn)

	payload, _ := protocol.Encode(protocol.Control())
	resp, err := c.exchange(ctx, payload, protocol.CodeControl, deadline)
	if err == nil && !resp.OK {
		err = fmt.Errorf("control refused: %s", resp.Message)
	}
	if err != nil {
		c.teardown()
		return &ConnectionError{Printer: c.name, Op: "handshake", Err: err}
	}

	c.logger.Debug("printer connected", "addr", c.addr)
	return nil
}

func (c *Connection) exchange(ctx context.Context, payload []byte, code protocol.Code, deadline time.Time) (*protocol.Response, error) {
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	// unblock pending I/O when the caller goes away
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.conn.Write(payload); err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	resp, err := c.reader.ReadResponse()
	if err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	if resp.Code != code {
		return nil, &protocol.DecodeError{Reason: fmt.Sprintf("response for %s while waiting for %s", resp.Code, code)}
	}
	return resp, nil
}

func (c *Connection) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (c *Connection) teardown() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

func (c *Connection) fail(err error) {
	c.logger.Warn("printer command failed", "error", err)
	c.mu.Lock()
	c.health.Connected = c.conn != nil
	c.health.Healthy = false
	c.health.LastError = err.Error()
	c.mu.Unlock()
}

func (c *Connection) succeed() {
	c.mu.Lock()
	c.health.Connected = true
	c.health.Healthy = true
	c.health.LastError = ""
	c.health.LastSuccess = time.Now()
	c.mu.Unlock()
}

// Healthy reports whether the last exchange succeeded
func (c *Connection) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health.Healthy
}

// Health returns a snapshot of the connection state
func (c *Connection) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// Close releases control of the printer and closes the socket. It waits for an
// in-flight command, bounded by ctx.
func (c *Connection) Close(ctx context.Context) error {
	if err := c.acquire(ctx, time.Now().Add(DefaultCommandTimeout)); err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", c.name, err)
	}
	defer c.release()
	if c.conn == nil {
		return nil
	}

	payload, _ := protocol.Encode(protocol.Release())
	if _, err := c.exchange(ctx, payload, protocol.CodeRelease, time.Now().Add(time.Second)); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("release before close failed", "error", err)
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil

	c.mu.Lock()
	c.health.Connected = false
	c.mu.Unlock()
	return err
}
