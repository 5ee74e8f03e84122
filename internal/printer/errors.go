package printer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Jackzmc/flashforge-api-server/internal/protocol"
)

// ErrNotFound is matched by every NotFoundError
var ErrNotFound = errors.New("printer not found")

// NotFoundError is returned by Registry.Resolve for an unknown name
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("printer %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConnectionError reports a connect, I/O, timeout or decode failure on a printer socket.
// The socket has been closed by the time it is returned.
type ConnectionError struct {
	Printer string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("printer %s: %s: %v", e.Printer, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiring
func (e *ConnectionError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, errDeadline) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// CommandError is a well-formed response carrying the failure marker
type CommandError struct {
	Printer string
	Code    protocol.Code
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("printer %s rejected %s: %s", e.Printer, e.Code, e.Message)
}

var errDeadline = errors.New("deadline exceeded waiting for connection")
