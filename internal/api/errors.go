package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Jackzmc/flashforge-api-server/internal/camera"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
	"github.com/Jackzmc/flashforge-api-server/internal/protocol"
)

// Error codes returned in the "error" field
const (
	CodeUnknownPrinter = "UNKNOWN_PRINTER"
	CodePrinterError   = "PRINTER_ERROR"
	CodePrinterTimeout = "PRINTER_TIMEOUT"
	CodeBadRequest     = "BAD_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNoCamera       = "NO_CAMERA"
	CodeCameraError    = "CAMERA_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: code, Message: message})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="flashforge"`)
	Error(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, CodeNotFound, message)
}

// Status maps an error from the printer or camera layers to an HTTP status and code
func Status(err error) (int, string) {
	var (
		connErr   *printer.ConnectionError
		cmdErr    *printer.CommandError
		encErr    *protocol.EncodingError
		decErr    *protocol.DecodeError
		parseErr  *protocol.ParseError
		streamErr *camera.StreamError
	)
	switch {
	case errors.Is(err, printer.ErrNotFound):
		return http.StatusNotFound, CodeUnknownPrinter
	case errors.As(err, &encErr):
		return http.StatusBadRequest, CodeBadRequest
	case errors.As(err, &connErr):
		if connErr.Timeout() {
			return http.StatusGatewayTimeout, CodePrinterTimeout
		}
		return http.StatusBadGateway, CodePrinterError
	case errors.As(err, &cmdErr), errors.As(err, &decErr), errors.As(err, &parseErr):
		return http.StatusBadGateway, CodePrinterError
	case errors.Is(err, camera.ErrNoCamera):
		return http.StatusNotFound, CodeNoCamera
	case errors.As(err, &streamErr), errors.Is(err, camera.ErrClosed):
		return http.StatusBadGateway, CodeCameraError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodePrinterTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// PrinterError writes err using the mapping of Status
func PrinterError(w http.ResponseWriter, err error) {
	status, code := Status(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", "code", code, "error", err)
	}
	Error(w, status, code, err.Error())
}
