package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Jackzmc/flashforge-api-server/internal/api"
	"github.com/Jackzmc/flashforge-api-server/internal/service"
	"github.com/Jackzmc/flashforge-api-server/internal/websockets"
)

// StreamBoundary separates frames of the multipart camera stream
const StreamBoundary = "frame"

// CameraHandler serves snapshots and live camera streams
type CameraHandler struct {
	printerService *service.PrinterService
}

func NewCameraHandler(printerService *service.PrinterService) *CameraHandler {
	return &CameraHandler{printerService: printerService}
}

func noCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// Snapshot returns a single JPEG frame
func (h *CameraHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	frame, err := h.printerService.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		api.PrinterError(w, err)
		return
	}

	noCache(w.Header())
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

// Stream relays the camera as multipart/x-mixed-replace until the client leaves
// or the upstream fails.
func (h *CameraHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sub, err := h.printerService.Subscribe(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		api.PrinterError(w, err)
		return
	}
	defer sub.Close()

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(StreamBoundary); err != nil {
		api.PrinterError(w, err)
		return
	}

	noCache(w.Header())
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+StreamBoundary)
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	rc.Flush()

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	for frame := range sub.Frames() {
		header.Set("Content-Length", strconv.Itoa(len(frame)))
		part, err := mw.CreatePart(header)
		if err != nil {
			return
		}
		if _, err := part.Write(frame); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// WebSocket sends one binary message per frame
func (h *CameraHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["id"]
	// Subscribe before upgrading so errors are still plain HTTP responses.
	// The subscription outlives the request context once hijacked, ServeFrames closes it.
	sub, err := h.printerService.Subscribe(context.WithoutCancel(r.Context()), name)
	if err != nil {
		api.PrinterError(w, err)
		return
	}

	conn, err := websockets.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	websockets.ServeFrames(conn, sub)
}
