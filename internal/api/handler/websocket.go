package handler

import (
	"net/http"
	"strings"

	"github.com/Jackzmc/flashforge-api-server/internal/api"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
	"github.com/Jackzmc/flashforge-api-server/internal/websockets"
)

type WebSocketHandler struct {
	hub      *websockets.Hub
	registry *printer.Registry
}

func NewWebSocketHandler(hub *websockets.Hub, registry *printer.Registry) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		registry: registry,
	}
}

// ServeHTTP upgrades to the event stream. ?printer=a,b limits the events to those printers.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var printers []string
	if filter := r.URL.Query().Get("printer"); filter != "" {
		for _, name := range strings.Split(filter, ",") {
			if _, err := h.registry.Resolve(name); err != nil {
				api.PrinterError(w, err)
				return
			}
			printers = append(printers, name)
		}
	}

	conn, err := websockets.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// If upgrading fails, the upgrader has already written the error to the response
		return
	}

	websockets.ServeWs(h.hub, conn, printers)
}
