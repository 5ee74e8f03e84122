package websockets

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Upgrader is the WebSocket upgrader configuration
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024, // camera frames
	// Printers live on the local network; restrict with SetAllowedOrigins
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
		http.Error(w, reason.Error(), status)
	},
}

// SetCheckOrigin updates the CheckOrigin function
func SetCheckOrigin(checkOrigin func(r *http.Request) bool) {
	Upgrader.CheckOrigin = checkOrigin
}

// SetAllowedOrigins only accepts upgrades from the listed origin hosts. Requests
// without an Origin header (non-browser clients) are always accepted.
func SetAllowedOrigins(origins []string) {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}
	SetCheckOrigin(func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return allowed[strings.ToLower(u.Scheme+"://"+u.Host)] || allowed[strings.ToLower(u.Host)]
	})
}
