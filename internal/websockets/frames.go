package websockets

import (
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/Jackzmc/flashforge-api-server/internal/camera"
)

// ServeFrames writes every camera frame of sub as one binary message until the
// subscription ends or the peer goes away. It closes sub and conn.
func ServeFrames(conn *websocket.Conn, sub *camera.Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	// Reading is only needed to process control frames and notice the peer leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-sub.Frames():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				reason := "stream ended"
				if err := sub.Err(); err != nil {
					reason = err.Error()
				}
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, truncate(reason, 120)))
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-gone:
			return
		}
	}
}

// truncate keeps close reasons inside the control frame limit without
// splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
