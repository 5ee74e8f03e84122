package websockets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var printers []string
		if p := r.URL.Query().Get("printer"); p != "" {
			printers = strings.Split(p, ",")
		}
		ServeWs(hub, conn, printers)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", hub.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsWithFilter(t *testing.T) {
	hub, url := startHub(t)
	all := dial(t, url)
	onlyP2 := dial(t, url+"?printer=p2")
	waitClients(t, hub, 2)

	hub.Publish(models.PrinterEvent{Type: models.EventJobStarted, Printer: "p1", JobID: 1})
	hub.Publish(models.PrinterEvent{Type: models.EventJobFinished, Printer: "p2", JobID: 4, Outcome: models.JobCompleted})

	first := readMessage(t, all)
	if first.Type != TypeEvent || first.Printer != "p1" {
		t.Errorf("first message = %+v", first)
	}
	var event models.PrinterEvent
	if err := json.Unmarshal(first.Data, &event); err != nil || event.Type != models.EventJobStarted {
		t.Errorf("event = %+v, %v", event, err)
	}
	if second := readMessage(t, all); second.Printer != "p2" {
		t.Errorf("second message = %+v", second)
	}

	filtered := readMessage(t, onlyP2)
	if filtered.Printer != "p2" {
		t.Errorf("filtered client got %+v, want only p2 events", filtered)
	}
}

func TestHubSubscribeAndPing(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	if err := conn.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != TypePong {
		t.Fatalf("reply = %+v, want pong", msg)
	}

	if err := conn.WriteJSON(Message{Type: TypeSubscribe, Data: json.RawMessage(`{"printers":["p9"]}`)}); err != nil {
		t.Fatal(err)
	}
	// The ping round trip orders the subscribe before the publishes
	conn.WriteJSON(Message{Type: TypePing})
	readMessage(t, conn)

	hub.Publish(models.PrinterEvent{Type: models.EventPrinterState, Printer: "p1"})
	hub.Publish(models.PrinterEvent{Type: models.EventPrinterState, Printer: "p9"})
	if msg := readMessage(t, conn); msg.Printer != "p9" {
		t.Errorf("message = %+v, want p9 only", msg)
	}
}

func TestHubDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Publish(models.PrinterEvent{Type: models.EventPrinterState, Printer: "p1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked without a running hub")
	}
	if got := hub.Dropped(); got != 300-256 {
		t.Errorf("Dropped() = %d, want %d", got, 300-256)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"abécd", 3, "ab"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want || !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
