package websockets

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096 // clients only send control messages
)

type MessageType string

const (
	TypeEvent     MessageType = "event"
	TypeSubscribe MessageType = "subscribe"
	TypeError     MessageType = "error"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
)

type Message struct {
	Type    MessageType     `json:"type"`
	Printer string          `json:"printer,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type subscribeData struct {
	Printers []string `json:"printers"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// control carries replies from readPump; unlike send it is never closed
	control chan []byte

	mu       sync.RWMutex
	printers map[string]bool // empty means every printer
}

func NewClient(hub *Hub, conn *websocket.Conn, printers []string) *Client {
	c := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		control: make(chan []byte, 16),
	}
	c.setPrinters(printers)
	return c
}

func (c *Client) setPrinters(printers []string) {
	filter := make(map[string]bool, len(printers))
	for _, p := range printers {
		if p != "" {
			filter[p] = true
		}
	}
	c.mu.Lock()
	c.printers = filter
	c.mu.Unlock()
}

// wants reports whether events of printer pass the client's filter
func (c *Client) wants(printer string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.printers) == 0 || c.printers[printer]
}

// reply queues a message for this client only
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.control <- data:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			break
		}

		var wsMessage Message
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			c.reply(Message{Type: TypeError, Data: json.RawMessage(`"invalid message"`)})
			continue
		}

		switch wsMessage.Type {
		case TypeSubscribe:
			var data subscribeData
			if err := json.Unmarshal(wsMessage.Data, &data); err != nil {
				c.reply(Message{Type: TypeError, Data: json.RawMessage(`"invalid subscribe data"`)})
				continue
			}
			c.setPrinters(data.Printers)

		case TypePing:
			c.reply(Message{Type: TypePong})

		default:
			c.reply(Message{Type: TypeError, Data: json.RawMessage(`"unsupported message type"`)})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON message per frame so clients can parse each independently
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs registers conn with the hub. printers optionally limits the events sent.
func ServeWs(hub *Hub, conn *websocket.Conn, printers []string) {
	client := NewClient(hub, conn, printers)

	if !hub.add(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
