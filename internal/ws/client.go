package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/codecollab/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 256

	// Disconnect after this many rate-limited frames
	maxRateViolations = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one participant's websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

func (c *Client) ID() string {
	return c.id
}

// ServeWs upgrades the request and registers a new participant.
// An optional ?room= query parameter joins that room right away.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	hub.logger.Info("client connected", "conn_id", client.id, "remote", r.RemoteAddr)

	if roomID := r.URL.Query().Get("room"); roomID != "" {
		client.dispatch(protocol.EventJoinRoom, &protocol.JoinRoom{RoomID: roomID})
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) dispatch(event protocol.Event, payload any) bool {
	select {
	case c.hub.inbound <- &Inbound{Client: c, Event: event, Payload: payload}:
		return true
	case <-c.hub.done:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.logger.Info("client disconnected", "conn_id", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limiter := c.hub.limiters.Get(c.id)
	violations := 0

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}

		if !limiter.Allow() {
			violations++
			if violations%100 == 1 {
				c.hub.logger.Warn("rate limit exceeded", "conn_id", c.id, "violations", violations)
			}
			if violations > maxRateViolations {
				c.hub.logger.Warn("disconnecting client for excessive rate limit violations", "conn_id", c.id)
				return
			}
			continue
		}

		event, payload, err := protocol.Decode(frame)
		if err != nil {
			c.hub.logger.Warn("invalid message", "conn_id", c.id, "event", event, "error", err)
			continue
		}

		if !c.dispatch(event, payload) {
			return
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
