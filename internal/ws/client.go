package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max inbound frame size
	maxMessageSize = 64 * 1024
)

// Client binds one websocket connection to its hub session. It is the
// session's Sink: frames queue on send and WritePump drains them.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	log     *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, buffer int) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, buffer),
	}
	c.session = hub.NewSession(c)
	c.log = hub.log.With("conn", c.session.id)
	return c
}

func (c *Client) Session() *Session {
	return c.session
}

// Deliver never blocks. A client whose buffer is full is treated as a slow
// consumer: its queue is closed, which makes WritePump hang up.
func (c *Client) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("[CLIENT] Client buffer full, disconnecting")
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps frames from the websocket into the hub until the connection
// fails, then runs the session's disconnect cleanup.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(ctx, c.session)
		c.Close()
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
				c.log.Warn("[CLIENT] Unexpected close", "error", err)
			}
			return
		}

		c.hub.Dispatch(ctx, c.session, message)
	}
}

// WritePump pumps queued frames and keepalive pings to the websocket.
func (c *Client) WritePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.log.Error("[CLIENT] Failed to get writer", "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.log.Error("[CLIENT] Failed to close writer", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error("[CLIENT] Failed to send ping", "error", err)
				return
			}
		}
	}
}
