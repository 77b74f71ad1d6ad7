package stream

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

type unregisterer interface {
	Unregister(c *Client)
}

// Client is one websocket subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan ServerMessage
	hub  unregisterer

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	filter Filter
}

func newClient(id string, conn *websocket.Conn, hub unregisterer) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan ServerMessage, sendBufferSize),
		hub:  hub,
		done: make(chan struct{}),
	}
}

// close stops the write pump. The send channel stays open so late sends never panic.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump consumes subscribe messages until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("stream client %s closed: %v", c.ID, err)
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			c.setFilter(msg.Filter)
			filter := msg.Filter
			c.trySend(ServerMessage{Type: MessageTypeSubscribed, Filter: &filter, Timestamp: time.Now().UTC()})
		default:
			c.trySend(ServerMessage{Type: MessageTypeError, Error: "unknown message type " + msg.Type, Timestamp: time.Now().UTC()})
		}
	}
}

// writePump owns all writes to the connection.
func (c *Client) writePump(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("stream client %s write error: %v", c.ID, err)
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

// trySend reports false when the client's buffer is full.
func (c *Client) trySend(msg ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) setFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

func (c *Client) accepts(p AlertPayload) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.matches(p)
}
