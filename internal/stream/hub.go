package stream

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"fixture-edge/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const broadcastBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans graded alerts out to websocket subscribers. Slow subscribers are
// dropped rather than allowed to stall a cycle.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast chan AlertPayload
	stopped   chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan AlertPayload, broadcastBuffer),
		stopped:   make(chan struct{}),
	}
}

// Run delivers queued alerts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case p := <-h.broadcast:
			h.deliver(p)
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case <-h.stopped:
		c.close()
		return
	default:
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("stream client %s connected (total: %d)", c.ID, n)
}

func (h *Hub) Unregister(c *Client) { h.remove(c) }

// Notify queues an alert for subscribers. A full queue drops the alert with a
// log line; the stream is best effort and never fails a dispatch.
func (h *Hub) Notify(ctx context.Context, a domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case h.broadcast <- newAlertPayload(a):
	default:
		log.Printf("stream broadcast buffer full, dropping alert for %s", a.EventKey)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream upgrade error: %v", err)
		return
	}

	c := newClient(uuid.NewString(), conn, h)
	h.Register(c)

	go c.writePump(h.stopped)
	go c.readPump()
}

func (h *Hub) deliver(p AlertPayload) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	msg := ServerMessage{Type: MessageTypeAlert, Alert: &p, Timestamp: time.Now().UTC()}
	for _, c := range clients {
		if !c.accepts(p) {
			continue
		}
		if !c.trySend(msg) {
			log.Printf("stream client %s buffer full, disconnecting", c.ID)
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		log.Printf("stream client %s disconnected (total: %d)", c.ID, n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
