package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"charting-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Controller is the engine side of the gateway: selection changes coming
// from clients and the latest records for a newly subscribed symbol.
type Controller interface {
	Activate(ctx context.Context, symbol, id string) error
	Deactivate(ctx context.Context, symbol, id string) error
	Latest(ctx context.Context, symbol string) ([]model.Record, error)
}

// HubHooks are optional metric callbacks.
type HubHooks struct {
	OnClients    func(n int) // connected client count changed
	OnSent       func()      // one message queued to a client
	OnSlowClient func()      // a message was dropped for a full client buffer
}

// Hub tracks websocket clients and pushes indicator records to those
// subscribed to the record's symbol.
type Hub struct {
	ctrl  Controller
	log   *slog.Logger
	hooks HubHooks

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. log may be nil.
func NewHub(ctrl Controller, log *slog.Logger, hooks HubHooks) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		ctrl:    ctrl,
		log:     log.With("component", "ws-hub"),
		hooks:   hooks,
		clients: make(map[*Client]struct{}),
	}
}

// Run broadcasts record batches from in until ctx is cancelled or in is
// closed, then disconnects every client.
func (h *Hub) Run(ctx context.Context, in <-chan []model.Record) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(batch)
		}
	}
}

// Broadcast queues every record to the clients subscribed to its symbol.
// A client whose buffer is full misses the message; the next record for
// the same indicator carries the full series again. A record older than
// what a client already received (for instance a batch still in flight
// when the client's subscribe snapshot was taken) is skipped for it.
func (h *Hub) Broadcast(records []model.Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}
	for i := range records {
		r := &records[i]
		var data []byte
		encode := func() []byte {
			if data == nil {
				data = r.MessageJSON()
			}
			return data
		}
		for c := range h.clients {
			c.offerLive(r, encode)
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.EnableWriteCompression(true)
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.clientsChanged(n)
	h.log.Info("ws client connected", "remote", r.RemoteAddr, "clients", n)

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	h.clientsChanged(n)
	h.log.Info("ws client disconnected", "clients", n)
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// queue must be called with h.mu held (read or write) so c.send is open.
func (h *Hub) queue(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		if h.hooks.OnSent != nil {
			h.hooks.OnSent()
		}
		return true
	default:
		if h.hooks.OnSlowClient != nil {
			h.hooks.OnSlowClient()
		}
		return false
	}
}

func (h *Hub) clientsChanged(n int) {
	if h.hooks.OnClients != nil {
		h.hooks.OnClients(n)
	}
}
