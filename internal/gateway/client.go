package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"charting-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
	controlTimeout = 5 * time.Second
)

// Client is a single websocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// subMu guards the subscription state and orders record delivery.
	subMu   sync.Mutex
	symbols map[string]struct{}
	floor   map[string]uint64 // symbol -> Seq of the last snapshot sent
	last    map[string]uint64 // record key -> Seq of the last record sent
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		symbols: make(map[string]struct{}),
		floor:   make(map[string]uint64),
		last:    make(map[string]uint64),
	}
}

// offerLive queues a broadcast record unless the client is not subscribed
// to its symbol or already holds the same or a newer state. Unsequenced
// records always pass. Must be called with hub.mu held.
func (c *Client) offerLive(r *model.Record, encode func() []byte) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, ok := c.symbols[r.Symbol]; !ok {
		return
	}
	if r.Seq != 0 {
		key := r.Key()
		if r.Seq <= c.floor[r.Symbol] || r.Seq <= c.last[key] {
			return
		}
		c.last[key] = r.Seq
	}
	c.hub.queue(c, encode())
}

// sendSnapshot queues the latest records of symbol. Records older than
// one already delivered are skipped, and later broadcasts computed before
// the snapshot are dropped.
func (c *Client) sendSnapshot(symbol string, records []model.Record) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, ok := c.symbols[symbol]; !ok {
		return
	}
	for i := range records {
		r := &records[i]
		if r.Seq != 0 {
			if r.Seq > c.floor[symbol] {
				c.floor[symbol] = r.Seq
			}
			key := r.Key()
			if r.Seq <= c.last[key] {
				continue
			}
			c.last[key] = r.Seq
		}
		c.hub.queue(c, r.MessageJSON())
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("ws read failed", "error", err)
			}
			return
		}
		var msg InboundMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError(msg, "invalid message: "+err.Error())
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg InboundMsg) {
	if msg.Type == "" && msg.Ping > 0 {
		c.sendJSON(PongMsg{Type: "pong", Ping: msg.Ping, ServerTS: time.Now().UnixMilli()})
		return
	}
	if msg.Symbol == "" {
		c.sendError(msg, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	switch msg.Type {
	case MsgSubscribe:
		c.subMu.Lock()
		c.symbols[msg.Symbol] = struct{}{}
		c.subMu.Unlock()
		c.ack(msg)
		latest, err := c.hub.ctrl.Latest(ctx, msg.Symbol)
		if err != nil {
			c.sendError(msg, err.Error())
			return
		}
		c.sendSnapshot(msg.Symbol, latest)

	case MsgUnsubscribe:
		c.subMu.Lock()
		delete(c.symbols, msg.Symbol)
		c.subMu.Unlock()
		c.ack(msg)

	case MsgActivate, MsgDeactivate:
		if msg.ID == "" {
			c.sendError(msg, "id is required")
			return
		}
		var err error
		if msg.Type == MsgActivate {
			err = c.hub.ctrl.Activate(ctx, msg.Symbol, msg.ID)
		} else {
			err = c.hub.ctrl.Deactivate(ctx, msg.Symbol, msg.ID)
		}
		if err != nil {
			c.sendError(msg, err.Error())
			return
		}
		c.ack(msg)

	default:
		c.sendError(msg, "unknown message type "+msg.Type)
	}
}

func (c *Client) ack(msg InboundMsg) {
	c.sendJSON(AckMsg{Type: "ack", Action: msg.Type, Symbol: msg.Symbol, ID: msg.ID})
}

func (c *Client) sendError(msg InboundMsg, text string) {
	c.sendJSON(ErrorMsg{Type: "error", Symbol: msg.Symbol, ID: msg.ID, Error: text})
}

func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error("ws marshal failed", "error", err)
		return
	}
	c.sendBytes(data)
}

// sendBytes queues a reply unless the client is already gone.
func (c *Client) sendBytes(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.hub.queue(c, data)
	}
}
