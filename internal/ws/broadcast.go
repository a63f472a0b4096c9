package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tausound/server/internal/event"
)

// ErrTooManyConnections is returned by AddClient when the channel is full.
var ErrTooManyConnections = errors.New("too many connections")

const sendBuffer = 64

type client struct {
	id   string
	conn *websocket.Conn
	b    *Broadcaster

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, b *Broadcaster) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// trySend queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Broadcaster fans one kind's events out to every client connected to that
// kind's channel. It is the kind's event.Sink.
type Broadcaster struct {
	kind     string
	maxConns int
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

var _ event.Sink = (*Broadcaster)(nil)

// NewBroadcaster returns a broadcaster admitting at most maxConns clients;
// zero means unlimited.
func NewBroadcaster(kind string, maxConns int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		kind:     kind,
		maxConns: maxConns,
		logger:   logger.With("component", "broadcast", "kind", kind),
		clients:  make(map[*client]bool),
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}
	c := newClient(conn, b)
	b.clients[c] = true
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Deliver broadcasts ev. Clients that cannot keep up are disconnected; that
// is not a delivery failure.
func (b *Broadcaster) Deliver(ev event.Event) error {
	data, err := json.Marshal(newEventMessage(ev))
	if err != nil {
		return err
	}
	b.broadcast(data)
	return nil
}

func (b *Broadcaster) broadcast(data []byte) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			b.logger.Warn("ws client too slow, disconnecting", "client", c.id)
			b.RemoveClient(c)
		}
	}
}

// send queues a message for one client, disconnecting it when it cannot
// keep up.
func (b *Broadcaster) send(c *client, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal reply", "error", err)
		return
	}
	if !c.trySend(data) {
		b.logger.Warn("ws client too slow, disconnecting", "client", c.id)
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop disconnects every client.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}
