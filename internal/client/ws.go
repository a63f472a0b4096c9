package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	frameBuffer  = 256
)

// ErrClosed is returned by Call once the connection is gone.
var ErrClosed = errors.New("connection closed")

// WSClient is one connection to a kind's channel. Results are matched to
// their Call by id; every other frame is delivered on Frames.
type WSClient struct {
	kind string
	conn *websocket.Conn

	writeMu sync.Mutex // serialises all conn writes

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan Frame
	err     error

	frames chan Frame
	done   chan struct{}
}

// ChannelURL builds the websocket URL of kind from an http(s) base URL.
func ChannelURL(base, kind string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/" + kind
}

// Dial connects to kind's channel under base.
func Dial(ctx context.Context, base, kind, token string) (*WSClient, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ChannelURL(base, kind), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", kind, err)
	}

	c := &WSClient{
		kind:    kind,
		conn:    conn,
		pending: make(map[int64]chan Frame),
		frames:  make(chan Frame, frameBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *WSClient) Kind() string { return c.kind }

// Frames delivers snapshot and event frames. It is closed when the
// connection ends.
func (c *WSClient) Frames() <-chan Frame { return c.frames }

// Done is closed when the connection ends.
func (c *WSClient) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended.
func (c *WSClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *WSClient) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// Call sends a command and waits for its result.
func (c *WSClient) Call(ctx context.Context, method string, slot *int, args any) (Result, error) {
	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	req := Request{ID: id, Method: method, Slot: slot, Args: args}
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return Result{}, err
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return Result{}, ErrClosed
		}
		return Result{Status: f.Status, Value: f.Value, Err: f.Error}, nil
	case <-ctx.Done():
		c.forget(id)
		return Result{}, ctx.Err()
	}
}

func (c *WSClient) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WSClient) readLoop() {
	defer close(c.done)
	defer close(c.frames)

	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		if f.Type == MsgResult {
			c.mu.Lock()
			ch := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}
			continue
		}

		select {
		case c.frames <- f:
		default:
			// Consumer too slow; events are advisory.
		}
	}
}

func (c *WSClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.conn.Close()
}

// pingLoop sends periodic pings until the connection ends.
func (c *WSClient) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when a channel connects.
type ConnectedMsg struct{ Client *WSClient }

// DisconnectedMsg is sent when a channel drops or cannot be reached.
type DisconnectedMsg struct {
	Kind string
	Err  error
}

// FrameMsg delivers one snapshot or event frame.
type FrameMsg struct {
	Kind  string
	Frame Frame
}

// Connect returns a command that dials kind once.
func Connect(ctx context.Context, base, kind, token string) tea.Cmd {
	return func() tea.Msg {
		c, err := Dial(ctx, base, kind, token)
		if err != nil {
			return DisconnectedMsg{Kind: kind, Err: err}
		}
		return ConnectedMsg{Client: c}
	}
}

// WaitFrame returns a command that delivers the next frame.
func (c *WSClient) WaitFrame() tea.Cmd {
	return func() tea.Msg {
		f, ok := <-c.frames
		if !ok {
			return DisconnectedMsg{Kind: c.kind, Err: c.Err()}
		}
		return FrameMsg{Kind: c.kind, Frame: f}
	}
}
