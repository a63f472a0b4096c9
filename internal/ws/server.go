package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tausound/server/internal/dispatch"
	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/health"
	"github.com/tausound/server/internal/slot"
)

// Handler answers commands for one kind. *dispatch.Dispatcher is one.
type Handler interface {
	Handle(ctx context.Context, cmd dispatch.Command) dispatch.Result
}

// Channel is everything the server needs to expose one session kind.
type Channel struct {
	Kind        string
	Handler     Handler
	Broadcaster *Broadcaster
	Live        func() []slot.Info
}

type Options struct {
	Auth           Authenticator
	AllowedOrigins []string
	Health         *health.Checker
	Logger         *slog.Logger
}

type Server struct {
	channels       []Channel
	auth           Authenticator
	health         *health.Checker
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	logger         *slog.Logger

	// base is the parent of every connection context; cancelled by Close.
	base   context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

func NewServer(channels []Channel, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		channels:       channels,
		auth:           opts.Auth,
		health:         opts.Health,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		logger:         logger.With("component", "ws"),
		base:           base,
		cancel:         cancel,
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	for i := range s.channels {
		ch := &s.channels[i]
		mux.HandleFunc("/ws/"+ch.Kind, func(w http.ResponseWriter, r *http.Request) {
			s.handleWS(w, r, ch)
		})
	}
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/health", s.handleHealth)
}

// Handler returns the routed mux wrapped with security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

// Close cancels in-flight commands and waits for connection loops to end.
func (s *Server) Close() {
	s.cancel()
	for _, ch := range s.channels {
		ch.Broadcaster.Stop()
	}
	s.conns.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, ch *Channel) {
	if !s.auth.Authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", "error", err)
		return
	}

	c, err := ch.Broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warn("ws client rejected", "kind", ch.Kind, "remote", r.RemoteAddr, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}
	s.logger.Info("ws client connected", "kind", ch.Kind, "client", c.id, "remote", r.RemoteAddr)

	if ch.Live != nil {
		ch.Broadcaster.send(c, WSMessage{
			Type:    MsgSnapshot,
			Payload: SnapshotPayload{Kind: ch.Kind, Slots: ch.Live()},
		})
	}

	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		defer func() {
			ch.Broadcaster.RemoveClient(c)
			s.logger.Info("ws client disconnected", "kind", ch.Kind, "client", c.id)
		}()
		s.readLoop(ch, c)
	}()
}

// readLoop reads one connection's commands. Commands for the same slot are
// handled in arrival order.
func (s *Server) readLoop(ch *Channel, c *client) {
	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	l := newLanes(func(req Request) {
		res := ch.Handler.Handle(ctx, req)
		ch.Broadcaster.send(c, newResultMessage(req.ID, res))
	})
	defer l.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			res := dispatch.Failure(apperrors.InvalidArgument("frame", "malformed request: %v", err))
			ch.Broadcaster.send(c, newResultMessage(0, res))
			continue
		}
		if !l.submit(ctx, req) {
			return
		}
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessions := make(map[string][]slot.Info, len(s.channels))
	for _, ch := range s.channels {
		if ch.Live != nil {
			sessions[ch.Kind] = ch.Live()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.health == nil {
		http.Error(w, "health not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.health.Report(r.Context()))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves h on addr until ctx is done, then shuts down.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
