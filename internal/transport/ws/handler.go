// Package ws serves the realtime chat protocol over websockets: JSON frames
// of the form {"event": ..., "data": ...}.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 64 << 10
)

// Handler upgrades connections and runs one session per socket.
type Handler struct {
	convs    Conversations
	chat     Chat
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
	live     sync.WaitGroup
}

// NewHandler creates a websocket handler. allowedOrigins empty means any origin.
func NewHandler(convs Conversations, chat Chat, allowedOrigins []string, logger *zap.Logger) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	return &Handler{
		convs: convs,
		chat:  chat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP handles GET /ws?userId=. A missing userId gets a fresh one,
// announced to the client in a "session" event.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		userID = uuid.NewString()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.live.Add(1)
	h.mu.Unlock()
	defer h.live.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrame)
	s := newSession(conn, userID, h.convs, h.chat, h.logger.With(zap.String("user_id", userID)))
	if !h.track(s) {
		s.stop()
		return
	}
	defer h.untrack(s)
	s.run(r.Context())
}

// Shutdown stops accepting sessions, closes the live ones once their in-flight
// answers are recorded and waits for them to end. http.Server.Shutdown does not
// wait for hijacked connections, so call this after it.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	live := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		go s.stop()
	}

	done := make(chan struct{})
	go func() {
		h.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range live {
			_ = s.conn.Close()
		}
		return ctx.Err()
	}
}

func (h *Handler) track(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	return true
}

func (h *Handler) untrack(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}
