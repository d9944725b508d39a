// Package statusws streams engine status changes to UI clients over a
// WebSocket.
package statusws

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/roach88/fieldsync/internal/engine"
)

// MessageTypeStatus tags a status update frame.
const MessageTypeStatus = "status"

// Message is the JSON frame sent for each status update.
type Message struct {
	Type      string        `json:"type"`
	Status    engine.Status `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// Source is the status publisher a Handler subscribes to.
// Implemented by engine.Engine.
type Source interface {
	Subscribe(fn func(engine.Status)) (unsubscribe func())
}

// Handler upgrades requests to WebSocket connections and forwards every
// status change of its source to each one.
//
// A connection receives the current status immediately, then each change.
// Updates are buffered per connection; a slow reader loses the oldest
// buffered updates, never the latest, and never blocks the engine.
type Handler struct {
	source         Source
	logger         *slog.Logger
	now            func() time.Time
	bufferSize     int
	writeTimeout   time.Duration
	originPatterns []string

	clients atomic.Int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithBufferSize sets the per-connection update buffer. Default: 8.
func WithBufferSize(n int) Option {
	return func(h *Handler) {
		h.bufferSize = n
	}
}

// WithWriteTimeout bounds a single frame write. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.writeTimeout = d
	}
}

// WithOriginPatterns allows cross-origin connections from matching hosts.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.originPatterns = patterns
	}
}

// WithNow sets the timestamp source for frames.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a Handler publishing the status of source.
func New(source Source, opts ...Option) *Handler {
	h := &Handler{
		source:       source,
		logger:       slog.Default(),
		now:          time.Now,
		bufferSize:   8,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ClientCount returns the number of open connections.
func (h *Handler) ClientCount() int {
	return int(h.clients.Load())
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	h.clients.Add(1)
	defer h.clients.Add(-1)

	// Clients never send frames; any read (including close) ends the stream
	ctx := conn.CloseRead(r.Context())

	box := newMailbox(h.bufferSize)
	unsubscribe := h.source.Subscribe(box.push)
	defer unsubscribe()

	h.logger.Debug("status client connected", "remote", r.RemoteAddr, "clients", h.ClientCount())

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("status client disconnected", "remote", r.RemoteAddr)
			return
		case s := <-box.ch:
			if err := h.write(ctx, conn, s); err != nil {
				h.logger.Debug("status write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, s engine.Status) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, Message{
		Type:      MessageTypeStatus,
		Status:    s,
		Timestamp: h.now().UTC(),
	})
}
