package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/internal/rooms"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Dispatcher applies one inbound frame from a peer
type Dispatcher interface {
	Dispatch(ctx context.Context, peer interfaces.Peer, data []byte) error
	Forget(connectionID string)
}

// Lifecycle is told when connections open and close
type Lifecycle interface {
	Track(peer interfaces.Peer) error
	Untrack(connectionID string)
}

// Config holds transport timings and limits
type Config struct {
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string
}

// DefaultConfig returns the transport settings used in production
func DefaultConfig() Config {
	return Config{
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 128 * 1024,
		SendBuffer:     100,
	}
}

// Handler upgrades signaling connections and runs their read loops.
// ARCHITECTURAL DISCOVERY: Transport only; join/leave/signal semantics live in
// the dispatcher and the room registry
type Handler struct {
	registry   *rooms.Registry
	dispatcher Dispatcher
	lifecycle  Lifecycle
	config     Config
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler. lifecycle may be nil.
func NewHandler(registry *rooms.Registry, dispatcher Dispatcher, lifecycle Lifecycle, config Config) *Handler {
	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		config:     config,
		logger:     log.With().Str("module", "gateway").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// checkOrigin allows every origin when none are configured
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. No authorization happens here: the session id a client joins was
// already approved by the eligibility gate.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn, h.config.SendBuffer, h.config.WriteTimeout)
	h.registry.Connect(wsConn)

	// Clients learn their own connection id before anything else
	if err := wsConn.Send(types.WelcomeMessage{
		Type:         types.MessageTypeWelcome,
		ConnectionID: wsConn.ID(),
	}); err != nil {
		h.logger.Warn().Err(err).Str("connection_id", wsConn.ID()).Msg("failed to queue welcome")
	}

	if h.lifecycle != nil {
		if err := h.lifecycle.Track(wsConn); err != nil {
			h.logger.Warn().Err(err).Str("connection_id", wsConn.ID()).Msg("connection not tracked for idle reaping")
		}
	}

	h.logger.Info().Str("connection_id", wsConn.ID()).Str("remote", r.RemoteAddr).Msg("connection opened")

	go h.handleConnection(wsConn)
}

// handleConnection runs the read loop and heartbeat until the socket closes.
// Every exit path runs leave via registry.Disconnect.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if h.lifecycle != nil {
			h.lifecycle.Untrack(conn.ID())
		}
		h.registry.Disconnect(conn.ID())
		h.dispatcher.Forget(conn.ID())
		_ = conn.Close()
		h.logger.Info().Str("connection_id", conn.ID()).Msg("connection closed")
	}()

	conn.conn.SetReadLimit(h.config.MaxMessageSize)

	// TECHNICAL DISCOVERY: Read deadline of ReadTimeout with pings every
	// PingInterval keeps half-open connections from lingering
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		h.logger.Warn().Err(err).Msg("failed to set read deadline")
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("websocket read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.dispatcher.Dispatch(conn.ctx, conn, data); err != nil {
			event := h.logger.Debug()
			if errors.Is(err, types.ErrMalformed) {
				event = h.logger.Warn()
			}
			event.Err(err).Str("connection_id", conn.ID()).Msg("frame dropped")
		}
	}
}

// pingLoop sends control pings. WriteControl is safe to call concurrently
// with the writer goroutine's WriteMessage.
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
