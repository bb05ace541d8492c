// Package router decodes inbound signaling frames and applies them to the
// room registry.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/internal/metrics"
	"liveclass/internal/rooms"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// JoinObserver is told when a connection completes its first join.
// The lifecycle hub uses it to stop the idle-connection clock.
type JoinObserver interface {
	MarkJoined(connectionID string)
}

// Config controls signal throttling. Budgets are per (sender, target) pair so
// a mentor fanning out to many students is not starved. A SignalRateLimit of
// zero disables throttling.
type Config struct {
	SignalRateLimit  int
	SignalRateWindow time.Duration
}

// Router dispatches join, leave and signal frames.
// ARCHITECTURAL DISCOVERY: Pure message routing logic without connection handling;
// delivery belongs to the registry and the transport
type Router struct {
	registry    *rooms.Registry
	observer    JoinObserver
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewRouter creates a new message router. observer may be nil.
func NewRouter(registry *rooms.Registry, observer JoinObserver, cfg Config) *Router {
	return &Router{
		registry:    registry,
		observer:    observer,
		rateLimiter: NewRateLimiter(cfg.SignalRateLimit, cfg.SignalRateWindow),
		logger:      log.With().Str("module", "router").Logger(),
	}
}

// Dispatch applies one inbound frame from peer. Errors are diagnostics for
// the transport to log; the peer is never told about them.
func (r *Router) Dispatch(ctx context.Context, peer interfaces.Peer, data []byte) error {
	var msg types.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.GatewayDropped.WithLabelValues(metrics.DropMalformed).Inc()
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	if err := msg.Validate(); err != nil {
		metrics.GatewayDropped.WithLabelValues(metrics.DropMalformed).Inc()
		return fmt.Errorf("%s frame: %w", msg.Type, err)
	}

	switch msg.Type {
	case types.MessageTypeJoin:
		r.registry.Join(msg.SessionID, peer.ID(), msg.UserID, msg.Role)
		if r.observer != nil {
			r.observer.MarkJoined(peer.ID())
		}

	case types.MessageTypeLeave:
		r.registry.Leave(peer.ID())

	case types.MessageTypeSignal:
		return r.relay(peer, &msg)
	}

	return nil
}

func (r *Router) relay(peer interfaces.Peer, msg *types.InboundMessage) error {
	// Relay is only available in the Joined state
	if !r.registry.IsMember(peer.ID()) {
		metrics.GatewayDropped.WithLabelValues(metrics.DropNotJoined).Inc()
		return ErrNotJoined
	}

	if !r.rateLimiter.Allow(pairKey(peer.ID(), msg.Target)) {
		metrics.GatewayDropped.WithLabelValues(metrics.DropRateLimited).Inc()
		return ErrRateLimitExceeded
	}

	if !r.registry.RelaySignal(peer.ID(), msg.Target, msg.Payload) {
		r.logger.Debug().Str("from", peer.ID()).Str("to", msg.Target).Msg("signal not delivered")
	}
	return nil
}

// Forget releases per-connection state once the connection is gone
func (r *Router) Forget(connectionID string) {
	r.rateLimiter.ForgetPrefix(connectionID + pairSeparator)
}

// Connection ids are uuids, so the separator cannot appear inside one
const pairSeparator = "->"

func pairKey(from, to string) string {
	return from + pairSeparator + to
}

// CleanupLoop prunes idle rate limiter entries until ctx is cancelled
func (r *Router) CleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.rateLimiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
