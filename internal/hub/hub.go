// Package hub tracks signaling connections that have not joined a room yet
// and closes the ones that stay idle past a grace period.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/internal/metrics"
	"liveclass/pkg/interfaces"
)

// Hub owns the set of connections that are still in the Connected state.
// ARCHITECTURAL DISCOVERY: A single goroutine owns the pending map, so all
// coordination flows through channels and no lock guards connection state
type Hub struct {
	eventChannel    chan hubEvent
	pendingQuery    chan chan int
	shutdownChannel chan struct{}

	joinGrace time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	running bool
	stopped bool
	mu      sync.RWMutex
	done    chan struct{}
}

type eventKind int

const (
	eventTrack eventKind = iota
	eventJoined
	eventUntrack
)

// hubEvent travels over a single channel so that events for one connection
// are applied in the order they were sent
type hubEvent struct {
	kind         eventKind
	peer         interfaces.Peer
	connectionID string
}

type pendingConn struct {
	peer  interfaces.Peer
	since time.Time
}

// NewHub creates a hub that closes connections which have not joined within
// joinGrace. A zero grace disables reaping.
func NewHub(joinGrace time.Duration) *Hub {
	return &Hub{
		eventChannel:    make(chan hubEvent, 300),
		pendingQuery:    make(chan chan int),
		shutdownChannel: make(chan struct{}),
		joinGrace:       joinGrace,
		now:             time.Now,
		logger:          log.With().Str("module", "hub").Logger(),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	if h.stopped {
		h.mu.Unlock()
		return ErrHubStopped
	}
	h.running = true
	h.done = make(chan struct{})
	h.mu.Unlock()

	h.logger.Info().Dur("join_grace", h.joinGrace).Msg("starting connection hub")

	go h.run(ctx)
	return nil
}

// Stop shuts the loop down and waits for it to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.stopped = true
	done := h.done
	h.mu.Unlock()

	h.logger.Info().Msg("stopping connection hub")

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	<-done
	return nil
}

// Track starts the idle clock for a freshly connected peer
func (h *Hub) Track(peer interfaces.Peer) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}

	select {
	case h.eventChannel <- hubEvent{kind: eventTrack, peer: peer, connectionID: peer.ID()}:
		return nil
	default:
		return ErrTrackChannelFull
	}
}

// MarkJoined stops the idle clock for a connection. Blocks until the hub
// accepts the event, so a join is never lost to a full buffer.
func (h *Hub) MarkJoined(connectionID string) {
	h.send(hubEvent{kind: eventJoined, connectionID: connectionID})
}

// Untrack forgets a connection that has closed
func (h *Hub) Untrack(connectionID string) {
	h.send(hubEvent{kind: eventUntrack, connectionID: connectionID})
}

// Pending returns the number of connections that have not joined yet
func (h *Hub) Pending() int {
	done, ok := h.loopDone()
	if !ok {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case h.pendingQuery <- reply:
		return <-reply
	case <-done:
		return 0
	}
}

func (h *Hub) send(event hubEvent) {
	done, ok := h.loopDone()
	if !ok {
		return
	}
	select {
	case h.eventChannel <- event:
	case <-done:
	}
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// loopDone returns the channel closed when the run loop exits
func (h *Hub) loopDone() (<-chan struct{}, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done, h.running
}

func (h *Hub) sweepInterval() time.Duration {
	interval := h.joinGrace / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.logger.Debug().Msg("hub processing stopped")

	pending := make(map[string]pendingConn)

	ticker := time.NewTicker(h.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case event := <-h.eventChannel:
			switch event.kind {
			case eventTrack:
				if h.joinGrace > 0 {
					pending[event.connectionID] = pendingConn{peer: event.peer, since: h.now()}
				}
			case eventJoined, eventUntrack:
				delete(pending, event.connectionID)
			}

		case reply := <-h.pendingQuery:
			reply <- len(pending)

		case <-ticker.C:
			h.reap(pending)

		case <-h.shutdownChannel:
			return

		case <-ctx.Done():
			return
		}
	}
}

// reap closes idle connections. Closing makes the transport's read loop
// exit, which in turn runs the normal disconnect cleanup.
func (h *Hub) reap(pending map[string]pendingConn) {
	if h.joinGrace <= 0 {
		return
	}
	now := h.now()
	for id, entry := range pending {
		if now.Sub(entry.since) < h.joinGrace {
			continue
		}
		delete(pending, id)
		metrics.GatewayDropped.WithLabelValues(metrics.DropIdle).Inc()
		h.logger.Info().Str("connection_id", id).Msg("closing connection that never joined")
		if err := entry.peer.Close(); err != nil {
			h.logger.Debug().Err(err).Str("connection_id", id).Msg("close idle connection")
		}
	}
}
