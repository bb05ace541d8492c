// Package rooms tracks which signaling connections are present and which
// room each one belongs to.
package rooms

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/internal/metrics"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

type room struct {
	mentorConnectionID string
	participants       map[string]types.Participant
}

func (r *room) snapshot(sessionID string) types.RoomSnapshot {
	participants := make(map[string]types.Participant, len(r.participants))
	for id, p := range r.participants {
		participants[id] = p
	}
	return types.RoomSnapshot{
		SessionID:          sessionID,
		MentorConnectionID: r.mentorConnectionID,
		Participants:       participants,
	}
}

// Registry owns all room and participant state.
// ARCHITECTURAL DISCOVERY: One mutex guards rooms, the membership index and
// the peer set together, so join/leave/relay are indivisible with respect to
// each other. Deliveries happen under the lock through non-blocking sends,
// which keeps notification order identical to mutation order.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room           // sessionID -> room, present only while non-empty
	memberOf map[string]string          // connectionID -> sessionID
	peers    map[string]interfaces.Peer // connectionID -> connected peer
	logger   zerolog.Logger
}

// Stats is a point-in-time summary for health output
type Stats struct {
	Connections  int `json:"connections"`
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*room),
		memberOf: make(map[string]string),
		peers:    make(map[string]interfaces.Peer),
		logger:   log.With().Str("module", "rooms").Logger(),
	}
}

// Connect makes a peer reachable as a relay target. A peer with the same id
// replaces the previous one.
func (r *Registry) Connect(peer interfaces.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[peer.ID()] = peer
	metrics.ConnectionsOpen.Set(float64(len(r.peers)))
}

// Disconnect runs leave for the connection and forgets the peer. Safe for
// connections that never joined or were already removed.
func (r *Registry) Disconnect(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(connectionID)
	delete(r.peers, connectionID)
	metrics.ConnectionsOpen.Set(float64(len(r.peers)))
}

// Join places connectionID in the room for sessionID, creating the room if
// needed. The caller receives room-info; every other member receives
// participant-joined.
func (r *Registry) Join(sessionID, connectionID, userID string, role types.Role) types.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.memberOf[connectionID]; ok && current != sessionID {
		r.leaveLocked(connectionID)
	}

	rm, ok := r.rooms[sessionID]
	if !ok {
		rm = &room{participants: make(map[string]types.Participant)}
		r.rooms[sessionID] = rm
		r.logger.Debug().Str("session_id", sessionID).Msg("room created")
	}

	switch {
	case role == types.RoleMentor:
		// Last write wins; a stale mentor connection is cleaned up on its own disconnect
		if rm.mentorConnectionID != "" && rm.mentorConnectionID != connectionID {
			r.logger.Info().
				Str("session_id", sessionID).
				Str("previous", rm.mentorConnectionID).
				Str("current", connectionID).
				Msg("mentor connection replaced")
		}
		rm.mentorConnectionID = connectionID
	case rm.mentorConnectionID == connectionID:
		rm.mentorConnectionID = ""
	}

	rm.participants[connectionID] = types.Participant{
		ConnectionID:   connectionID,
		ExternalUserID: userID,
		Role:           role,
	}
	r.memberOf[connectionID] = sessionID

	snapshot := rm.snapshot(sessionID)

	r.deliverLocked(connectionID, types.RoomInfoMessage{
		Type:         types.MessageTypeRoomInfo,
		RoomSnapshot: snapshot,
	})

	joined := types.ParticipantJoinedMessage{
		Type:         types.MessageTypeParticipantJoined,
		ConnectionID: connectionID,
		Role:         role,
	}
	for id := range rm.participants {
		if id != connectionID {
			r.deliverLocked(id, joined)
		}
	}

	r.logger.Info().
		Str("session_id", sessionID).
		Str("connection_id", connectionID).
		Str("user_id", userID).
		Str("role", string(role)).
		Int("participants", len(rm.participants)).
		Msg("participant joined")

	r.updateGaugesLocked()
	return snapshot
}

// Leave removes connectionID from its room. It reports false, and notifies
// nobody, when the connection was not a member.
func (r *Registry) Leave(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(connectionID)
}

func (r *Registry) leaveLocked(connectionID string) bool {
	sessionID, ok := r.memberOf[connectionID]
	if !ok {
		return false
	}
	delete(r.memberOf, connectionID)

	rm, ok := r.rooms[sessionID]
	if !ok {
		return false
	}
	delete(rm.participants, connectionID)
	if rm.mentorConnectionID == connectionID {
		rm.mentorConnectionID = ""
	}

	left := types.ParticipantLeftMessage{
		Type:         types.MessageTypeParticipantLeft,
		ConnectionID: connectionID,
	}
	for id := range rm.participants {
		r.deliverLocked(id, left)
	}

	if len(rm.participants) == 0 {
		delete(r.rooms, sessionID)
		r.logger.Debug().Str("session_id", sessionID).Msg("room deleted")
	}

	r.logger.Info().
		Str("session_id", sessionID).
		Str("connection_id", connectionID).
		Int("remaining", len(rm.participants)).
		Msg("participant left")

	r.updateGaugesLocked()
	return true
}

// RelaySignal forwards payload to the target connection tagged with the
// sender's id. The target may be in any room, or none. It reports false
// when the target is not connected or could not accept the message.
func (r *Registry) RelaySignal(from, to string, payload json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[to]; !ok {
		metrics.SignalsTotal.WithLabelValues(metrics.SignalNoTarget).Inc()
		r.logger.Debug().Str("from", from).Str("to", to).Msg("signal target not connected")
		return false
	}

	delivered := r.deliverLocked(to, types.SignalMessage{
		Type:    types.MessageTypeSignal,
		From:    from,
		Payload: payload,
	})
	if delivered {
		metrics.SignalsTotal.WithLabelValues(metrics.SignalDelivered).Inc()
	} else {
		metrics.SignalsTotal.WithLabelValues(metrics.SignalDropped).Inc()
	}
	return delivered
}

// Snapshot returns a copy of the room for sessionID, if it exists.
func (r *Registry) Snapshot(sessionID string) (types.RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sessionID]
	if !ok {
		return types.RoomSnapshot{}, false
	}
	return rm.snapshot(sessionID), true
}

// NotifyRoom delivers msg to every member of the room and returns how many
// members accepted it. Membership is not changed.
func (r *Registry) NotifyRoom(sessionID string, msg interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sessionID]
	if !ok {
		return 0
	}

	sent := 0
	for id := range rm.participants {
		if r.deliverLocked(id, msg) {
			sent++
		}
	}
	return sent
}

// IsMember reports whether connectionID currently belongs to a room
func (r *Registry) IsMember(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.memberOf[connectionID]
	return ok
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Connections:  len(r.peers),
		Rooms:        len(r.rooms),
		Participants: len(r.memberOf),
	}
}

// deliverLocked never blocks. A member that joined without a connected peer
// simply receives nothing.
func (r *Registry) deliverLocked(connectionID string, msg interface{}) bool {
	peer, ok := r.peers[connectionID]
	if !ok {
		return false
	}
	if err := peer.Send(msg); err != nil {
		metrics.GatewayDropped.WithLabelValues(metrics.DropSlowPeer).Inc()
		r.logger.Warn().Err(err).Str("connection_id", connectionID).Msg("delivery dropped")
		return false
	}
	return true
}

func (r *Registry) updateGaugesLocked() {
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	metrics.ParticipantsActive.Set(float64(len(r.memberOf)))
}
