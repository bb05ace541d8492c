package types

import (
	"encoding/json"
	"time"
)

// Role identifies which side of a live class a participant is on.
type Role string

const (
	RoleMentor  Role = "mentor"
	RoleStudent Role = "student"
)

// Inbound message types (client -> server)
const (
	MessageTypeJoin   = "join"
	MessageTypeLeave  = "leave"
	MessageTypeSignal = "signal"
)

// Outbound message types (server -> client)
const (
	MessageTypeWelcome           = "welcome"
	MessageTypeRoomInfo          = "room-info"
	MessageTypeParticipantJoined = "participant-joined"
	MessageTypeParticipantLeft   = "participant-left"
	MessageTypeSessionEnded      = "session-ended"
)

// LiveSession is the persisted record that a mentor opened a live class.
// FUNCTIONAL DISCOVERY: Only IsActive and EndedAt change after creation;
// rows are never deleted.
type LiveSession struct {
	SessionID string     `json:"sessionId"`
	CourseID  string     `json:"courseId"`
	MentorID  string     `json:"mentorId"`
	StartedAt time.Time  `json:"startedAt"`
	IsActive  bool       `json:"isActive"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Participant is one connection's membership inside a room.
type Participant struct {
	ConnectionID   string `json:"connectionId"`
	ExternalUserID string `json:"userId"`
	Role           Role   `json:"role"`
}

// RoomSnapshot is a point-in-time copy of a room. Callers own it.
type RoomSnapshot struct {
	SessionID          string                 `json:"sessionId"`
	MentorConnectionID string                 `json:"mentorConnectionId"`
	Participants       map[string]Participant `json:"participants"`
}

// InboundMessage is the single envelope for every client frame.
// Fields not used by a message type are left empty.
type InboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Role      Role            `json:"role,omitempty"`
	Target    string          `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WelcomeMessage tells a freshly connected client its connection id.
type WelcomeMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// RoomInfoMessage is sent once, to the joining client only.
type RoomInfoMessage struct {
	Type string `json:"type"`
	RoomSnapshot
}

type ParticipantJoinedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Role         Role   `json:"role"`
}

type ParticipantLeftMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// SignalMessage delivers a relayed payload tagged with the sender's connection id.
type SignalMessage struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type SessionEndedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}
