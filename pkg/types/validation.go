package types

import (
	"regexp"
	"unicode/utf8"
)

// MaxPayloadSize bounds a single relayed signal payload.
const MaxPayloadSize = 64 * 1024

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for the high-frequency join path
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks that a frame carries every field its type needs.
// Every returned error wraps ErrMalformed.
func (m *InboundMessage) Validate() error {
	switch m.Type {
	case MessageTypeJoin:
		if !IsValidID(m.SessionID) {
			return ErrInvalidSessionID
		}
		if !IsValidUserID(m.UserID) {
			return ErrInvalidUserID
		}
		if !m.Role.IsValid() {
			return ErrInvalidRole
		}
	case MessageTypeLeave:
		// no fields
	case MessageTypeSignal:
		if m.Target == "" {
			return ErrMissingTarget
		}
		if len(m.Payload) == 0 || string(m.Payload) == "null" {
			return ErrMissingPayload
		}
		if len(m.Payload) > MaxPayloadSize {
			return ErrPayloadTooLarge
		}
	default:
		return ErrInvalidMessageType
	}
	return nil
}

// IsValid reports whether r is one of the two known roles.
func (r Role) IsValid() bool {
	return r == RoleMentor || r == RoleStudent
}

// IsValidID checks session, course and user identifiers.
// 1-64 characters covers uuids and typical document-store object ids.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidUserID checks identifiers issued by the identity provider, which
// may be emails or other opaque strings. Only the length is enforced.
func IsValidUserID(id string) bool {
	n := utf8.RuneCountInString(id)
	return n >= 1 && n <= 64
}
