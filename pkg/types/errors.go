package types

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is;
// components wrap these with context using fmt.Errorf("%w").
var (
	ErrForbidden = errors.New("forbidden")
	ErrNotReady  = errors.New("no active live session")
	ErrNotFound  = errors.New("not found")
	ErrMalformed = errors.New("malformed message")
)

// Validation errors, all of which wrap ErrMalformed.
var (
	ErrInvalidUserID      = wrapMalformed("user ID must be 1-64 characters")
	ErrInvalidSessionID   = wrapMalformed("session ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole        = wrapMalformed("role must be 'mentor' or 'student'")
	ErrInvalidMessageType = wrapMalformed("invalid message type")
	ErrMissingTarget      = wrapMalformed("signal missing target connection")
	ErrMissingPayload     = wrapMalformed("signal missing payload")
	ErrPayloadTooLarge    = wrapMalformed("signal payload exceeds 64KB limit")
)

type malformedError struct{ msg string }

func (e *malformedError) Error() string { return e.msg }
func (e *malformedError) Unwrap() error { return ErrMalformed }

func wrapMalformed(msg string) error { return &malformedError{msg: msg} }
