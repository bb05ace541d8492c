package interfaces

import (
	"context"
	"time"

	"liveclass/pkg/types"
)

// SessionStore persists live session records.
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// keeps the SQLite single-writer loop an implementation detail
type SessionStore interface {
	// CreateSession inserts a new active record. The store rejects a reused id.
	CreateSession(ctx context.Context, session *types.LiveSession) error

	// GetSession returns ErrSessionNotFound when no row matches
	GetSession(ctx context.Context, sessionID string) (*types.LiveSession, error)

	// MarkSessionEnded flips isActive off. endedAt is only written the first
	// time, so repeated calls leave the original timestamp in place.
	MarkSessionEnded(ctx context.Context, sessionID string, endedAt time.Time) error

	// LatestActiveSession returns the most recently started active session
	// for a course, or ErrSessionNotFound.
	LatestActiveSession(ctx context.Context, courseID string) (*types.LiveSession, error)

	ListActiveSessions(ctx context.Context) ([]*types.LiveSession, error)

	// ListCourseSessions returns a course's history, newest first
	ListCourseSessions(ctx context.Context, courseID string) ([]*types.LiveSession, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
