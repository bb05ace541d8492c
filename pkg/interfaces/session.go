package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// SessionRegistry owns the lifecycle of live session records.
// FUNCTIONAL DISCOVERY: The registry is consulted only at start, join
// authorization and end; the realtime path never touches it.
type SessionRegistry interface {
	CreateSession(ctx context.Context, courseID, mentorID string) (*types.LiveSession, error)

	// EndSession is idempotent for known ids and wraps types.ErrNotFound otherwise
	EndSession(ctx context.Context, sessionID string) error

	// IsActive reports false for unknown ids instead of failing
	IsActive(ctx context.Context, sessionID string) bool

	GetSession(ctx context.Context, sessionID string) (*types.LiveSession, error)
	ActiveSessionForCourse(ctx context.Context, courseID string) (*types.LiveSession, error)
	ListCourseSessions(ctx context.Context, courseID string) ([]*types.LiveSession, error)
}

// CourseDirectory answers ownership and enrollment questions for the
// course collaborator. Neither call is cached by callers.
type CourseDirectory interface {
	IsCourseMentor(ctx context.Context, courseID, mentorID string) (bool, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}
