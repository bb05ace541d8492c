package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Manager implements interfaces.SessionRegistry.
// Every call goes to the store; there is no in-process cache, so two
// processes sharing one database never disagree about isActive.
type Manager struct {
	store  interfaces.SessionStore
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

var _ interfaces.SessionRegistry = (*Manager)(nil)

// NewManager creates a new session manager
func NewManager(store interfaces.SessionStore) *Manager {
	return &Manager{
		store:  store,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: log.With().Str("module", "session").Logger(),
	}
}

// LoadActiveSessions reports how many sessions were left active by a
// previous process. Rooms for them are not recreated; clients re-join.
func (m *Manager) LoadActiveSessions(ctx context.Context) (int, error) {
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.logger.Info().Int("count", len(sessions)).Msg("active sessions found in store")
	return len(sessions), nil
}

// CreateSession persists a fresh active session for a course.
func (m *Manager) CreateSession(ctx context.Context, courseID, mentorID string) (*types.LiveSession, error) {
	if !types.IsValidID(courseID) {
		return nil, ErrInvalidCourseID
	}
	if !types.IsValidUserID(mentorID) {
		return nil, ErrInvalidMentorID
	}

	session := &types.LiveSession{
		SessionID: m.newID(),
		CourseID:  courseID,
		MentorID:  mentorID,
		StartedAt: m.now().UTC(),
		IsActive:  true,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info().
		Str("session_id", session.SessionID).
		Str("course_id", courseID).
		Str("mentor_id", mentorID).
		Msg("live session created")
	return session, nil
}

// EndSession marks a session inactive. Ending an already ended session
// succeeds without changes; an unknown id wraps types.ErrNotFound.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	err := m.store.MarkSessionEnded(ctx, sessionID, m.now().UTC())
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return fmt.Errorf("end session %s: %w", sessionID, types.ErrNotFound)
		}
		return fmt.Errorf("failed to end session: %w", err)
	}

	m.logger.Info().Str("session_id", sessionID).Msg("live session ended")
	return nil
}

// IsActive reports whether sessionID names an active session. Unknown ids
// and store failures both read as inactive.
func (m *Manager) IsActive(ctx context.Context, sessionID string) bool {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSessionNotFound) {
			m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("session lookup failed")
		}
		return false
	}
	return session.IsActive
}

// GetSession returns the record for sessionID or an error wrapping types.ErrNotFound.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.LiveSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ActiveSessionForCourse returns the most recently started active session.
func (m *Manager) ActiveSessionForCourse(ctx context.Context, courseID string) (*types.LiveSession, error) {
	session, err := m.store.LatestActiveSession(ctx, courseID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, fmt.Errorf("course %s: %w", courseID, types.ErrNotReady)
		}
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return session, nil
}

func (m *Manager) ListCourseSessions(ctx context.Context, courseID string) ([]*types.LiveSession, error) {
	sessions, err := m.store.ListCourseSessions(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course sessions: %w", err)
	}
	return sessions, nil
}
