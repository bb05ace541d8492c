// Package eligibility decides who may open, join or end a live session.
// It consults the course directory and the session registry and never
// touches room state.
package eligibility

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Gate authorizes live session lifecycle requests
type Gate struct {
	sessions interfaces.SessionRegistry
	courses  interfaces.CourseDirectory
	logger   zerolog.Logger
}

func NewGate(sessions interfaces.SessionRegistry, courses interfaces.CourseDirectory) *Gate {
	return &Gate{
		sessions: sessions,
		courses:  courses,
		logger:   log.With().Str("module", "eligibility").Logger(),
	}
}

// AuthorizeMentorStart creates a new live session when mentorID owns courseID.
func (g *Gate) AuthorizeMentorStart(ctx context.Context, mentorID, courseID string) (string, error) {
	owns, err := g.courses.IsCourseMentor(ctx, courseID, mentorID)
	if err != nil {
		return "", fmt.Errorf("check course owner: %w", err)
	}
	if !owns {
		g.logger.Info().Str("mentor_id", mentorID).Str("course_id", courseID).Msg("start denied: not course owner")
		return "", fmt.Errorf("mentor %s does not own course %s: %w", mentorID, courseID, types.ErrForbidden)
	}

	session, err := g.sessions.CreateSession(ctx, courseID, mentorID)
	if err != nil {
		return "", err
	}
	return session.SessionID, nil
}

// AuthorizeStudentJoin returns the course's current session id.
// Enrollment is checked before session state so an outsider learns nothing
// about whether a class is live.
func (g *Gate) AuthorizeStudentJoin(ctx context.Context, studentID, courseID string) (string, error) {
	enrolled, err := g.courses.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return "", fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		g.logger.Info().Str("student_id", studentID).Str("course_id", courseID).Msg("join denied: not enrolled")
		return "", fmt.Errorf("student %s not enrolled in %s: %w", studentID, courseID, types.ErrForbidden)
	}

	session, err := g.sessions.ActiveSessionForCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, types.ErrNotReady) {
			return "", err
		}
		return "", fmt.Errorf("find active session: %w", err)
	}
	return session.SessionID, nil
}

// AuthorizeMentorEnd ends sessionID on behalf of the mentor who started it.
func (g *Gate) AuthorizeMentorEnd(ctx context.Context, mentorID, sessionID string) error {
	session, err := g.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.MentorID != mentorID {
		return fmt.Errorf("session %s belongs to another mentor: %w", sessionID, types.ErrForbidden)
	}
	return g.sessions.EndSession(ctx, sessionID)
}

// CourseHistory lists every session of courseID, newest first, for the
// course's mentor.
func (g *Gate) CourseHistory(ctx context.Context, mentorID, courseID string) ([]*types.LiveSession, error) {
	owns, err := g.courses.IsCourseMentor(ctx, courseID, mentorID)
	if err != nil {
		return nil, fmt.Errorf("check course owner: %w", err)
	}
	if !owns {
		return nil, fmt.Errorf("mentor %s does not own course %s: %w", mentorID, courseID, types.ErrForbidden)
	}
	return g.sessions.ListCourseSessions(ctx, courseID)
}
