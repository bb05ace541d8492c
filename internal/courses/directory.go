// Package courses answers course ownership and enrollment questions from
// Redis. The records are maintained by the course service; this process
// only reads them, plus a few helpers used for seeding.
package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/pkg/interfaces"
)

// Directory implements interfaces.CourseDirectory over Redis.
//
// Key layout:
//
//	course:{courseId}:mentor    string, owning mentor id
//	course:{courseId}:students  set of enrolled student ids
type Directory struct {
	rdb    redis.UniversalClient
	logger zerolog.Logger
}

var _ interfaces.CourseDirectory = (*Directory)(nil)

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewDirectory connects to Redis. Connectivity is checked lazily; use Ping
// at startup to fail fast.
func NewDirectory(opts Options) *Directory {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewDirectoryWithClient(rdb)
}

// NewDirectoryWithClient wraps an existing client
func NewDirectoryWithClient(rdb redis.UniversalClient) *Directory {
	return &Directory{
		rdb:    rdb,
		logger: log.With().Str("module", "courses").Logger(),
	}
}

func mentorKey(courseID string) string   { return fmt.Sprintf("course:%s:mentor", courseID) }
func studentsKey(courseID string) string { return fmt.Sprintf("course:%s:students", courseID) }

// IsCourseMentor reports whether mentorID owns courseID. A course with no
// owner record is owned by nobody.
func (d *Directory) IsCourseMentor(ctx context.Context, courseID, mentorID string) (bool, error) {
	owner, err := d.rdb.Get(ctx, mentorKey(courseID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup course owner: %w", err)
	}
	return owner == mentorID, nil
}

// IsEnrolled reports whether studentID is enrolled in courseID
func (d *Directory) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	enrolled, err := d.rdb.SIsMember(ctx, studentsKey(courseID), studentID).Result()
	if err != nil {
		return false, fmt.Errorf("lookup enrollment: %w", err)
	}
	return enrolled, nil
}

// SetCourseMentor records the owning mentor, replacing any previous owner
func (d *Directory) SetCourseMentor(ctx context.Context, courseID, mentorID string) error {
	if err := d.rdb.Set(ctx, mentorKey(courseID), mentorID, 0).Err(); err != nil {
		return fmt.Errorf("set course owner: %w", err)
	}
	d.logger.Debug().Str("course_id", courseID).Str("mentor_id", mentorID).Msg("course owner set")
	return nil
}

// Enroll adds students to a course. Already enrolled ids are ignored.
func (d *Directory) Enroll(ctx context.Context, courseID string, studentIDs ...string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(studentIDs))
	for i, id := range studentIDs {
		members[i] = id
	}
	if err := d.rdb.SAdd(ctx, studentsKey(courseID), members...).Err(); err != nil {
		return fmt.Errorf("enroll students: %w", err)
	}
	return nil
}

// Unenroll removes a student from a course
func (d *Directory) Unenroll(ctx context.Context, courseID, studentID string) error {
	if err := d.rdb.SRem(ctx, studentsKey(courseID), studentID).Err(); err != nil {
		return fmt.Errorf("unenroll student: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (d *Directory) Ping(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

func (d *Directory) Close() error {
	return d.rdb.Close()
}
