package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Manager implements interfaces.SessionStore on SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	loopDone     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
	logger       zerolog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

var _ interfaces.SessionStore = (*Manager)(nil)

// NewManager opens the database, applies pragmas and starts the writer goroutine.
// Schema migrations are the caller's responsibility (see GetDB).
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		loopDone:     make(chan struct{}),
		retryDelay:   5 * time.Second,
		logger:       log.With().Str("module", "database").Logger(),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.loopDone)

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && isRetryable(err) {
				m.logger.Warn().Err(err).Dur("retry_in", m.retryDelay).Msg("database write failed, retrying")
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error().Err(err).Msg("database write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug().Msg("database write loop shutting down")
			m.rejectQueued()
			return
		}
	}
}

// rejectQueued fails every operation still buffered at shutdown
func (m *Manager) rejectQueued() {
	for {
		select {
		case op := <-m.writeChannel:
			op.result <- ErrManagerClosed
		default:
			return
		}
	}
}

// isRetryable filters out outcomes a second attempt cannot change.
func isRetryable(err error) bool {
	return !errors.Is(err, interfaces.ErrSessionNotFound) &&
		!errors.Is(err, ErrDuplicateSession) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		// The writer may still be finishing this operation. Once it has
		// exited, a missing verdict means the operation never ran.
		<-m.loopDone
		select {
		case err := <-result:
			return err
		default:
			return ErrManagerClosed
		}
	}
}

// CreateSession inserts a new live session row
func (m *Manager) CreateSession(ctx context.Context, session *types.LiveSession) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO live_sessions (session_id, course_id, mentor_id, started_at, is_active)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.SessionID,
			session.CourseID,
			session.MentorID,
			session.StartedAt.UTC(),
			session.IsActive,
		)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateSession, session.SessionID)
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.LiveSession, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, selectSessionColumns+` WHERE session_id = ?`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// MarkSessionEnded deactivates a session. ended_at keeps its first value.
func (m *Manager) MarkSessionEnded(ctx context.Context, sessionID string, endedAt time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			UPDATE live_sessions
			SET is_active = 0, ended_at = COALESCE(ended_at, ?)
			WHERE session_id = ?
		`
		result, err := db.ExecContext(ctx, query, endedAt.UTC(), sessionID)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// LatestActiveSession returns the newest active session for a course
func (m *Manager) LatestActiveSession(ctx context.Context, courseID string) (*types.LiveSession, error) {
	// FUNCTIONAL DISCOVERY: A mentor may start twice without ending; students
	// are sent to the most recent room
	query := selectSessionColumns + `
		WHERE course_id = ? AND is_active = 1
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`
	session, err := scanSession(m.db.QueryRowContext(ctx, query, courseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return session, nil
}

// ListActiveSessions returns all active sessions, newest first
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.LiveSession, error) {
	return m.querySessions(ctx, selectSessionColumns+`
		WHERE is_active = 1
		ORDER BY started_at DESC, rowid DESC
	`)
}

// ListCourseSessions returns every session ever started for a course, newest first
func (m *Manager) ListCourseSessions(ctx context.Context, courseID string) ([]*types.LiveSession, error) {
	return m.querySessions(ctx, selectSessionColumns+`
		WHERE course_id = ?
		ORDER BY started_at DESC, rowid DESC
	`, courseID)
}

const selectSessionColumns = `
	SELECT session_id, course_id, mentor_id, started_at, is_active, ended_at
	FROM live_sessions
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.LiveSession, error) {
	var session types.LiveSession
	var endedAt sql.NullTime

	err := row.Scan(
		&session.SessionID,
		&session.CourseID,
		&session.MentorID,
		&session.StartedAt,
		&session.IsActive,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	return &session, nil
}

func (m *Manager) querySessions(ctx context.Context, query string, args ...interface{}) ([]*types.LiveSession, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*types.LiveSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM live_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer goroutine and closes the pool. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
