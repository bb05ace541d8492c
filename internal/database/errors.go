package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrManagerClosed    = errors.New("database manager is closed")
	ErrWriteTimeout     = errors.New("write operation timeout")
	ErrDuplicateSession = errors.New("session id already exists")
)

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
