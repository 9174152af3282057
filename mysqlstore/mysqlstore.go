// Package mysqlstore provides a MySQL/MariaDB session storage implementation.
//
// MySQLStore allows storing, retrieving, and deleting encoded session
// records keyed by a session identifier. Each record has an expiration
// time which is checked on every read, and the store supports periodic
// cleanup of expired records.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// MySQLStore is a database/sql backed storage for session records. The
// *sql.DB must use the github.com/go-sql-driver/mysql driver.
type MySQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

type config func(*MySQLStore)

// WithLogger sets the logger used to report cleanup failures.
// (default slog.Default())
func WithLogger(logger *slog.Logger) config {
	return config(func(s *MySQLStore) {
		s.logger = logger
	})
}

// New creates and returns a new MySQLStore instance.
// If the sessions table doesn't exist it is created.
func New(db *sql.DB, cfgs ...config) (*MySQLStore, error) {
	s := &MySQLStore{db: db, logger: slog.Default()}
	for _, cfg := range cfgs {
		cfg(s)
	}
	return s, createTable(db)
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *MySQLStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	stmt := "SELECT data FROM sessions WHERE token = ? AND UTC_TIMESTAMP(6) < expires_at"
	row := s.db.QueryRowContext(ctx, stmt, token)

	var data []byte
	err := row.Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (s *MySQLStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	stmt := "INSERT INTO sessions(token, data, expires_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data), expires_at = VALUES(expires_at)"
	_, err := s.db.ExecContext(ctx, stmt, token, data, expiresAt.UTC())
	return err
}

// Replace overwrites the record under token only if a live one exists, and
// reports whether it did.
func (s *MySQLStore) Replace(ctx context.Context, token string, data []byte, expiresAt time.Time) (bool, error) {
	stmt := "UPDATE sessions SET data = ?, expires_at = ? WHERE token = ? AND UTC_TIMESTAMP(6) < expires_at"
	res, err := s.db.ExecContext(ctx, stmt, data, expiresAt.UTC(), token)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// MySQL reports 0 affected rows when the new values equal the old ones
	_, found, err := s.Get(ctx, token)
	return found, err
}

// Delete removes the data associated with the given token.
func (s *MySQLStore) Delete(ctx context.Context, token string) error {
	stmt := "DELETE FROM sessions WHERE token = ?"
	_, err := s.db.ExecContext(ctx, stmt, token)
	return err
}

// PeriodicCleanUp runs a loop that periodically deletes expired sessions.
// The cleanup runs every interval duration until a value is received on
// the stop channel (or it is closed), at which point the loop returns.
//
// Example usage:
//
//	stop := make(chan struct{})
//	go store.PeriodicCleanUp(time.Minute, stop)
//	...
//	close(stop) // stop the cleanup
func (s *MySQLStore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-stop:
			return
		}
	}
}

// deleteExpired removes all expired records from the table.
func (s *MySQLStore) deleteExpired() {
	stmt := "DELETE FROM sessions WHERE UTC_TIMESTAMP(6) >= expires_at"
	if _, err := s.db.Exec(stmt); err != nil {
		s.logger.Error("session cleanup failed", slog.String("store", "mysql"), slog.Any("error", err))
	}
}

func createTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
			token VARCHAR(64) COLLATE utf8mb4_bin PRIMARY KEY,
			data BLOB NOT NULL,
			expires_at TIMESTAMP(6) NOT NULL,
			INDEX sessions_expires_at_idx (expires_at)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}
