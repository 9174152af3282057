// Package gormstore provides a gorm session storage implementation.
//
// GORMStore allows storing, retrieving, and deleting encoded session
// records keyed by a session identifier. Each record has an expiration
// time which is checked on every read, and the store supports periodic
// cleanup of expired records.
package gormstore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMStore is a gorm backed storage for session records.
type GORMStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// session represents a single stored session, containing the data
// and its expiration time.
type session struct {
	Token     string `gorm:"primaryKey;type:varchar(64)"`
	Data      []byte
	ExpiresAt time.Time `gorm:"index"`
}

type config func(*GORMStore)

// WithLogger sets the logger used to report cleanup failures.
// (default slog.Default())
func WithLogger(logger *slog.Logger) config {
	return config(func(s *GORMStore) {
		s.logger = logger
	})
}

// New creates and returns a new GORMStore instance.
// If the sessions table doesn't exist it is created.
func New(db *gorm.DB, cfgs ...config) (*GORMStore, error) {
	s := &GORMStore{db: db, logger: slog.Default()}
	for _, cfg := range cfgs {
		cfg(s)
	}
	return s, db.AutoMigrate(&session{})
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *GORMStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	sess := &session{}
	tx := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, time.Now().UTC()).
		Limit(1).
		Find(sess)
	if tx.Error != nil || tx.RowsAffected == 0 {
		return nil, false, tx.Error
	}

	return sess.Data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (s *GORMStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	sess := &session{Token: token, Data: data, ExpiresAt: expiresAt.UTC()}
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(sess)
	return tx.Error
}

// Replace overwrites the record under token only if a live one exists, and
// reports whether it did.
func (s *GORMStore) Replace(ctx context.Context, token string, data []byte, expiresAt time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&session{}).
		Where("token = ? AND expires_at > ?", token, time.Now().UTC()).
		Updates(map[string]any{"data": data, "expires_at": expiresAt.UTC()})
	return tx.RowsAffected > 0, tx.Error
}

// Delete removes the data associated with the given token.
func (s *GORMStore) Delete(ctx context.Context, token string) error {
	tx := s.db.WithContext(ctx).Delete(&session{}, "token = ?", token)
	return tx.Error
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
func (s *GORMStore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
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
func (s *GORMStore) deleteExpired() {
	tx := s.db.Delete(&session{}, "expires_at <= ?", time.Now().UTC())
	if tx.Error != nil {
		s.logger.Error("session cleanup failed", slog.String("store", "gorm"), slog.Any("error", tx.Error))
	}
}
