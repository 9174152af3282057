// Package memstore provides an in-memory session storage implementation.
//
// Memstore allows storing, retrieving, and deleting encoded session
// records keyed by a session identifier. Each record has an expiration
// time which is checked on every read, and the store supports periodic
// cleanup of expired records to bound memory growth.
//
// This package is suitable for single-process applications or testing
// scenarios. It is not persistent and does not share state across
// processes.
package memstore

import (
	"context"
	"sync"
	"time"
)

// Memstore is an in-memory storage for session records.
// It is safe for concurrent use by multiple goroutines.
type Memstore struct {
	sessions sync.Map
}

// record represents a single stored session, containing the data
// and its expiration time. Records are stored by pointer and never
// mutated, so they can be compared and swapped atomically.
type record struct {
	expiresAt time.Time
	data      []byte
}

func (r *record) expired(now time.Time) bool {
	return !now.Before(r.expiresAt)
}

// New creates and returns a new Memstore instance.
func New() *Memstore {
	return &Memstore{}
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error. If the record has expired, it is
// deleted and Get returns false.
func (m *Memstore) Get(_ context.Context, token string) ([]byte, bool, error) {
	v, ok := m.sessions.Load(token)
	if !ok {
		return nil, false, nil
	}

	rec := v.(*record)
	if rec.expired(time.Now()) {
		m.sessions.CompareAndDelete(token, rec)
		return nil, false, nil
	}

	return rec.data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. The
// expiresAt parameter specifies when the record should be considered expired.
func (m *Memstore) Set(_ context.Context, token string, data []byte, expiresAt time.Time) error {
	m.sessions.Store(token, &record{expiresAt: expiresAt, data: data})
	return nil
}

// Replace overwrites the record stored under token only if a live one
// exists, and reports whether it did.
func (m *Memstore) Replace(_ context.Context, token string, data []byte, expiresAt time.Time) (bool, error) {
	next := &record{expiresAt: expiresAt, data: data}
	for {
		v, ok := m.sessions.Load(token)
		if !ok {
			return false, nil
		}

		rec := v.(*record)
		if rec.expired(time.Now()) {
			m.sessions.CompareAndDelete(token, rec)
			return false, nil
		}

		if m.sessions.CompareAndSwap(token, rec, next) {
			return true, nil
		}
	}
}

// Delete removes the data associated with the given token. If the token
// does not exist, this is a no-op.
func (m *Memstore) Delete(_ context.Context, token string) error {
	m.sessions.Delete(token)
	return nil
}

// Count returns the number of records held, including expired records that
// have not been swept yet.
func (m *Memstore) Count() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
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
func (m *Memstore) PeriodicCleanUp(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.deleteExpired()
		case <-stop:
			return
		}
	}
}

// deleteExpired removes all expired records from the Memstore.
func (m *Memstore) deleteExpired() {
	now := time.Now()
	m.sessions.Range(func(key, value any) bool {
		rec := value.(*record)
		if rec.expired(now) {
			m.sessions.CompareAndDelete(key, rec)
		}
		return true
	})
}
