package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Session is a live handle to one stored session. It holds the identifier
// and a cached copy of the data; every mutator writes through to the store
// before returning and only updates the cache once the write succeeded.
//
// A Session is safe for concurrent use. Two handles for the same session
// do not share state: concurrent writes race at last-write-wins.
type Session struct {
	mu sync.Mutex

	mngr *Manager

	// Unique identifier for this session
	id string

	// set once at creation, kept across regeneration
	createdAt time.Time

	expiresAt time.Time

	// Session data as key-value pairs
	values map[string]any

	isDestroyed bool
}

func newSession(m *Manager, id string, rec Record) *Session {
	return &Session{
		mngr:      m,
		id:        id,
		createdAt: rec.CreatedAt,
		expiresAt: rec.ExpiresAt,
		values:    cloneValues(rec.Values),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Value returns the signed transport value for the session, suitable for
// a cookie. It returns "" once the session has been destroyed.
func (s *Session) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDestroyed {
		return ""
	}
	return EncodeValue(s.id, s.mngr.signer.Sign(s.id))
}

// CreatedAt returns the time when the session was created.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// ExpiresAt returns the time after which the session is no longer resolvable.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// IsDestroyed reports whether the session has been destroyed through this
// handle, or was found gone during a write.
func (s *Session) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDestroyed
}

// Values returns a copy of the session data.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneValues(s.values)
}

// Get retrieves a value from the session.
// Returns nil if the key doesn't exist.
func (s *Session) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *Session) GetInt(key string) int {
	v, _ := s.Get(key).(int)
	return v
}

func (s *Session) GetInt64(key string) int64 {
	v, _ := s.Get(key).(int64)
	return v
}

func (s *Session) GetUint(key string) uint {
	v, _ := s.Get(key).(uint)
	return v
}

func (s *Session) GetBool(key string) bool {
	v, _ := s.Get(key).(bool)
	return v
}

func (s *Session) GetFloat32(key string) float32 {
	v, _ := s.Get(key).(float32)
	return v
}

func (s *Session) GetFloat64(key string) float64 {
	v, _ := s.Get(key).(float64)
	return v
}

func (s *Session) GetString(key string) string {
	v, _ := s.Get(key).(string)
	return v
}

// Update merges partial into the session data, last write wins per key,
// and persists the result. The identifier and creation time are unchanged
// and the stored expiration time is kept, so a rolling refresh made through
// another handle is never undone. It returns ErrNotFound, and the handle
// becomes destroyed, if the stored session is gone.
func (s *Session) Update(ctx context.Context, partial map[string]any) error {
	return s.mutate(ctx, func(values map[string]any) {
		maps.Copy(values, partial)
	})
}

// Set adds or updates a single value and persists the session.
func (s *Session) Set(ctx context.Context, key string, value any) error {
	return s.mutate(ctx, func(values map[string]any) {
		values[key] = value
	})
}

// Delete removes a value and persists the session.
func (s *Session) Delete(ctx context.Context, key string) error {
	return s.mutate(ctx, func(values map[string]any) {
		delete(values, key)
	})
}

// Clear removes all values and persists the session.
func (s *Session) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(values map[string]any) {
		clear(values)
	})
}

func (s *Session) mutate(ctx context.Context, fn func(map[string]any)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDestroyed {
		return ErrDestroyed
	}

	// a rolling lookup elsewhere may have pushed the stored expiry past
	// the cached one; never write it back
	current, err := s.mngr.load(ctx, s.id)
	if err != nil {
		if isNotFound(err) {
			s.markDestroyed()
		}
		return err
	}

	values := cloneValues(s.values)
	fn(values)

	rec := Record{CreatedAt: s.createdAt, ExpiresAt: current.ExpiresAt, Values: values}
	if err := s.mngr.replace(ctx, s.id, rec); err != nil {
		if isNotFound(err) {
			s.markDestroyed()
		}
		return err
	}

	s.expiresAt = rec.ExpiresAt
	s.values = values
	return nil
}

// Destroy deletes the stored session. The identifier can never resolve
// again. Destroying an already destroyed session is a no-op.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDestroyed {
		return nil
	}

	if err := s.mngr.remove(ctx, s.id); err != nil {
		return err
	}

	s.markDestroyed()
	return nil
}

// Regenerate moves the session to a fresh identifier, keeping its data and
// creation time and pushing its expiration to now plus the max age. The
// new record is written before the old one is deleted, so a reader holding
// the old value sees either the old session or nothing, and the session is
// always resolvable under one of the two identifiers.
func (s *Session) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDestroyed {
		return ErrDestroyed
	}

	m := s.mngr

	// the store is the source of truth for the snapshot
	current, err := m.load(ctx, s.id)
	if err != nil {
		if isNotFound(err) {
			s.markDestroyed()
		}
		return err
	}

	newID, err := m.generateID()
	if err != nil {
		return err
	}

	rec := Record{
		CreatedAt: s.createdAt,
		ExpiresAt: m.now().Add(m.maxAge),
		Values:    current.Values,
	}
	if err := m.insert(ctx, newID, rec); err != nil {
		return err
	}

	if err := m.remove(ctx, s.id); err != nil {
		// keep the handle on the old id; drop the orphan
		if rerr := m.remove(ctx, newID); rerr != nil {
			m.logger.ErrorContext(ctx, "orphaned regenerated session", "error", rerr)
		}
		return err
	}

	s.id = newID
	s.expiresAt = rec.ExpiresAt
	s.values = cloneValues(rec.Values)
	return nil
}

func (s *Session) markDestroyed() {
	s.isDestroyed = true
	s.values = make(map[string]any)
}
