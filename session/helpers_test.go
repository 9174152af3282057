package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluescreen10/sessionx/memstore"
	"github.com/bluescreen10/sessionx/session"
)

const testSecret = "a-test-secret-that-is-long-enough"

func newManager(t *testing.T, store session.Store, opts ...session.Option) *session.Manager {
	t.Helper()
	if store == nil {
		store = memstore.New()
	}
	mngr, err := session.NewManager(store, testSecret, opts...)
	require.NoError(t, err)
	return mngr
}

// mockstore delegates every call to its func fields.
type mockstore struct {
	get    func(string) ([]byte, bool, error)
	set    func(string, []byte, time.Time) error
	delete func(string) error
}

func (s *mockstore) Get(_ context.Context, token string) ([]byte, bool, error) {
	return s.get(token)
}

func (s *mockstore) Set(_ context.Context, token string, data []byte, expiresAt time.Time) error {
	return s.set(token, data, expiresAt)
}

func (s *mockstore) Delete(_ context.Context, token string) error {
	return s.delete(token)
}

var _ session.Store = &mockstore{}

// mapStore never expires anything on its own and has no Replace, so it
// exercises the manager's own expiry check and its Get-then-Set fallback.
type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (s *mapStore) Get(_ context.Context, token string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[token]
	return d, ok, nil
}

func (s *mapStore) Set(_ context.Context, token string, data []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[token] = data
	return nil
}

func (s *mapStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, token)
	return nil
}

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// recordingStore logs the order of writes reaching a memstore.
type recordingStore struct {
	*memstore.Memstore
	mu  sync.Mutex
	ops []string
}

func (s *recordingStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *recordingStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	s.record("set:" + token)
	return s.Memstore.Set(ctx, token, data, expiresAt)
}

func (s *recordingStore) Delete(ctx context.Context, token string) error {
	s.record("delete:" + token)
	return s.Memstore.Delete(ctx, token)
}

// failingDeleteStore fails deletes of a single token.
type failingDeleteStore struct {
	*memstore.Memstore
	failToken string
	err       error
}

func (s *failingDeleteStore) Delete(ctx context.Context, token string) error {
	if token == s.failToken {
		return s.err
	}
	return s.Memstore.Delete(ctx, token)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now()}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
