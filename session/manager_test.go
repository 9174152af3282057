package session_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluescreen10/sessionx/memstore"
	"github.com/bluescreen10/sessionx/session"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, memstore.New(), session.WithMaxAge(3600000*time.Millisecond))

	sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, time.Hour, sess.ExpiresAt().Sub(sess.CreatedAt()))

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID(), got.ID())
	assert.Equal(t, "123", got.GetString("userId"))

	require.NoError(t, sess.Update(ctx, map[string]any{"userId": "456"}))

	got, err = mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "456", got.GetString("userId"))
	assert.True(t, sess.ExpiresAt().Equal(got.ExpiresAt()))

	value := sess.Value()
	require.NoError(t, sess.Destroy(ctx))
	assert.True(t, sess.IsDestroyed())
	assert.Empty(t, sess.Value())

	got, err = mngr.GetSession(ctx, value)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateSessionCopiesInitial(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, nil)

	initial := map[string]any{"a": 1}
	sess, err := mngr.CreateSession(ctx, initial)
	require.NoError(t, err)

	initial["a"] = 2
	initial["b"] = true
	assert.Equal(t, map[string]any{"a": 1}, sess.Values())

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]any{"a": 1}, got.Values())
}

func TestCreateSessionNilInitial(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, nil)

	sess, err := mngr.CreateSession(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, sess.Values())

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.Values())
	assert.Empty(t, got.Values())
}

func TestCreateSessionUniqueIDs(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, nil)

	const n = 200
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]string, n)
	)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := mngr.CreateSession(ctx, map[string]any{"n": i})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[sess.ID()] = sess.Value()
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, n)
	for id, value := range ids {
		got, err := mngr.GetSession(ctx, value)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID())
	}
}

func TestGetSessionExpired(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, memstore.New(), session.WithMaxAge(100*time.Millisecond))

	sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
	require.NoError(t, err)

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	assert.NotNil(t, got)

	time.Sleep(150 * time.Millisecond)

	got, err = mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSessionExpiredBackendLags(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	c := newClock()
	mngr := newManager(t, store, session.WithMaxAge(time.Minute), session.WithClock(c.Now))

	sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
	require.NoError(t, err)

	c.Advance(time.Minute - time.Millisecond)
	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	assert.NotNil(t, got)

	// exactly at expiration the session is gone even though the store
	// still holds the record
	c.Advance(time.Millisecond)
	got, err = mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, store.len())

	err = sess.Update(ctx, map[string]any{"userId": "456"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.True(t, sess.IsDestroyed())
}

func TestGetSessionRejected(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	mngr := newManager(t, store)

	sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
	require.NoError(t, err)
	other, err := mngr.CreateSession(ctx, map[string]any{"userId": "999"})
	require.NoError(t, err)

	id, sig, err := session.DecodeValue(sess.Value())
	require.NoError(t, err)

	foreign, err := session.NewManager(store, "another secret")
	require.NoError(t, err)
	foreignSess, err := foreign.CreateSession(ctx, map[string]any{"userId": "777"})
	require.NoError(t, err)

	flipped := []byte(sig)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}

	values := map[string]string{
		"empty":               "",
		"signature only":      ".signatureOnly",
		"no delimiter":        id,
		"garbage":             "not a session value",
		"tampered signature":  session.EncodeValue(id, string(flipped)),
		"swapped identifier":  session.EncodeValue(other.ID(), sig),
		"unknown identifier":  session.EncodeValue("unknown", sig),
		"signed elsewhere":    foreignSess.Value(),
		"truncated signature": session.EncodeValue(id, sig[:len(sig)-2]),
	}

	for name, value := range values {
		t.Run(name, func(t *testing.T) {
			got, err := mngr.GetSession(ctx, value)
			assert.NoError(t, err)
			assert.Nil(t, got)
		})
	}

	// the legitimate value still works
	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123", got.GetString("userId"))
}

func TestGetSessionVerifiesBeforeStore(t *testing.T) {
	ctx := context.Background()
	store := &mockstore{
		get: func(string) ([]byte, bool, error) {
			t.Fatal("store must not be consulted for unverified values")
			return nil, false, nil
		},
	}
	mngr := newManager(t, store)

	values := []string{"", ".signatureOnly", "abc.def", "abc"}
	for _, value := range values {
		got, err := mngr.GetSession(ctx, value)
		assert.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestGetSessionUnknownSignedID(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, nil)

	signer, err := session.NewSigner(testSecret)
	require.NoError(t, err)

	got, err := mngr.GetSession(ctx, session.EncodeValue("never-issued", signer.Sign("never-issued")))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSessionUndecodableRecord(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	mngr := newManager(t, store)

	require.NoError(t, store.Set(ctx, "corrupt", []byte("not a record"), time.Now().Add(time.Hour)))

	signer, err := session.NewSigner(testSecret)
	require.NoError(t, err)

	got, err := mngr.GetSession(ctx, session.EncodeValue("corrupt", signer.Sign("corrupt")))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	errDown := errors.New("connection refused")

	store := &mockstore{
		get:    func(string) ([]byte, bool, error) { return nil, false, errDown },
		set:    func(string, []byte, time.Time) error { return errDown },
		delete: func(string) error { return errDown },
	}
	mngr := newManager(t, store)

	t.Run("create", func(t *testing.T) {
		sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
		assert.ErrorIs(t, err, session.ErrStoreUnavailable)
		assert.ErrorIs(t, err, errDown)
		assert.Nil(t, sess)
	})

	t.Run("get", func(t *testing.T) {
		signer, err := session.NewSigner(testSecret)
		require.NoError(t, err)

		sess, err := mngr.GetSession(ctx, session.EncodeValue("abc", signer.Sign("abc")))
		assert.ErrorIs(t, err, session.ErrStoreUnavailable)
		assert.ErrorIs(t, err, errDown)
		assert.Nil(t, sess)
	})
}

func TestStoreUnavailableLeavesHandleIntact(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	errDown := errors.New("connection reset")
	down := false

	store := &mockstore{
		get: func(token string) ([]byte, bool, error) {
			if down {
				return nil, false, errDown
			}
			return inner.Get(ctx, token)
		},
		set: func(token string, data []byte, expiresAt time.Time) error {
			if down {
				return errDown
			}
			return inner.Set(ctx, token, data, expiresAt)
		},
		delete: func(token string) error {
			if down {
				return errDown
			}
			return inner.Delete(ctx, token)
		},
	}
	mngr := newManager(t, store)

	sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
	require.NoError(t, err)
	id := sess.ID()

	down = true

	err = sess.Update(ctx, map[string]any{"userId": "456"})
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
	assert.Equal(t, "123", sess.GetString("userId"))

	err = sess.Destroy(ctx)
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
	assert.False(t, sess.IsDestroyed())

	err = sess.Regenerate(ctx)
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
	assert.Equal(t, id, sess.ID())

	down = false

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123", got.GetString("userId"))
}

func TestNewManagerConfiguration(t *testing.T) {
	store := memstore.New()

	tests := []struct {
		name   string
		store  session.Store
		secret string
		opts   []session.Option
	}{
		{name: "nil store", store: nil, secret: testSecret},
		{name: "empty secret", store: store, secret: ""},
		{name: "zero max age", store: store, secret: testSecret, opts: []session.Option{session.WithMaxAge(0)}},
		{name: "negative max age", store: store, secret: testSecret, opts: []session.Option{session.WithMaxAge(-time.Second)}},
		{name: "nil codec", store: store, secret: testSecret, opts: []session.Option{session.WithCodec(nil)}},
		{name: "nil id generator", store: store, secret: testSecret, opts: []session.Option{session.WithIDGenerator(nil)}},
		{name: "empty cookie name", store: store, secret: testSecret, opts: []session.Option{session.WithName("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mngr, err := session.NewManager(tt.store, tt.secret, tt.opts...)
			assert.ErrorIs(t, err, session.ErrConfiguration)
			assert.Nil(t, mngr)
		})
	}
}

func TestNewManagerDefaults(t *testing.T) {
	mngr := newManager(t, nil)
	assert.Equal(t, 24*time.Hour, mngr.MaxAge())
}

func TestIDGenerators(t *testing.T) {
	ctx := context.Background()

	t.Run("uuid v7", func(t *testing.T) {
		mngr := newManager(t, nil, session.WithIDGenerator(session.UUIDv7IDs))

		sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
		require.NoError(t, err)
		assert.Len(t, sess.ID(), 36)

		got, err := mngr.GetSession(ctx, sess.Value())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "123", got.GetString("userId"))
	})

	t.Run("failing", func(t *testing.T) {
		errEntropy := errors.New("entropy exhausted")
		mngr := newManager(t, nil, session.WithIDGenerator(func() (string, error) {
			return "", errEntropy
		}))

		sess, err := mngr.CreateSession(ctx, nil)
		assert.ErrorIs(t, err, errEntropy)
		assert.Nil(t, sess)
	})

	t.Run("outside alphabet", func(t *testing.T) {
		mngr := newManager(t, nil, session.WithIDGenerator(func() (string, error) {
			return "has.delimiter", nil
		}))

		sess, err := mngr.CreateSession(ctx, nil)
		assert.ErrorIs(t, err, session.ErrIDGeneration)
		assert.Nil(t, sess)
	})
}

func TestJSONCodecManager(t *testing.T) {
	ctx := context.Background()
	mngr := newManager(t, nil, session.WithCodec(session.JSONCodec{}))

	sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123", "admin": true})
	require.NoError(t, err)

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123", got.GetString("userId"))
	assert.True(t, got.GetBool("admin"))
	assert.True(t, sess.CreatedAt().Equal(got.CreatedAt()))
}

func TestRolling(t *testing.T) {
	ctx := context.Background()

	for _, rolling := range []bool{true, false} {
		t.Run(fmt.Sprintf("rolling=%v", rolling), func(t *testing.T) {
			c := newClock()
			mngr := newManager(t, newMapStore(),
				session.WithMaxAge(time.Hour),
				session.WithRolling(rolling),
				session.WithClock(c.Now),
			)

			sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
			require.NoError(t, err)
			created := sess.ExpiresAt()

			c.Advance(50 * time.Minute)
			got, err := mngr.GetSession(ctx, sess.Value())
			require.NoError(t, err)
			require.NotNil(t, got)

			if rolling {
				assert.Equal(t, c.Now().Add(time.Hour), got.ExpiresAt())
			} else {
				assert.True(t, created.Equal(got.ExpiresAt()))
			}

			c.Advance(50 * time.Minute)
			got, err = mngr.GetSession(ctx, sess.Value())
			require.NoError(t, err)
			if rolling {
				require.NotNil(t, got)
				assert.Equal(t, "123", got.GetString("userId"))
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestRollingWithStaleHandle(t *testing.T) {
	ctx := context.Background()

	for _, updateAt := range []time.Duration{55 * time.Minute, 70 * time.Minute} {
		t.Run(fmt.Sprintf("update at %s", updateAt), func(t *testing.T) {
			c := newClock()
			start := c.Now()
			mngr := newManager(t, newMapStore(),
				session.WithMaxAge(time.Hour),
				session.WithRolling(true),
				session.WithClock(c.Now),
			)

			sess, err := mngr.CreateSession(ctx, map[string]any{"userId": "123"})
			require.NoError(t, err)

			c.Advance(50 * time.Minute)
			rolled, err := mngr.GetSession(ctx, sess.Value())
			require.NoError(t, err)
			require.NotNil(t, rolled)
			rolledExpiry := rolled.ExpiresAt()
			assert.True(t, start.Add(110*time.Minute).Equal(rolledExpiry))

			// the original handle still caches the first expiry
			c.Advance(updateAt - 50*time.Minute)
			require.NoError(t, sess.Update(ctx, map[string]any{"userId": "456"}))
			assert.False(t, sess.IsDestroyed())
			assert.True(t, rolledExpiry.Equal(sess.ExpiresAt()))

			c.Advance(10 * time.Minute)
			got, err := mngr.GetSession(ctx, sess.Value())
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "456", got.GetString("userId"))
		})
	}
}

func TestGetSessionLogging(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mngr := newManager(t, nil, session.WithLogger(logger))

	foreign, err := session.NewManager(memstore.New(), "another secret")
	require.NoError(t, err)
	sess, err := foreign.CreateSession(ctx, nil)
	require.NoError(t, err)

	got, err := mngr.GetSession(ctx, sess.Value())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = mngr.GetSession(ctx, ".signatureOnly")
	require.NoError(t, err)
	assert.Nil(t, got)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "signature mismatch")
	assert.Contains(t, out, "malformed value")
	assert.NotContains(t, out, testSecret)
	assert.NotContains(t, out, sess.Value())
	assert.False(t, strings.Contains(out, sess.ID()))
}
