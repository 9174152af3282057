package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"
)

var errNoValue = errors.New("session: no value")

// Manager issues, resolves and verifies sessions kept in a Store. A Manager
// is immutable once built and safe for concurrent use.
type Manager struct {
	store   Store
	signer  *Signer
	codec   Codec
	maxAge  time.Duration
	rolling bool
	newID   IDGenerator
	now     func() time.Time
	logger  *slog.Logger
	cookie  cookieConfig
}

// contextKey binds request state to the Manager that created it, so nested
// managers never see each other's sessions.
type contextKey struct {
	m *Manager
}

type cookieConfig struct {
	name        string
	path        string
	domain      string
	secure      bool
	httpOnly    bool
	partitioned bool
	sameSite    http.SameSite
	persisted   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxAge sets how long a session lives after creation or regeneration.
// (default 24hr.)
func WithMaxAge(maxAge time.Duration) Option {
	return func(m *Manager) {
		m.maxAge = maxAge
	}
}

// WithRolling makes every successful lookup push the expiration time to
// now plus the max age. (default false)
func WithRolling(rolling bool) Option {
	return func(m *Manager) {
		m.rolling = rolling
	}
}

// WithCodec sets the codec used to serialize records. (default GobCodec)
func WithCodec(codec Codec) Option {
	return func(m *Manager) {
		m.codec = codec
	}
}

// WithIDGenerator sets the session identifier generator. (default RandomIDs)
func WithIDGenerator(gen IDGenerator) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// WithLogger sets the logger used for diagnostics. (default discards)
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock sets the time source used for expiration. (default time.Now)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithName sets the cookie name for the session. (default "session_id".)
func WithName(name string) Option {
	return func(m *Manager) {
		m.cookie.name = name
	}
}

// WithPath sets the cookie path. (default "/".)
func WithPath(path string) Option {
	return func(m *Manager) {
		m.cookie.path = path
	}
}

// WithDomain sets the cookie domain. (default "".)
func WithDomain(domain string) Option {
	return func(m *Manager) {
		m.cookie.domain = domain
	}
}

// WithSecure sets the Secure flag on the cookie. (default false)
func WithSecure(secure bool) Option {
	return func(m *Manager) {
		m.cookie.secure = secure
	}
}

// WithHttpOnly sets the HttpOnly flag on the cookie. (default true)
func WithHttpOnly(httpOnly bool) Option {
	return func(m *Manager) {
		m.cookie.httpOnly = httpOnly
	}
}

// WithPartitioned sets the Partitioned flag on the cookie. (default false)
func WithPartitioned(partitioned bool) Option {
	return func(m *Manager) {
		m.cookie.partitioned = partitioned
	}
}

// WithSameSite sets the SameSite policy for the cookie. (default Lax)
func WithSameSite(sameSite http.SameSite) Option {
	return func(m *Manager) {
		m.cookie.sameSite = sameSite
	}
}

// WithPersisted sets whether the cookie carries an expiration. (default true)
func WithPersisted(persisted bool) Option {
	return func(m *Manager) {
		m.cookie.persisted = persisted
	}
}

// NewManager creates a session Manager backed by store and signing
// identifiers with secret. It returns an error wrapping ErrConfiguration
// when the store is nil, the secret is empty or the max age is not positive.
func NewManager(store Store, secret string, opts ...Option) (*Manager, error) {
	mngr := &Manager{
		store:  store,
		codec:  GobCodec{},
		maxAge: 24 * time.Hour,
		newID:  RandomIDs,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
		cookie: cookieConfig{
			name:      "session_id",
			path:      "/",
			httpOnly:  true,
			sameSite:  http.SameSiteLaxMode,
			persisted: true,
		},
	}

	for _, opt := range opts {
		opt(mngr)
	}

	switch {
	case store == nil:
		return nil, fmt.Errorf("%w: nil store", ErrConfiguration)
	case mngr.maxAge <= 0:
		return nil, fmt.Errorf("%w: max age must be positive, got %s", ErrConfiguration, mngr.maxAge)
	case mngr.codec == nil:
		return nil, fmt.Errorf("%w: nil codec", ErrConfiguration)
	case mngr.newID == nil:
		return nil, fmt.Errorf("%w: nil id generator", ErrConfiguration)
	case mngr.cookie.name == "":
		return nil, fmt.Errorf("%w: empty cookie name", ErrConfiguration)
	}

	signer, err := NewSigner(secret)
	if err != nil {
		return nil, err
	}
	mngr.signer = signer

	return mngr, nil
}

// MaxAge returns the configured session lifetime.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// CreateSession stores a new session holding a copy of initial and returns
// a live handle to it.
func (m *Manager) CreateSession(ctx context.Context, initial map[string]any) (*Session, error) {
	id, err := m.generateID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	rec := Record{
		CreatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
		Values:    cloneValues(initial),
	}
	if err := m.insert(ctx, id, rec); err != nil {
		return nil, err
	}

	return newSession(m, id, rec), nil
}

// GetSession resolves a transport value to a live session. Malformed
// values, bad signatures, missing and expired records all yield a nil
// session and a nil error. A non-nil error wraps ErrStoreUnavailable and
// means the session state could not be determined.
func (m *Manager) GetSession(ctx context.Context, value string) (*Session, error) {
	sess, err := m.resolve(ctx, value)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ErrStoreUnavailable):
		return nil, err
	case errors.Is(err, ErrSignatureMismatch):
		m.logger.WarnContext(ctx, "session rejected", slog.String("reason", "signature mismatch"))
	case errors.Is(err, ErrMalformedValue):
		m.logger.DebugContext(ctx, "session rejected", slog.String("reason", "malformed value"))
	case errors.Is(err, errNoValue):
		m.logger.DebugContext(ctx, "no session value")
	default:
		m.logger.DebugContext(ctx, "session not found", slog.Any("error", err))
	}
	return nil, nil
}

// resolve runs the decode, verify, load pipeline and reports why a value
// did not resolve.
func (m *Manager) resolve(ctx context.Context, value string) (*Session, error) {
	if value == "" {
		return nil, errNoValue
	}

	id, signature, err := DecodeValue(value)
	if err != nil {
		return nil, err
	}

	if !m.signer.Verify(id, signature) {
		return nil, ErrSignatureMismatch
	}

	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.rolling {
		rec.ExpiresAt = m.now().Add(m.maxAge)
		if err := m.replace(ctx, id, rec); err != nil {
			return nil, err
		}
	}

	return newSession(m, id, rec), nil
}

// load fetches and decodes the live record for id.
func (m *Manager) load(ctx context.Context, id string) (Record, error) {
	data, found, err := m.store.Get(ctx, id)
	if err != nil {
		return Record{}, m.unavailable(err)
	}
	if !found {
		return Record{}, ErrNotFound
	}

	rec, err := m.codec.Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: undecodable record: %w", ErrNotFound, err)
	}

	// backends may lag behind the record's own expiration
	if rec.expired(m.now()) {
		return Record{}, fmt.Errorf("%w: expired at %s", ErrNotFound, rec.ExpiresAt)
	}

	return rec, nil
}

// insert writes rec under id unconditionally.
func (m *Manager) insert(ctx context.Context, id string, rec Record) error {
	data, err := m.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("session: encode record: %w", err)
	}
	if err := m.store.Set(ctx, id, data, rec.ExpiresAt); err != nil {
		return m.unavailable(err)
	}
	return nil
}

// replace overwrites the record under id only while a live one exists. It
// returns ErrNotFound when there is nothing to overwrite.
func (m *Manager) replace(ctx context.Context, id string, rec Record) error {
	if rec.expired(m.now()) {
		return fmt.Errorf("%w: expired at %s", ErrNotFound, rec.ExpiresAt)
	}

	data, err := m.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("session: encode record: %w", err)
	}

	if r, ok := m.store.(Replacer); ok {
		found, err := r.Replace(ctx, id, data, rec.ExpiresAt)
		if err != nil {
			return m.unavailable(err)
		}
		if !found {
			return ErrNotFound
		}
		return nil
	}

	_, found, err := m.store.Get(ctx, id)
	if err != nil {
		return m.unavailable(err)
	}
	if !found {
		return ErrNotFound
	}
	if err := m.store.Set(ctx, id, data, rec.ExpiresAt); err != nil {
		return m.unavailable(err)
	}
	return nil
}

// remove deletes the record under id.
func (m *Manager) remove(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return m.unavailable(err)
	}
	return nil
}

func (m *Manager) generateID() (string, error) {
	id, err := m.newID()
	if err != nil {
		return "", err
	}
	if !isToken(id) {
		return "", fmt.Errorf("%w: identifier outside the token alphabet", ErrIDGeneration)
	}
	return id, nil
}

func (m *Manager) unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func cloneValues(values map[string]any) map[string]any {
	c := make(map[string]any, len(values))
	maps.Copy(c, values)
	return c
}
