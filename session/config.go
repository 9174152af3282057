package session

import (
	"net/http"
	"time"
)

// Config holds the session manager configuration, loadable from the
// environment.
type Config struct {
	// Secret signs session identifiers. Changing it invalidates every
	// session issued under the previous secret.
	Secret string `env:"SESSION_SECRET,required"`

	MaxAge  time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	Rolling bool          `env:"SESSION_ROLLING" envDefault:"false"`

	CookieName        string        `env:"SESSION_COOKIE_NAME" envDefault:"session_id"`
	CookiePath        string        `env:"SESSION_COOKIE_PATH" envDefault:"/"`
	CookieDomain      string        `env:"SESSION_COOKIE_DOMAIN" envDefault:""`
	CookieSecure      bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	CookieHttpOnly    bool          `env:"SESSION_COOKIE_HTTP_ONLY" envDefault:"true"`
	CookiePartitioned bool          `env:"SESSION_COOKIE_PARTITIONED" envDefault:"false"`
	CookieSameSite    http.SameSite `env:"SESSION_COOKIE_SAME_SITE" envDefault:"2"` // 2 = SameSiteLaxMode
	CookiePersisted   bool          `env:"SESSION_COOKIE_PERSISTED" envDefault:"true"`
}

// DefaultConfig returns the default configuration. Secret is left empty
// and must be filled in.
func DefaultConfig() Config {
	return Config{
		MaxAge:          24 * time.Hour,
		CookieName:      "session_id",
		CookiePath:      "/",
		CookieHttpOnly:  true,
		CookieSameSite:  http.SameSiteLaxMode,
		CookiePersisted: true,
	}
}

// NewFromConfig creates a Manager from cfg and store. Options given in opts
// are applied after the ones derived from cfg.
func NewFromConfig(cfg Config, store Store, opts ...Option) (*Manager, error) {
	configOpts := []Option{
		WithMaxAge(cfg.MaxAge),
		WithRolling(cfg.Rolling),
		WithName(cfg.CookieName),
		WithPath(cfg.CookiePath),
		WithDomain(cfg.CookieDomain),
		WithSecure(cfg.CookieSecure),
		WithHttpOnly(cfg.CookieHttpOnly),
		WithPartitioned(cfg.CookiePartitioned),
		WithSameSite(cfg.CookieSameSite),
		WithPersisted(cfg.CookiePersisted),
	}

	configOpts = append(configOpts, opts...)

	return NewManager(store, cfg.Secret, configOpts...)
}
