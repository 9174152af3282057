// Package backend opens the session store selected by configuration.
//
// The selector is one of "memory", "redis", "sqlite" or "mysql". Stores
// that support it get a background sweep of expired records; closing the
// Backend stops the sweep and releases connections.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bluescreen10/sessionx/gormstore"
	"github.com/bluescreen10/sessionx/memstore"
	"github.com/bluescreen10/sessionx/mysqlstore"
	"github.com/bluescreen10/sessionx/redisstore"
	"github.com/bluescreen10/sessionx/session"
)

// Store selectors.
const (
	Memory = "memory"
	Redis  = "redis"
	SQLite = "sqlite"
	MySQL  = "mysql"
)

var (
	// ErrUnknownDriver is returned for a selector no backend answers to.
	ErrUnknownDriver = fmt.Errorf("%w: unknown store", session.ErrConfiguration)

	// ErrStoreNotReady is returned when the store could not be reached
	// within the configured attempts.
	ErrStoreNotReady = errors.New("backend: store not ready")
)

// Config holds the store backend configuration.
type Config struct {
	Driver          string        `env:"SESSION_STORE" envDefault:"memory"`
	RedisURL        string        `env:"SESSION_REDIS_URL" envDefault:"redis://localhost:6379/0"` // redis://:password@host:6379/0
	RedisPrefix     string        `env:"SESSION_REDIS_PREFIX" envDefault:"session:"`
	DSN             string        `env:"SESSION_DSN" envDefault:""` // sqlite file or mysql DSN
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"` // 0 disables the sweep
	RetryAttempts   int           `env:"SESSION_STORE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"SESSION_STORE_RETRY_INTERVAL" envDefault:"1s"`
	ConnectTimeout  time.Duration `env:"SESSION_STORE_CONNECT_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          Memory,
		RedisURL:        "redis://localhost:6379/0",
		RedisPrefix:     "session:",
		CleanupInterval: 5 * time.Minute,
		RetryAttempts:   3,
		RetryInterval:   time.Second,
		ConnectTimeout:  10 * time.Second,
	}
}

// Backend is an opened session store.
type Backend struct {
	Store   session.Store
	closers []func() error
}

// Close stops the background sweep and closes the underlying connection.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

type sweeper interface {
	PeriodicCleanUp(interval time.Duration, stop <-chan struct{})
}

func (b *Backend) sweep(s sweeper, interval time.Duration) {
	if interval <= 0 {
		return
	}
	stop := make(chan struct{})
	go s.PeriodicCleanUp(interval, stop)
	b.closers = append(b.closers, func() error {
		close(stop)
		return nil
	})
}

// Open connects the store selected by cfg.Driver. A nil logger falls back
// to slog.Default().
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{}
	var err error
	switch cfg.Driver {
	case Memory:
		err = b.openMemory(cfg)
	case Redis:
		err = b.openRedis(ctx, cfg)
	case SQLite:
		err = b.openSQLite(cfg, logger)
	case MySQL:
		err = b.openMySQL(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}

	logger.InfoContext(ctx, "session store opened", slog.String("driver", cfg.Driver))
	return b, nil
}

// Setup opens the store selected by cfg.Driver and builds a Manager from
// sessCfg on top of it. The caller owns the returned Backend and must close it.
func Setup(ctx context.Context, sessCfg session.Config, cfg Config, logger *slog.Logger, opts ...session.Option) (*session.Manager, *Backend, error) {
	b, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	if logger != nil {
		opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	}

	mngr, err := session.NewFromConfig(sessCfg, b.Store, opts...)
	if err != nil {
		return nil, nil, errors.Join(err, b.Close())
	}
	return mngr, b, nil
}

func (b *Backend) openMemory(cfg Config) error {
	s := memstore.New()
	b.Store = s
	b.sweep(s, cfg.CleanupInterval)
	return nil
}

func (b *Backend) openRedis(ctx context.Context, cfg Config) error {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("%w: redis url: %w", session.ErrConfiguration, err)
	}

	client := redis.NewClient(opt)
	b.closers = append(b.closers, client.Close)

	err = retry(ctx, cfg, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		return err
	}

	b.Store = redisstore.New(client, redisstore.WithPrefix(cfg.RedisPrefix))
	return nil
}

func (b *Backend) openSQLite(cfg Config, logger *slog.Logger) error {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return errors.Join(ErrStoreNotReady, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Join(ErrStoreNotReady, err)
	}
	b.closers = append(b.closers, sqlDB.Close)

	s, err := gormstore.New(db, gormstore.WithLogger(logger))
	if err != nil {
		return err
	}
	b.Store = s
	b.sweep(s, cfg.CleanupInterval)
	return nil
}

func (b *Backend) openMySQL(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if cfg.DSN == "" {
		return fmt.Errorf("%w: mysql requires a DSN", session.ErrConfiguration)
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("%w: mysql dsn: %w", session.ErrConfiguration, err)
	}
	b.closers = append(b.closers, db.Close)

	if err := retry(ctx, cfg, db.PingContext); err != nil {
		return err
	}

	s, err := mysqlstore.New(db, mysqlstore.WithLogger(logger))
	if err != nil {
		return err
	}
	b.Store = s
	b.sweep(s, cfg.CleanupInterval)
	return nil
}

// retry calls ping until it succeeds, the attempts run out or the connect
// timeout elapses.
func retry(ctx context.Context, cfg Config, ping func(context.Context) error) error {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	attempts := max(cfg.RetryAttempts, 1)
	var err error
	for i := range attempts {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(ErrStoreNotReady, err, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return errors.Join(ErrStoreNotReady, err)
}
