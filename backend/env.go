package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluescreen10/sessionx/config"
	"github.com/bluescreen10/sessionx/logger"
	"github.com/bluescreen10/sessionx/session"
)

// LogConfig selects the logger FromEnv builds when the caller gives none.
type LogConfig struct {
	Format logger.Format `env:"SESSION_LOG_FORMAT" envDefault:"json"`
	Level  slog.Level    `env:"SESSION_LOG_LEVEL" envDefault:"INFO"`
}

// FromEnv loads the session, backend and log configuration from the
// environment (and a .env file, if present), opens the selected store and
// builds a Manager on top of it.
//
// A nil l gets a logger built from SESSION_LOG_FORMAT and SESSION_LOG_LEVEL.
func FromEnv(ctx context.Context, l *slog.Logger, opts ...session.Option) (*session.Manager, *Backend, error) {
	var (
		sessCfg session.Config
		cfg     Config
		logCfg  LogConfig
	)
	if err := config.Load(&sessCfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", session.ErrConfiguration, err)
	}
	if err := config.Load(&cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", session.ErrConfiguration, err)
	}

	if l == nil {
		if err := config.Load(&logCfg); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", session.ErrConfiguration, err)
		}
		if logCfg.Format != logger.FormatJSON && logCfg.Format != logger.FormatText {
			return nil, nil, fmt.Errorf("%w: log format %q", session.ErrConfiguration, logCfg.Format)
		}
		l = logger.New(
			logger.WithFormat(logCfg.Format),
			logger.WithLevel(logCfg.Level),
			logger.WithAttr(slog.String("component", "session")),
		).Slog()
	}

	return Setup(ctx, sessCfg, cfg, l, opts...)
}
