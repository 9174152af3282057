// Package logger builds structured slog loggers and provides an HTTP
// middleware that writes one log record per request.
//
// Usage:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
//		w.Write([]byte("Hello, world!"))
//	})
//
//	l := logger.New(
//	    logger.WithFormat(logger.FormatText),
//	    logger.WithOutput(os.Stdout),
//	)
//
//	mgr, _ := session.NewManager(store, secret, session.WithLogger(l.Slog()))
//	http.ListenAndServe(":8080", l.Handler(mgr.Handler(mux)))
//
// Each request record carries the response status, latency, client IP,
// request method and path.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs one JSON object per record.
	FormatJSON Format = "json"
	// FormatText outputs key=value records.
	FormatText Format = "text"
)

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before delegating to the underlying ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger wraps a slog.Logger and can log HTTP requests as middleware.
type Logger struct {
	format Format
	output io.Writer
	level  slog.Level
	attrs  []slog.Attr
	slog   *slog.Logger
}

type config func(*Logger)

// WithFormat sets the output format. It panics on an unknown format, since
// that is a programming error.
func WithFormat(format Format) config {
	return config(func(l *Logger) {
		switch format {
		case FormatJSON, FormatText:
			l.format = format
		default:
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", format, FormatJSON, FormatText))
		}
	})
}

// WithOutput sets the output destination for log records.
func WithOutput(output io.Writer) config {
	return config(func(l *Logger) {
		if output != nil {
			l.output = output
		}
	})
}

// WithLevel sets the minimum level logged. (default Info)
func WithLevel(level slog.Level) config {
	return config(func(l *Logger) {
		l.level = level
	})
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) config {
	return config(func(l *Logger) {
		l.attrs = append(l.attrs, attrs...)
	})
}

// Slog returns the underlying structured logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Handler wraps an http.Handler and logs one record per request. It
// records the response status code, latency, client IP, HTTP method,
// and path.
func (l *Logger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		level := slog.LevelInfo
		if rw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		l.slog.LogAttrs(r.Context(), level, "request",
			slog.Int("status", rw.statusCode),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", ip),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	})
}

// New creates a new Logger with optional configuration. By default it
// writes JSON records at Info level to os.Stdout.
func New(cfgs ...config) *Logger {
	lgr := &Logger{
		format: FormatJSON,
		output: os.Stdout,
		level:  slog.LevelInfo,
	}

	for _, cfg := range cfgs {
		cfg(lgr)
	}

	opts := &slog.HandlerOptions{Level: lgr.level}
	var handler slog.Handler
	if lgr.format == FormatText {
		handler = slog.NewTextHandler(lgr.output, opts)
	} else {
		handler = slog.NewJSONHandler(lgr.output, opts)
	}
	if len(lgr.attrs) > 0 {
		handler = handler.WithAttrs(lgr.attrs)
	}

	lgr.slog = slog.New(handler)
	return lgr
}
