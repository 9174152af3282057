package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// requestState tracks the session bound to one request and the cookie value
// the client sent, so the response can tell whether the cookie changed.
type requestState struct {
	incoming string
	sess     *Session
}

// responseWriter wraps http.ResponseWriter to intercept writes
// and ensure the session cookie is written before any headers or body.
type responseWriter struct {
	http.ResponseWriter
	mngr      *Manager
	state     *requestState
	isWritten bool
}

// Write commits the session cookie before writing the response body if it
// hasn't already been committed.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.isWritten {
		w.isWritten = true
		w.mngr.commit(w.ResponseWriter, w.state)
	}
	return w.ResponseWriter.Write(b)
}

// WriteHeader commits the session cookie before writing the response
// headers if it hasn't already been committed.
func (w *responseWriter) WriteHeader(statusCode int) {
	if !w.isWritten {
		w.isWritten = true
		w.mngr.commit(w.ResponseWriter, w.state)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Handler wraps an http.Handler and resolves the session cookie of every
// request. The session, if any, is available through Get. Changes made
// during the request (a new, regenerated or destroyed session) are
// reflected in the Set-Cookie header of the response.
//
// A store failure aborts the request with 500, since the session state
// could not be determined.
func (m *Manager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Cookie")

		var value string
		cookie, err := r.Cookie(m.cookie.name)
		if err == nil {
			value = cookie.Value
		}

		sess, err := m.GetSession(r.Context(), value)
		if err != nil {
			m.logger.ErrorContext(r.Context(), "session lookup failed", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		state := &requestState{incoming: value, sess: sess}
		sr := r.WithContext(context.WithValue(r.Context(), contextKey{m}, state))
		sw := &responseWriter{ResponseWriter: w, mngr: m, state: state}
		next.ServeHTTP(sw, sr)

		if !sw.isWritten {
			m.commit(w, state)
		}
	})
}

// Get returns the session bound to the request by Handler, or nil when the
// request carries no valid session.
func (m *Manager) Get(r *http.Request) *Session {
	state, ok := r.Context().Value(contextKey{m}).(*requestState)
	if !ok {
		return nil
	}
	return state.sess
}

// Start creates a session holding initial and binds it to the request, so
// Handler sends its cookie with the response. A live session already bound
// to the request is destroyed first.
func (m *Manager) Start(r *http.Request, initial map[string]any) (*Session, error) {
	state, _ := r.Context().Value(contextKey{m}).(*requestState)
	if state != nil && state.sess != nil {
		if err := state.sess.Destroy(r.Context()); err != nil {
			return nil, err
		}
	}

	sess, err := m.CreateSession(r.Context(), initial)
	if err != nil {
		return nil, err
	}

	if state != nil {
		state.sess = sess
	}
	return sess, nil
}

// commit emits the Set-Cookie header matching the request's final session.
func (m *Manager) commit(w http.ResponseWriter, state *requestState) {
	sess := state.sess
	if sess == nil || sess.IsDestroyed() {
		if state.incoming != "" {
			m.ClearCookie(w)
		}
		return
	}

	value := sess.Value()
	if value != state.incoming || m.rolling {
		m.writeCookie(w, value, sess.ExpiresAt())
	}
}

// WriteCookie sets the session cookie for sess on the response. A destroyed
// session clears the cookie instead.
func (m *Manager) WriteCookie(w http.ResponseWriter, sess *Session) {
	value := sess.Value()
	if value == "" {
		m.ClearCookie(w)
		return
	}
	m.writeCookie(w, value, sess.ExpiresAt())
}

// ClearCookie expires the session cookie on the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	m.writeCookie(w, "", time.Time{})
}

// writeCookie sets or expires the session cookie on the HTTP response.
func (m *Manager) writeCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	cookie := &http.Cookie{
		Value:       value,
		Name:        m.cookie.name,
		Domain:      m.cookie.domain,
		HttpOnly:    m.cookie.httpOnly,
		Path:        m.cookie.path,
		SameSite:    m.cookie.sameSite,
		Secure:      m.cookie.secure,
		Partitioned: m.cookie.partitioned,
	}

	if expiresAt.IsZero() {
		cookie.Expires = time.Unix(1, 0)
		cookie.MaxAge = -1
	} else if m.cookie.persisted {
		cookie.Expires = time.Unix(expiresAt.Unix()+1, 0)
		cookie.MaxAge = int(expiresAt.Sub(m.now()).Seconds() + 1)
	}

	http.SetCookie(w, cookie)
}
