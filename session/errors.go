package session

import "errors"

var (
	// ErrMalformedValue is returned when a transport value does not split into
	// an identifier and a signature, or either part leaves the token alphabet.
	ErrMalformedValue = errors.New("session: malformed value")

	// ErrSignatureMismatch is returned when the signature does not match the
	// identifier under the manager's secret.
	ErrSignatureMismatch = errors.New("session: signature mismatch")

	// ErrNotFound is returned when the store has no live record for an identifier.
	ErrNotFound = errors.New("session: not found")

	// ErrConfiguration is returned by constructors given an unusable configuration.
	ErrConfiguration = errors.New("session: invalid configuration")

	// ErrStoreUnavailable wraps store I/O failures. It means the session state
	// could not be determined, which is not the same as "no session".
	ErrStoreUnavailable = errors.New("session: store unavailable")

	// ErrDestroyed is returned by mutators called on a destroyed handle.
	ErrDestroyed = errors.New("session: destroyed")

	// ErrIDGeneration is returned when a fresh identifier cannot be produced.
	ErrIDGeneration = errors.New("session: id generation failed")
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
