package session

import (
	"context"
	"time"
)

// Store defines the interface for session storage backends.
// A Store is responsible for persisting and retrieving encoded session
// records by a session identifier. Implementations may keep records in
// memory, databases, caches, or any other storage system.
type Store interface {
	// Get retrieves the record associated with the given token. It returns
	// the raw record, a boolean indicating whether a live record was found,
	// and an error if the lookup failed. A record whose expiration time has
	// passed must be reported as not found, even if it has not been evicted.
	Get(ctx context.Context, token string) (data []byte, found bool, err error)

	// Set stores the record for the given token until the specified
	// expiration time. If a record with the same token already exists, it
	// is overwritten.
	Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error

	// Delete removes the record associated with the given token. It must not
	// return an error if the record does not exist.
	Delete(ctx context.Context, token string) error
}

// Replacer is implemented by stores that can overwrite a record only while
// a live record exists under the token. The Manager uses it for updates so
// that a stale handle never resurrects a destroyed or expired session.
type Replacer interface {
	// Replace overwrites the live record for token and reports whether one
	// existed. When it reports false nothing was written.
	Replace(ctx context.Context, token string, data []byte, expiresAt time.Time) (bool, error)
}
