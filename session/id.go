package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// IDGenerator produces fresh session identifiers. Identifiers must be
// unpredictable and only use base64url characters.
type IDGenerator func() (string, error)

const idSize = 32 // 256 bits

// RandomIDs generates 32 random bytes encoded as unpadded base64url.
func RandomIDs() (string, error) {
	b := make([]byte, idSize)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrIDGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// UUIDv7IDs generates time-ordered UUIDv7 identifiers. They carry 74 random
// bits, fewer than RandomIDs, in exchange for index-friendly ordering in SQL
// stores.
func UUIDv7IDs() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Join(ErrIDGeneration, err)
	}
	return id.String(), nil
}
