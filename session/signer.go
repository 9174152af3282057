package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Signer computes and verifies HMAC-SHA256 signatures over session
// identifiers. Only the identifier is authenticated; session data lives in
// the store and can change without re-signing.
type Signer struct {
	key []byte
}

// NewSigner returns a Signer keyed by secret. The secret must not be empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrConfiguration)
	}
	return &Signer{key: []byte(secret)}, nil
}

// Sign returns the base64url (unpadded) signature of id.
func (s *Signer) Sign(id string) string {
	return base64.RawURLEncoding.EncodeToString(s.mac(id))
}

// Verify reports whether signature is the signature of id. The encoded
// forms are compared in constant time, so every id has exactly one valid
// signature string.
func (s *Signer) Verify(id, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(s.Sign(id)))
}

func (s *Signer) mac(id string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(id))
	return m.Sum(nil)
}
