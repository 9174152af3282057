package session

import "strings"

// Delimiter separates the identifier from its signature in a transport
// value. It is outside the base64url alphabet used by both parts and is an
// unreserved URL character, so percent-encoding leaves it untouched.
const Delimiter = '.'

// EncodeValue joins an identifier and its signature into a transport value.
func EncodeValue(id, signature string) string {
	return id + string(Delimiter) + signature
}

// DecodeValue splits a transport value into its identifier and signature.
// It returns ErrMalformedValue unless the value holds exactly two non-empty
// parts drawn from the base64url alphabet.
func DecodeValue(value string) (id, signature string, err error) {
	id, signature, ok := strings.Cut(value, string(Delimiter))
	if !ok || !isToken(id) || !isToken(signature) {
		return "", "", ErrMalformedValue
	}
	return id, signature, nil
}

// isToken reports whether s is non-empty and only holds base64url characters.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
