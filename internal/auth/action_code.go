package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// ActionCodeBytes is the entropy behind an out-of-band action code.
const ActionCodeBytes = 24

// NewActionCode returns the oobCode carried by email verification and
// password reset links, URL-safe and unpadded.
func NewActionCode() (string, error) {
	b := make([]byte, ActionCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
