package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Browser session ids and their CSRF tokens carry this much entropy.
const (
	sessionIDBytes = 32
	csrfTokenBytes = 24
)

// NewSessionTokens returns a fresh cookie session id and CSRF token, both
// base64url without padding.
func NewSessionTokens() (id, csrf string, err error) {
	if id, err = randomString(sessionIDBytes); err != nil {
		return "", "", err
	}
	if csrf, err = randomString(csrfTokenBytes); err != nil {
		return "", "", err
	}
	return id, csrf, nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
