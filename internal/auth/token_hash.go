package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var errTokenRequired = errors.New("session token is required")

// hashSessionToken derives the value stored in Postgres from a raw session
// token. Only the digest is persisted, so a leaked sessions table cannot be
// replayed against the API.
func hashSessionToken(token string) (string, error) {
	if token == "" {
		return "", errTokenRequired
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:]), nil
}
