package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a bearer token value for use as a store key, so raw
// token strings never sit in cache keys.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
