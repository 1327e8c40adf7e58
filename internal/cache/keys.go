package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

const keyPrefix = "search:"

// storageKey maps a raw query to a backend-safe key. Queries may contain
// spaces and arbitrary unicode, which memcached rejects, so the query is hashed.
func storageKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return keyPrefix + hex.EncodeToString(sum[:])
}
