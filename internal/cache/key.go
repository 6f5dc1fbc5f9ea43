package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// maxKeyLength bounds generated keys; longer keys collapse to a digest.
const maxKeyLength = 200

// Key builds a deterministic cache key from an operation, a path, and its
// parameters. Parameters are sorted by name so the same logical request
// always maps to the same key regardless of argument order.
func Key(op, path string, params map[string]string) string {
	parts := []string{op, path}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+"="+params[name])
	}

	key := strings.Join(parts, ":")
	if len(key) > maxKeyLength {
		sum := sha256.Sum256([]byte(key))
		key = op + ":" + path + ":hash:" + hex.EncodeToString(sum[:])
	}
	return key
}

// OwnerPrefix is the invalidation prefix covering every cached read for one
// owner and entity type.
func OwnerPrefix(op, ownerID string) string {
	return op + ":" + ownerID + ":"
}
