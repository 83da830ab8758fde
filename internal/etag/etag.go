// Package etag computes strong entity tags from a resource's JSON form.
package etag

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Strong returns the quoted hex SHA-1 digest of v's JSON encoding, e.g.
// "\"3f786850e387550fdab836ed7e6dc881de23001b\"".
func Strong(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize resource for etag: %w", err)
	}
	return FromBytes(data), nil
}

// FromBytes fingerprints an already serialized representation.
func FromBytes(data []byte) string {
	sum := sha1.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
