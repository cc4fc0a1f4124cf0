// Package util holds small helpers shared across packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// idBytes gives 128 bits of randomness, enough that collisions are not a
// practical concern for event and request identifiers.
const idBytes = 16

// NewID returns a random hex identifier, optionally prefixed for
// readability in logs and archives.
func NewID(prefix string) string {
	buf := make([]byte, idBytes)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return strings.Join([]string{prefix, id}, "_")
}
