package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns an opaque identifier, optionally namespaced with a
// prefix ("cs" for concern slips, "js" for job services, and so on).
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
