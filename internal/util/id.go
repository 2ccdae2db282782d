package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns 16 random bytes hex encoded, joined to prefix with an
// underscore when prefix is set.
func NewID(prefix string) string {
	return newID(prefix, 16)
}

// NewShortID is NewID with 8 random bytes. Used for request and run ids that
// only need to be unique within a log stream.
func NewShortID(prefix string) string {
	return newID(prefix, 8)
}

func newID(prefix string, size int) string {
	buf := make([]byte, size)
	_, _ = rand.Read(buf)
	if prefix == "" {
		return hex.EncodeToString(buf)
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
