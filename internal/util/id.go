package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-character hex ID, the same shape as a Mongo ObjectId.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// IsHexID reports whether id has the shape produced by NewID.
func IsHexID(id string) bool {
	if len(id) != 24 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
