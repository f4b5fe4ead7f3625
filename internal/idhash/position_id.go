// Package idhash derives deterministic record identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PositionID computes a deterministic position id using SHA256.
// Formula: SHA256(user_id|mint|entry_signature)
// Returns hex-encoded hash (64 characters).
func PositionID(userID, mint, entrySignature string) string {
	data := fmt.Sprintf("%s|%s|%s", userID, mint, entrySignature)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
