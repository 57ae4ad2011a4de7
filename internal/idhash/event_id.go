package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"membership-registry/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(signature|event_index|event_type)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	signature string,
	eventIndex int,
	eventType domain.EventType,
) string {
	data := fmt.Sprintf("%s|%d|%s",
		signature,
		eventIndex,
		string(eventType),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
