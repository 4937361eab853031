package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainEvent prefixes journal event identities.
// The version suffix leaves room for a future algorithm change.
const DomainEvent = "attrflow/event/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of a published sensor event.
// (entity, sensor, seq) is unique because seq is assigned per sensor slot,
// so recording the same publication twice yields the same ID.
func EventID(entityID string, sensor Sensor, seq int64) string {
	key := Map{
		"entity": String(entityID),
		"sensor": String(sensor.Name),
		"type":   String(sensor.Type),
		"seq":    Int(seq),
	}
	// A map of strings and ints always marshals.
	data, _ := MarshalCanonical(key)
	return hashWithDomain(DomainEvent, data)
}
