// Package component defines the envelope used when a reading leaves the
// process (MQTT, Kafka).
package component

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TypeReading is the envelope type for glucose readings.
const TypeReading = "glucose-reading"

// Component carries data with a content checksum. Identical data always has
// the same checksum, so receivers and the registry can drop duplicates.
type Component struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Checksum  string          `json:"checksum"`
	SessionID string          `json:"session_id,omitempty"`
	Time      time.Time       `json:"time"`
	Data      json.RawMessage `json:"data"`
}

// New marshals data and computes its checksum. id identifies the source (for
// example the patient or the session); at is the envelope time.
func New(componentType, id string, data any, at time.Time) (Component, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Component{}, err
	}
	return Component{
		ID:       id,
		Type:     componentType,
		Checksum: Checksum(raw),
		Time:     at.UTC(),
		Data:     raw,
	}, nil
}

// Checksum returns the hex SHA-256 of raw.
func Checksum(raw []byte) string {
	hash := sha256.Sum256(raw)
	return hex.EncodeToString(hash[:])
}
