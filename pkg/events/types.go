// Package events defines engine change events and the publishers that carry them.
package events

import "time"

// Event types.
const (
	TypeMethodRegistered = "method.registered"
	TypeCacheInvalidated = "cache.invalidated"
)

// EngineEvent is emitted when the method registry or result cache changes.
type EngineEvent struct {
	Type      string `json:"type"`
	Method    string `json:"method,omitempty"`
	Key       string `json:"key,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Count     int    `json:"count,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewEvent returns an event of the given type stamped with the current time.
func NewEvent(eventType string) *EngineEvent {
	return &EngineEvent{Type: eventType, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}
