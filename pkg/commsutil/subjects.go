package commsutil

import (
	"strings"

	comms "github.com/nats-io/nats.go"
)

// Default subjects.
const (
	SubjectRPC    = "mcp.rpc"
	SubjectEvents = "mcp.events"
)

// HeaderClientID carries the caller identity used for rate limiting.
const HeaderClientID = "Client-Id"

// DefaultClientID identifies callers that do not send HeaderClientID.
const DefaultClientID = "nats"

// BuildEventSubject appends an event type to a base subject, for example
// "mcp.events" + "cache.invalidated" -> "mcp.events.cache.invalidated".
func BuildEventSubject(base, eventType string) string {
	base = strings.TrimSuffix(base, ".")
	if eventType == "" {
		return base
	}
	return base + "." + eventType
}

// ClientID returns the caller identity carried in a message header, or
// DefaultClientID when the header is missing or blank.
func ClientID(msg *comms.Msg) string {
	if msg == nil || msg.Header == nil {
		return DefaultClientID
	}
	if id := strings.TrimSpace(msg.Header.Get(HeaderClientID)); id != "" {
		return id
	}
	return DefaultClientID
}
