package commsutil

import (
	"testing"

	comms "github.com/nats-io/nats.go"
)

const subjectsTestPrefix = "commsutil:subjects_test"

func TestBuildEventSubject(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		eventType string
		want      string
	}{
		{"default base", SubjectEvents, "cache.invalidated", "mcp.events.cache.invalidated"},
		{"trailing dot", "custom.events.", "method.registered", "custom.events.method.registered"},
		{"empty type", SubjectEvents, "", "mcp.events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildEventSubject(tt.base, tt.eventType)
			if got != tt.want {
				t.Errorf("%s - BuildEventSubject(%q, %q) = %q, want %q", subjectsTestPrefix, tt.base, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestClientID(t *testing.T) {
	withHeader := comms.NewMsg(SubjectRPC)
	withHeader.Header.Set(HeaderClientID, " client-7 ")

	blank := comms.NewMsg(SubjectRPC)
	blank.Header.Set(HeaderClientID, "  ")

	tests := []struct {
		name string
		msg  *comms.Msg
		want string
	}{
		{"nil message", nil, DefaultClientID},
		{"no header", &comms.Msg{Subject: SubjectRPC}, DefaultClientID},
		{"header set", withHeader, "client-7"},
		{"blank header", blank, DefaultClientID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientID(tt.msg); got != tt.want {
				t.Errorf("%s - ClientID() = %q, want %q", subjectsTestPrefix, got, tt.want)
			}
		})
	}
}
