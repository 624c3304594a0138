package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const commsPublisherTestPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", commsPublisherTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", commsPublisherTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsPublisherTestPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) (<-chan *EngineEvent, func()) {
	t.Helper()
	received := make(chan *EngineEvent, 4)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event EngineEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", commsPublisherTestPrefix, err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe: %v", commsPublisherTestPrefix, err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("%s - flush failed: %v", commsPublisherTestPrefix, err)
	}
	return received, func() { _ = sub.Unsubscribe() }
}

func waitEvent(t *testing.T, ch <-chan *EngineEvent) *EngineEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timed out waiting for event", commsPublisherTestPrefix)
		return nil
	}
}

func TestCommsPublisher_TypedAndBaseSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	typed, unsubTyped := subscribeEvents(t, nc, "mcp.events.cache.invalidated")
	defer unsubTyped()
	base, unsubBase := subscribeEvents(t, nc, "mcp.events")
	defer unsubBase()

	event := NewEvent(TypeCacheInvalidated)
	event.Key = `echo:{"x":1}`
	event.Count = 1

	if err := NewCommsPublisher(nc, nil).Publish(context.Background(), event); err != nil {
		t.Fatalf("%s - Publish failed: %v", commsPublisherTestPrefix, err)
	}

	for _, ch := range []<-chan *EngineEvent{typed, base} {
		got := waitEvent(t, ch)
		if got.Type != TypeCacheInvalidated || got.Key != event.Key || got.Count != 1 {
			t.Errorf("%s - received %+v", commsPublisherTestPrefix, got)
		}
	}
}

func TestCommsPublisher_CustomSubject(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	typed, unsub := subscribeEvents(t, nc, "custom.events.method.registered")
	defer unsub()

	pub := NewCommsPublisher(nc, &CommsPublisherOpts{Subject: "custom.events"})
	event := NewEvent(TypeMethodRegistered)
	event.Method = "echo"
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("%s - Publish failed: %v", commsPublisherTestPrefix, err)
	}

	if got := waitEvent(t, typed); got.Method != "echo" {
		t.Errorf("%s - Method = %q, want echo", commsPublisherTestPrefix, got.Method)
	}
}

func TestCommsPublisher_ClosedConnection(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	pub := NewCommsPublisher(nc, nil)
	nc.Close()

	if err := pub.Publish(context.Background(), NewEvent(TypeMethodRegistered)); err == nil {
		t.Errorf("%s - expected error publishing on closed connection", commsPublisherTestPrefix)
	}
}
