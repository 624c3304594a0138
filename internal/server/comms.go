package server

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/mcp-engine/pkg/commsutil"
	"github.com/morezero/mcp-engine/pkg/engine"
)

const commsLogPrefix = "server:comms"

// Subscribe serves JSON-RPC payloads (single or batch) published on subject.
// Each message is handled on its own goroutine; the engine's governor decides
// admission. Each reply goes to the message's reply inbox; messages without
// one are processed and their replies dropped.
func Subscribe(ctx context.Context, nc *comms.Conn, subject string, e *engine.Engine) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectRPC
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		go serveMsg(ctx, e, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", commsLogPrefix, subject))
	return sub, nil
}

func serveMsg(ctx context.Context, e *engine.Engine, msg *comms.Msg) {
	reply := e.HandlePayload(ctx, msg.Data, commsutil.ClientID(msg))
	if msg.Reply == "" {
		return
	}
	data, err := commsutil.EncodePayload(reply)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", commsLogPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond: %v", commsLogPrefix, err))
	}
}
