// Package handlers provides the built-in methods every engine serves.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/mcp-engine/pkg/batch"
	"github.com/morezero/mcp-engine/pkg/cache"
	"github.com/morezero/mcp-engine/pkg/engine"
	"github.com/morezero/mcp-engine/pkg/performance"
	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/registry"
)

// Introspector is the slice of the engine the built-in methods read.
type Introspector interface {
	Info() *engine.InfoOutput
	Capabilities() *engine.CapabilitiesOutput
	PerformanceStats(method string) []performance.Stats
	BatchStats() batch.Stats
	CacheStats() cache.Stats
	InvalidateCache(ctx context.Context, in engine.InvalidateInput) (*engine.InvalidateOutput, error)
}

// PingOutput is the result of ping.
type PingOutput struct {
	Pong      bool   `json:"pong"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

// StatsOutput is the result of system.stats.
type StatsOutput struct {
	Performance []performance.Stats `json:"performance"`
	Batch       batch.Stats         `json:"batch"`
	Cache       cache.Stats         `json:"cache"`
}

// Builtins returns the descriptors of the built-in methods bound to e.
func Builtins(e Introspector) []registry.MethodDescriptor {
	return []registry.MethodDescriptor{
		{
			Name:           "ping",
			Description:    "Liveness probe",
			Handler:        ping,
			RateLimitClass: protocol.PriorityHigh,
		},
		{
			Name:           "echo",
			Description:    "Returns its params unchanged",
			Handler:        echo,
			Cacheable:      true,
			RateLimitClass: protocol.PriorityNormal,
		},
		{
			Name:        "system.info",
			Description: "Server identity, features and limits",
			Handler: func(_ context.Context, _ map[string]any, _ *registry.CallContext) (any, error) {
				return e.Info(), nil
			},
			RateLimitClass: protocol.PriorityNormal,
		},
		{
			Name:        "system.capabilities",
			Description: "Registered methods, features and priorities",
			Handler: func(_ context.Context, _ map[string]any, _ *registry.CallContext) (any, error) {
				return e.Capabilities(), nil
			},
			RateLimitClass: protocol.PriorityNormal,
		},
		{
			Name:           "system.stats",
			Description:    "Performance, batch and cache statistics",
			Handler:        stats(e),
			OptionalParams: []string{"method"},
			RateLimitClass: protocol.PriorityLow,
		},
		{
			Name:           "cache.invalidate",
			Description:    "Drops cache entries by key or pattern",
			Handler:        invalidate(e),
			OptionalParams: []string{"key", "pattern"},
			RateLimitClass: protocol.PriorityLow,
		},
		{
			Name:        "cache.clear",
			Description: "Drops every cache entry",
			Handler: func(ctx context.Context, _ map[string]any, _ *registry.CallContext) (any, error) {
				return e.InvalidateCache(ctx, engine.InvalidateInput{All: true})
			},
			RateLimitClass: protocol.PriorityLow,
		},
	}
}

func ping(_ context.Context, _ map[string]any, call *registry.CallContext) (any, error) {
	out := &PingOutput{Pong: true, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if call != nil {
		out.RequestID = call.RequestID
	}
	return out, nil
}

func echo(_ context.Context, params map[string]any, _ *registry.CallContext) (any, error) {
	return params, nil
}

func stats(e Introspector) registry.HandlerFunc {
	return func(_ context.Context, params map[string]any, _ *registry.CallContext) (any, error) {
		method, err := optionalString(params, "method")
		if err != nil {
			return nil, err
		}
		return &StatsOutput{
			Performance: e.PerformanceStats(method),
			Batch:       e.BatchStats(),
			Cache:       e.CacheStats(),
		}, nil
	}
}

func invalidate(e Introspector) registry.HandlerFunc {
	return func(ctx context.Context, params map[string]any, _ *registry.CallContext) (any, error) {
		key, err := optionalString(params, "key")
		if err != nil {
			return nil, err
		}
		pattern, err := optionalString(params, "pattern")
		if err != nil {
			return nil, err
		}
		if key == "" && pattern == "" {
			return nil, protocol.InvalidParams("one of key or pattern is required")
		}
		if key != "" && pattern != "" {
			return nil, protocol.InvalidParams("key and pattern are mutually exclusive")
		}
		return e.InvalidateCache(ctx, engine.InvalidateInput{Key: key, Pattern: pattern})
	}
}

func optionalString(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", protocol.InvalidParams(fmt.Sprintf("%s must be a string", name))
	}
	return s, nil
}
