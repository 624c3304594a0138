// Package engine owns the request-processing state and runs the
// validation, rate-limit, admission and dispatch pipeline.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/mcp-engine/pkg/batch"
	"github.com/morezero/mcp-engine/pkg/cache"
	"github.com/morezero/mcp-engine/pkg/dispatcher"
	"github.com/morezero/mcp-engine/pkg/events"
	"github.com/morezero/mcp-engine/pkg/governor"
	"github.com/morezero/mcp-engine/pkg/performance"
	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/ratelimit"
	"github.com/morezero/mcp-engine/pkg/registry"
	"github.com/morezero/mcp-engine/pkg/validation"
)

const logPrefix = "engine:engine"

const (
	defaultName    = "mcp-engine"
	defaultVersion = "1.0.0"
)

// Config holds engine limits and identity. Zero values fall back to the
// defaults of each component.
type Config struct {
	Name              string
	Version           string
	RequestTimeout    time.Duration
	MaxActiveRequests int
	MaxActiveBatches  int
	MaxBatchSize      int
	RateLimitWindow   time.Duration
	RateLimits        map[protocol.Priority]int
	CacheTTL          time.Duration
	CacheMaxEntries   int
}

// HealthCheck probes one external collaborator.
type HealthCheck func(ctx context.Context) error

// NewEngineParams holds parameters for New.
type NewEngineParams struct {
	Config    Config
	Publisher events.EventPublisher
	// Registry is created empty when nil.
	Registry *registry.Registry
	// Checks are reported by Health, keyed by collaborator name.
	Checks map[string]HealthCheck
	// HealthTimeout bounds each check. Zero means five seconds.
	HealthTimeout time.Duration
}

// Engine is the process-wide request processor. All mutable state lives in
// its components, each of which synchronizes itself.
type Engine struct {
	config        Config
	registry      *registry.Registry
	validator     *validation.Validator
	limiter       *ratelimit.Limiter
	governor      *governor.Governor
	cache         *cache.Cache
	tracker       *performance.Tracker
	dispatcher    *dispatcher.Dispatcher
	batches       *batch.Coordinator
	publisher     events.EventPublisher
	checks        map[string]HealthCheck
	healthTimeout time.Duration
	started       time.Time
}

// New creates an Engine.
func New(params NewEngineParams) *Engine {
	cfg := params.Config
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	reg := params.Registry
	if reg == nil {
		reg = registry.NewRegistry(registry.NewRegistryParams{Publisher: pub})
	}
	healthTimeout := params.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}

	c := cache.New(cache.Config{TTL: cfg.CacheTTL, MaxEntries: cfg.CacheMaxEntries})
	tracker := performance.NewTracker()
	gov := governor.New(governor.Config{
		MaxActiveRequests: cfg.MaxActiveRequests,
		MaxActiveBatches:  cfg.MaxActiveBatches,
	})
	validator := validation.NewValidator(reg, validation.Options{ServerVersion: cfg.Version})

	return &Engine{
		config:    cfg,
		registry:  reg,
		validator: validator,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{Window: cfg.RateLimitWindow, Limits: cfg.RateLimits}),
		governor:  gov,
		cache:     c,
		tracker:   tracker,
		dispatcher: dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
			Registry: reg,
			Cache:    c,
			Tracker:  tracker,
			Timeout:  cfg.RequestTimeout,
		}),
		batches:       batch.NewCoordinator(validator, gov, batch.Config{MaxBatchSize: cfg.MaxBatchSize}),
		publisher:     pub,
		checks:        params.Checks,
		healthTimeout: healthTimeout,
		started:       time.Now(),
	}
}

// Register adds a method at runtime.
func (e *Engine) Register(ctx context.Context, desc registry.MethodDescriptor) error {
	return e.registry.Register(ctx, desc)
}

// Registry returns the method registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Tracker returns the performance tracker.
func (e *Engine) Tracker() *performance.Tracker { return e.tracker }

// Version returns the server version stamped on responses.
func (e *Engine) Version() string { return e.config.Version }

// Handle runs one request through the full pipeline. It always returns a
// well-formed response.
func (e *Engine) Handle(ctx context.Context, req *protocol.Request, clientID string) *protocol.Response {
	start := time.Now()
	requestID := uuid.NewString()
	if req == nil {
		req = &protocol.Request{}
	}

	meta := func() protocol.ResponseMetadata {
		m := protocol.NewMetadata(start, e.config.Version)
		m.RequestID = requestID
		return m
	}

	res := e.validator.Validate(req)
	if !res.IsValid {
		m := meta()
		m.Warnings = res.Warnings
		rpcErr := protocol.InvalidRequest("Invalid request", map[string]any{
			"errors":   res.Errors,
			"warnings": res.Warnings,
		})
		rpcErr.SuggestedAction = strings.Join(res.Suggestions, "; ")
		return protocol.NewErrorResponse(req.ID, rpcErr, m)
	}

	desc, _ := e.registry.Lookup(req.Method)
	tier := e.rateTier(req, desc)
	decision := e.limiter.CheckAndConsume(req.Method, clientID, tier)
	limitInfo := &protocol.RateLimitInfo{
		Limit:     decision.Limit,
		Remaining: decision.Remaining,
		ResetTime: decision.ResetTime.UTC().Format(time.RFC3339Nano),
	}
	if !decision.Allowed {
		m := meta()
		m.RateLimit = limitInfo
		m.Warnings = res.Warnings
		slog.Debug(fmt.Sprintf("%s - rate limited id=%s method=%s client=%s", logPrefix, requestID, req.Method, clientID))
		return protocol.NewErrorResponse(req.ID, protocol.RateLimited(map[string]any{
			"limit":        decision.Limit,
			"current":      decision.Current,
			"resetTime":    limitInfo.ResetTime,
			"retryAfterMs": decision.RetryAfter(time.Now()).Milliseconds(),
		}), m)
	}

	priority := req.Priority()
	key := activeKey(req.ID)
	if !e.governor.TryAdmit(key, priority) {
		m := meta()
		m.RateLimit = limitInfo
		m.Warnings = res.Warnings
		return protocol.NewErrorResponse(req.ID, protocol.ServiceUnavailable("Service temporarily unavailable", map[string]any{
			"activeRequests":    e.governor.ActiveRequests(),
			"maxConcurrent":     e.governor.MaxActiveRequests(),
			"retryAfterSeconds": int(governor.RetryAfter.Seconds()),
		}), m)
	}
	defer e.governor.Release(key)

	out, rpcErr := e.dispatcher.Dispatch(ctx, req.Method, req.Params, &registry.CallContext{
		RequestID: requestID,
		ClientID:  clientID,
		Priority:  priority,
		Metadata:  req.Metadata,
	})

	m := meta()
	m.RateLimit = limitInfo
	m.Warnings = res.Warnings
	if rpcErr != nil {
		return protocol.NewErrorResponse(req.ID, rpcErr, m)
	}
	m.CacheHit = out.CacheHit
	return protocol.NewResult(req.ID, out.Result, m)
}

// rateTier picks the limit tier: the declared priority when there is one,
// otherwise the method's rate-limit class.
func (e *Engine) rateTier(req *protocol.Request, desc *registry.MethodDescriptor) protocol.Priority {
	if req.Metadata != nil {
		if p, ok := protocol.ParsePriority(req.Metadata.Priority); ok {
			return p
		}
	}
	if desc != nil {
		return desc.RateLimitClass.OrDefault(protocol.PriorityNormal)
	}
	return protocol.PriorityNormal
}

// HandleBatch runs a batch. A rejected batch yields a single error reply.
func (e *Engine) HandleBatch(ctx context.Context, reqs []*protocol.Request, clientID string) *Reply {
	start := time.Now()
	responses, rpcErr := e.batches.Process(ctx, reqs, func(ctx context.Context, req *protocol.Request, _ int) *protocol.Response {
		return e.Handle(ctx, req, clientID)
	})
	if rpcErr != nil {
		m := protocol.NewMetadata(start, e.config.Version)
		m.RequestID = uuid.NewString()
		return &Reply{Single: protocol.NewErrorResponse(nil, rpcErr, m)}
	}
	return &Reply{Batch: responses, IsBatch: true}
}

// HandlePayload decodes a raw single or batch payload and processes it.
func (e *Engine) HandlePayload(ctx context.Context, data []byte, clientID string) *Reply {
	start := time.Now()
	fail := func(rpcErr *protocol.Error) *Reply {
		m := protocol.NewMetadata(start, e.config.Version)
		m.RequestID = uuid.NewString()
		return &Reply{Single: protocol.NewErrorResponse(nil, rpcErr, m)}
	}

	if protocol.IsBatch(data) {
		reqs, rpcErr := protocol.DecodeBatch(data)
		if rpcErr != nil {
			return fail(rpcErr)
		}
		return e.HandleBatch(ctx, reqs, clientID)
	}

	req, rpcErr := protocol.DecodeRequest(data)
	if rpcErr != nil {
		return fail(rpcErr)
	}
	return &Reply{Single: e.Handle(ctx, req, clientID)}
}

// Sweep drops expired rate-limit windows and cache entries.
func (e *Engine) Sweep() (windows, entries int) {
	return e.limiter.Sweep(), e.cache.Prune()
}

// activeKey identifies req.ID in the governor's active set. String and
// numeric ids with the same text stay distinct.
func activeKey(id any) string {
	switch v := id.(type) {
	case nil:
		return "null"
	case string:
		return "s:" + v
	default:
		return fmt.Sprintf("n:%v", v)
	}
}
