// Package dispatcher invokes registered method handlers, consulting the result
// cache and feeding the performance tracker.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/morezero/mcp-engine/pkg/cache"
	"github.com/morezero/mcp-engine/pkg/performance"
	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Outcome is a successful dispatch.
type Outcome struct {
	Result   any
	CacheHit bool
}

// Dispatcher routes calls to registry handlers.
type Dispatcher struct {
	registry *registry.Registry
	cache    *cache.Cache
	tracker  *performance.Tracker
	timeout  time.Duration
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry *registry.Registry
	Cache    *cache.Cache
	Tracker  *performance.Tracker
	// Timeout bounds each handler call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
}

// NewDispatcher creates a new Dispatcher. A nil Cache or Tracker gets a fresh one.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	c := params.Cache
	if c == nil {
		c = cache.New(cache.Config{})
	}
	tr := params.Tracker
	if tr == nil {
		tr = performance.NewTracker()
	}
	return &Dispatcher{registry: params.Registry, cache: c, tracker: tr, timeout: params.Timeout}
}

// Dispatch runs method with params. Unknown methods and missing required
// parameters fail before the handler or the tracker are touched.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params map[string]any, call *registry.CallContext) (*Outcome, *protocol.Error) {
	desc, ok := d.registry.Lookup(method)
	if !ok {
		return nil, protocol.MethodNotFound(method)
	}
	if params == nil {
		params = map[string]any{}
	}
	for _, name := range desc.RequiredParams {
		if _, present := params[name]; !present {
			return nil, protocol.MissingParam(name)
		}
	}
	if call == nil {
		call = &registry.CallContext{}
	}

	if desc.Cacheable {
		if cached, hit := d.cache.Get(method, params); hit {
			slog.Debug(fmt.Sprintf("%s - cache hit method=%s id=%s", logPrefix, method, call.RequestID))
			d.tracker.RecordCacheHit(method)
			return &Outcome{Result: cached, CacheHit: true}, nil
		}
	}

	start := time.Now()
	result, err := d.invoke(ctx, desc, params, call)
	elapsed := time.Since(start)

	if err != nil {
		d.tracker.Record(method, elapsed, false)
		slog.Warn(fmt.Sprintf("%s - method=%s id=%s failed after %s: %v", logPrefix, method, call.RequestID, elapsed, err))
		return nil, toProtocolError(err)
	}

	d.tracker.Record(method, elapsed, true)
	if desc.Cacheable {
		d.cache.Put(method, params, result)
	}
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s ok in %s", logPrefix, method, call.RequestID, elapsed))
	return &Outcome{Result: result}, nil
}

// invoke calls the handler, turning a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, desc *registry.MethodDescriptor, params map[string]any, call *registry.CallContext) (result any, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - handler %s panicked: %v\n%s", logPrefix, desc.Name, r, debug.Stack()))
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = desc.Handler(ctx, params, call)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return result, err
}

// toProtocolError maps a handler failure onto the wire error. Handlers may
// return a *protocol.Error to pick the code themselves.
func toProtocolError(err error) *protocol.Error {
	var rpcErr *protocol.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		switch regErr.Code {
		case registry.CodeInvalidArgument:
			e := protocol.InvalidParams(regErr.Message)
			e.Data = regErr.Details
			return e
		case registry.CodeNotFound, registry.CodeAlreadyExists:
			return protocol.InternalError(regErr.Error(), false)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.InternalError("handler timed out: "+err.Error(), true)
	}
	return protocol.InternalError(err.Error(), !registry.IsPermanent(err))
}
