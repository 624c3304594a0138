package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/morezero/mcp-engine/pkg/events"
	"github.com/morezero/mcp-engine/pkg/protocol"
)

const logPrefix = "registry:registry"

// Config holds registry configuration.
type Config struct {
	// DefaultRateLimitClass applies to descriptors registered without one.
	DefaultRateLimitClass protocol.Priority
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{DefaultRateLimitClass: protocol.PriorityNormal}
}

// Registry maps method names to descriptors. Reads vastly outnumber writes,
// which only happen at startup.
type Registry struct {
	mu        sync.RWMutex
	methods   map[string]*MethodDescriptor
	publisher events.EventPublisher
	config    Config
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	Publisher events.EventPublisher
	Config    Config
}

// NewRegistry creates a new Registry instance.
func NewRegistry(params NewRegistryParams) *Registry {
	cfg := params.Config
	if cfg.DefaultRateLimitClass == protocol.PriorityUnspecified {
		cfg.DefaultRateLimitClass = DefaultConfig().DefaultRateLimitClass
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	return &Registry{
		methods:   make(map[string]*MethodDescriptor),
		publisher: pub,
		config:    cfg,
	}
}

// Register adds a method. Names are unique; registering a name twice fails
// with ALREADY_EXISTS.
func (r *Registry) Register(ctx context.Context, desc MethodDescriptor) error {
	if strings.TrimSpace(desc.Name) == "" {
		return NewRegistryError(CodeInvalidArgument, "method name is required")
	}
	if desc.Handler == nil {
		return NewRegistryError(CodeInvalidArgument, fmt.Sprintf("method %s has no handler", desc.Name))
	}
	for _, p := range desc.RequiredParams {
		if strings.TrimSpace(p) == "" {
			return NewRegistryError(CodeInvalidArgument, fmt.Sprintf("method %s declares an empty required parameter", desc.Name))
		}
	}
	if desc.RateLimitClass == protocol.PriorityUnspecified {
		desc.RateLimitClass = r.config.DefaultRateLimitClass
	}

	r.mu.Lock()
	if _, exists := r.methods[desc.Name]; exists {
		r.mu.Unlock()
		return NewRegistryError(CodeAlreadyExists, fmt.Sprintf("method %s already registered", desc.Name))
	}
	stored := desc
	r.methods[desc.Name] = &stored
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - registered %s (cacheable=%t, class=%s)", logPrefix, desc.Name, desc.Cacheable, desc.RateLimitClass))

	event := events.NewEvent(events.TypeMethodRegistered)
	event.Method = desc.Name
	if err := r.publisher.Publish(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish registration of %s: %v", logPrefix, desc.Name, err))
	}
	return nil
}

// MustRegister registers every descriptor and panics on the first failure.
// Intended for built-in method tables wired at startup.
func (r *Registry) MustRegister(ctx context.Context, descs ...MethodDescriptor) {
	for _, d := range descs {
		if err := r.Register(ctx, d); err != nil {
			panic(fmt.Sprintf("%s - %v", logPrefix, err))
		}
	}
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*MethodDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.methods[name]
	return d, ok
}

// HasMethod reports whether name is registered.
func (r *Registry) HasMethod(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns registered method names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Descriptors returns wire descriptions of every method, sorted by name.
func (r *Registry) Descriptors() []MethodInfo {
	names := r.Names()
	out := make([]MethodInfo, 0, len(names))
	for _, name := range names {
		if d, ok := r.Lookup(name); ok {
			out = append(out, d.Info())
		}
	}
	return out
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods)
}
