// Package governor bounds the number of simultaneously active requests and
// batches.
package governor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/mcp-engine/pkg/protocol"
)

const logPrefix = "governor:governor"

const (
	DefaultMaxActiveRequests = 50
	DefaultMaxActiveBatches  = 10
	// RetryAfter is the delay suggested to callers turned away at capacity.
	RetryAfter = 30 * time.Second
)

// Config configures a Governor. Zero values fall back to defaults.
type Config struct {
	MaxActiveRequests int
	MaxActiveBatches  int
}

// Governor tracks the active request set and the active batch count. It is
// safe for concurrent use.
type Governor struct {
	mu            sync.Mutex
	active        map[string]int
	activeCount   int
	activeBatches int
	maxRequests   int
	maxBatches    int
	rejected      int64
}

// New creates a Governor.
func New(cfg Config) *Governor {
	if cfg.MaxActiveRequests <= 0 {
		cfg.MaxActiveRequests = DefaultMaxActiveRequests
	}
	if cfg.MaxActiveBatches <= 0 {
		cfg.MaxActiveBatches = DefaultMaxActiveBatches
	}
	return &Governor{
		active:      make(map[string]int),
		maxRequests: cfg.MaxActiveRequests,
		maxBatches:  cfg.MaxActiveBatches,
	}
}

// TryAdmit adds requestID to the active set unless the ceiling is reached.
// Critical requests are always admitted. Identifiers are counted, so two
// in-flight requests sharing an id each need their own Release.
func (g *Governor) TryAdmit(requestID string, p protocol.Priority) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p != protocol.PriorityCritical && g.activeCount >= g.maxRequests {
		g.rejected++
		slog.Warn(fmt.Sprintf("%s - at capacity (%d/%d), rejecting id=%s priority=%s", logPrefix, g.activeCount, g.maxRequests, requestID, p))
		return false
	}
	g.active[requestID]++
	g.activeCount++
	return true
}

// Release removes one admission of requestID. Releasing an id that is not
// active is a no-op.
func (g *Governor) Release(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.active[requestID]
	if !ok {
		return
	}
	if n <= 1 {
		delete(g.active, requestID)
	} else {
		g.active[requestID] = n - 1
	}
	g.activeCount--
}

// IsActive reports whether requestID is currently admitted.
func (g *Governor) IsActive(requestID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[requestID] > 0
}

// ActiveRequests returns the number of admitted, unreleased requests.
func (g *Governor) ActiveRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeCount
}

// MaxActiveRequests returns the request ceiling.
func (g *Governor) MaxActiveRequests() int {
	return g.maxRequests
}

// TryAdmitBatch increments the active batch count unless the batch ceiling
// is reached.
func (g *Governor) TryAdmitBatch() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.activeBatches >= g.maxBatches {
		g.rejected++
		slog.Warn(fmt.Sprintf("%s - batch capacity reached (%d/%d)", logPrefix, g.activeBatches, g.maxBatches))
		return false
	}
	g.activeBatches++
	return true
}

// ReleaseBatch decrements the active batch count.
func (g *Governor) ReleaseBatch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeBatches > 0 {
		g.activeBatches--
	}
}

// ActiveBatches returns the number of batches in progress.
func (g *Governor) ActiveBatches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeBatches
}

// MaxActiveBatches returns the batch ceiling.
func (g *Governor) MaxActiveBatches() int {
	return g.maxBatches
}

// Rejected returns how many admissions have been refused since start.
func (g *Governor) Rejected() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejected
}
