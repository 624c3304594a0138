// Package batch validates, orders and runs batched requests.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/morezero/mcp-engine/pkg/governor"
	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/validation"
)

const logPrefix = "batch:coordinator"

// DefaultMaxBatchSize is the largest accepted batch.
const DefaultMaxBatchSize = 100

// Validator checks one request.
type Validator interface {
	Validate(req *protocol.Request) validation.Result
}

// ItemFunc runs one admitted batch item through the single-request pipeline.
type ItemFunc func(ctx context.Context, req *protocol.Request, batchIndex int) *protocol.Response

// Config configures a Coordinator.
type Config struct {
	MaxBatchSize int
}

// Stats summarizes batch traffic since startup.
type Stats struct {
	TotalBatches     int64   `json:"totalBatches"`
	TotalItems       int64   `json:"totalItems"`
	RejectedBatches  int64   `json:"rejectedBatches"`
	ActiveBatches    int     `json:"activeBatches"`
	MaxActiveBatches int     `json:"maxConcurrentBatches"`
	MaxBatchSize     int     `json:"maxBatchSize"`
	AverageBatchSize float64 `json:"averageBatchSize"`
}

// Coordinator runs batches. Items execute one at a time in priority order, so
// completion order matches the sorted order.
type Coordinator struct {
	validator Validator
	governor  *governor.Governor
	maxSize   int

	mu       sync.Mutex
	batches  int64
	items    int64
	rejected int64
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(v Validator, g *governor.Governor, cfg Config) *Coordinator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Coordinator{validator: v, governor: g, maxSize: cfg.MaxBatchSize}
}

// MaxBatchSize returns the configured size limit.
func (c *Coordinator) MaxBatchSize() int {
	return c.maxSize
}

// Process validates the whole batch, then runs each item through run. A batch
// with any invalid item is rejected without running anything. Responses come
// back in input order, each tagged with its input index.
func (c *Coordinator) Process(ctx context.Context, reqs []*protocol.Request, run ItemFunc) ([]*protocol.Response, *protocol.Error) {
	if rpcErr := c.check(reqs); rpcErr != nil {
		c.reject()
		return nil, rpcErr
	}

	if !c.governor.TryAdmitBatch() {
		c.reject()
		slog.Warn(fmt.Sprintf("%s - batch of %d turned away at %d active batches", logPrefix, len(reqs), c.governor.ActiveBatches()))
		return nil, protocol.ServiceUnavailable("Too many concurrent batches", map[string]any{
			"activeBatches":        c.governor.ActiveBatches(),
			"maxConcurrentBatches": c.governor.MaxActiveBatches(),
			"retryAfterSeconds":    int(governor.RetryAfter.Seconds()),
		})
	}
	defer c.governor.ReleaseBatch()

	c.mu.Lock()
	c.batches++
	c.items += int64(len(reqs))
	c.mu.Unlock()

	responses := make([]*protocol.Response, len(reqs))
	for _, idx := range ExecutionOrder(reqs) {
		resp := run(ctx, reqs[idx], idx)
		if resp == nil {
			meta := protocol.ResponseMetadata{}
			resp = protocol.NewErrorResponse(reqs[idx].ID, protocol.InternalError("no response produced", true), meta)
		}
		index := idx
		resp.Metadata.BatchIndex = &index
		responses[idx] = resp
	}

	slog.Debug(fmt.Sprintf("%s - batch of %d complete", logPrefix, len(reqs)))
	return responses, nil
}

func (c *Coordinator) check(reqs []*protocol.Request) *protocol.Error {
	if reqs == nil {
		return protocol.InvalidRequest("Batch request must be an array", nil)
	}
	if len(reqs) == 0 {
		return protocol.InvalidRequest("Batch request must not be empty", nil)
	}
	if len(reqs) > c.maxSize {
		e := protocol.InvalidRequest(
			fmt.Sprintf("Batch size %d exceeds maximum of %d", len(reqs), c.maxSize),
			map[string]any{"batchSize": len(reqs), "maxBatchSize": c.maxSize},
		)
		e.SuggestedAction = fmt.Sprintf("Split the batch into chunks of at most %d requests", c.maxSize)
		return e
	}

	var failures []string
	for i, req := range reqs {
		res := c.validator.Validate(req)
		if !res.IsValid {
			failures = append(failures, fmt.Sprintf("Request %d: %s", i, strings.Join(res.Errors, "; ")))
		}
	}
	if len(failures) > 0 {
		slog.Debug(fmt.Sprintf("%s - batch rejected: %d invalid items", logPrefix, len(failures)))
		e := protocol.InvalidRequest("Invalid batch request", map[string]any{"errors": failures})
		e.SuggestedAction = "Fix the listed requests and resubmit the whole batch"
		return e
	}
	return nil
}

func (c *Coordinator) reject() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

// ExecutionOrder returns input indices sorted by descending priority. Equal
// priorities keep their input order.
func ExecutionOrder(reqs []*protocol.Request) []int {
	order := make([]int, len(reqs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return reqs[order[a]].Priority() > reqs[order[b]].Priority()
	})
	return order
}

// Stats returns batch counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		TotalBatches:    c.batches,
		TotalItems:      c.items,
		RejectedBatches: c.rejected,
		MaxBatchSize:    c.maxSize,
	}
	c.mu.Unlock()

	s.ActiveBatches = c.governor.ActiveBatches()
	s.MaxActiveBatches = c.governor.MaxActiveBatches()
	if s.TotalBatches > 0 {
		s.AverageBatchSize = float64(s.TotalItems) / float64(s.TotalBatches)
	}
	return s
}
