package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/morezero/mcp-engine/internal/handlers"
	"github.com/morezero/mcp-engine/pkg/engine"
	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/registry"
)

const httpLogPrefix = "server:http"

// maxBodyBytes caps request payloads.
const maxBodyBytes = 1 << 20

// serviceUnavailableRetryAfter is the Retry-After sent with 503 replies.
const serviceUnavailableRetryAfter = "30"

// NewHTTPServer returns an http.Server serving the engine's HTTP routes on addr.
func NewHTTPServer(addr string, e *engine.Engine, healthTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(e, healthTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHTTPHandler returns the engine's HTTP routes.
func NewHTTPHandler(e *engine.Engine, healthTimeout time.Duration) http.Handler {
	h := &httpHandler{engine: e, healthTimeout: healthTimeout}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", h.handleRPC(false))
	mux.HandleFunc("POST /mcp/batch", h.handleRPC(true))
	mux.HandleFunc("GET /mcp/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.Info())
	})
	mux.HandleFunc("GET /mcp/capabilities", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.Capabilities())
	})
	mux.HandleFunc("GET /mcp/batch/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, e.BatchStats())
	})
	mux.HandleFunc("GET /mcp/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, &handlers.StatsOutput{
			Performance: e.PerformanceStats(r.URL.Query().Get("method")),
			Batch:       e.BatchStats(),
			Cache:       e.CacheStats(),
		})
	})
	mux.HandleFunc("POST /mcp/cache/invalidate", h.handleInvalidate)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, _ *http.Request) {
		if !e.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("GET /{$}", h.handleHome())
	mux.HandleFunc("GET /methods/{name}", h.handleMethodDetail())
	return mux
}

type httpHandler struct {
	engine        *engine.Engine
	healthTimeout time.Duration
}

func (h *httpHandler) handleRPC(batchOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeFailure(w, start, protocol.InvalidRequest(fmt.Sprintf("Request body exceeds %d bytes", maxBodyBytes), nil))
				return
			}
			h.writeFailure(w, start, protocol.ParseError(err.Error()))
			return
		}
		if batchOnly && !protocol.IsBatch(body) {
			if !json.Valid(body) {
				h.writeFailure(w, start, protocol.ParseError("invalid JSON"))
				return
			}
			h.writeFailure(w, start, protocol.InvalidRequest("Batch request must be an array", nil))
			return
		}

		reply := h.engine.HandlePayload(r.Context(), body, ClientIDFromRequest(r))
		writeReply(w, reply)
	}
}

func (h *httpHandler) writeFailure(w http.ResponseWriter, start time.Time, rpcErr *protocol.Error) {
	meta := protocol.NewMetadata(start, h.engine.Version())
	writeReply(w, &engine.Reply{Single: protocol.NewErrorResponse(nil, rpcErr, meta)})
}

func writeReply(w http.ResponseWriter, reply *engine.Reply) {
	status := reply.Status()
	switch status {
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", retryAfterSeconds(reply.Single, time.Now()))
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", serviceUnavailableRetryAfter)
	}
	writeJSON(w, status, reply)
}

// retryAfterSeconds rounds the time left until the rate-limit window resets
// up to whole seconds, never less than one.
func retryAfterSeconds(resp *protocol.Response, now time.Time) string {
	secs := 1
	if resp != nil && resp.Metadata.RateLimit != nil {
		if reset, err := time.Parse(time.RFC3339Nano, resp.Metadata.RateLimit.ResetTime); err == nil {
			if d := int(math.Ceil(reset.Sub(now).Seconds())); d > secs {
				secs = d
			}
		}
	}
	return strconv.Itoa(secs)
}

func (h *httpHandler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var in engine.InvalidateInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	out, err := h.engine.InvalidateCache(r.Context(), in)
	if err != nil {
		status := http.StatusInternalServerError
		var regErr *registry.RegistryError
		if errors.As(err, &regErr) && regErr.Code == registry.CodeInvalidArgument {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()
	health := h.engine.Health(ctx)
	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// ClientIDFromRequest identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the remote host.
func ClientIDFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", httpLogPrefix, err))
	}
}
