// Package protocol defines the JSON-RPC 2.0 envelope exchanged with the engine.
package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// Version is the only supported JSON-RPC protocol tag.
const Version = "2.0"

// Request is the JSON envelope for a single incoming request.
//
// Decoding is lenient: a field with the wrong JSON type does not fail the
// decode. It is left at its zero value and recorded so the validation rules
// can report it with the right severity.
type Request struct {
	JSONRPC  string           `json:"jsonrpc"`
	ID       any              `json:"id,omitempty"`
	Method   string           `json:"method"`
	Params   map[string]any   `json:"params,omitempty"`
	Metadata *RequestMetadata `json:"metadata,omitempty"`

	malformed map[string]string
}

// RequestMetadata holds optional caller-supplied scheduling hints.
type RequestMetadata struct {
	Priority      string  `json:"priority,omitempty"`
	RetryCount    *int    `json:"retryCount,omitempty"`
	CorrelationID *string `json:"correlationId,omitempty"`
	Source        *string `json:"source,omitempty"`
	Version       *string `json:"version,omitempty"`
}

// Response is the JSON envelope returned for every request.
// Exactly one of Result or Error is emitted on the wire.
type Response struct {
	JSONRPC  string           `json:"jsonrpc"`
	ID       any              `json:"id"`
	Result   any              `json:"result,omitempty"`
	Error    *Error           `json:"error,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata is attached to every response.
type ResponseMetadata struct {
	Timestamp      string         `json:"timestamp"`
	ProcessingTime int64          `json:"processingTime"`
	Version        string         `json:"version"`
	RequestID      string         `json:"requestId,omitempty"`
	CacheHit       bool           `json:"cacheHit,omitempty"`
	BatchIndex     *int           `json:"batchIndex,omitempty"`
	RateLimit      *RateLimitInfo `json:"rateLimit,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// RateLimitInfo reports the caller's position in the current rate-limit window.
type RateLimitInfo struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetTime string `json:"resetTime"`
}

// MarshalJSON writes "result": null for successful responses whose handler
// returned nothing, so a response always carries result or error.
func (r Response) MarshalJSON() ([]byte, error) {
	type wire struct {
		JSONRPC  string           `json:"jsonrpc"`
		ID       any              `json:"id"`
		Result   *any             `json:"result,omitempty"`
		Error    *Error           `json:"error,omitempty"`
		Metadata ResponseMetadata `json:"metadata"`
	}
	w := wire{JSONRPC: r.JSONRPC, ID: r.ID, Error: r.Error, Metadata: r.Metadata}
	if w.JSONRPC == "" {
		w.JSONRPC = Version
	}
	if r.Error == nil {
		result := r.Result
		w.Result = &result
	}
	return json.Marshal(w)
}

// NewResult builds a successful response.
func NewResult(id any, result any, meta ResponseMetadata) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result, Metadata: meta}
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id any, err *Error, meta ResponseMetadata) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err, Metadata: meta}
}

// NewMetadata returns response metadata stamped with the current time and
// the elapsed time since start.
func NewMetadata(start time.Time, version string) ResponseMetadata {
	now := time.Now()
	return ResponseMetadata{
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
		ProcessingTime: now.Sub(start).Milliseconds(),
		Version:        version,
	}
}

// Priority returns the declared priority, or PriorityNormal when absent or unknown.
func (r *Request) Priority() Priority {
	if r == nil || r.Metadata == nil {
		return PriorityNormal
	}
	p, ok := ParsePriority(r.Metadata.Priority)
	if !ok {
		return PriorityNormal
	}
	return p
}

// Malformed reports whether the named field was present on the wire with an
// unusable JSON type, and why. Nested fields use dotted names such as
// "metadata.retryCount".
func (r *Request) Malformed(field string) (string, bool) {
	if r == nil || r.malformed == nil {
		return "", false
	}
	reason, ok := r.malformed[field]
	return reason, ok
}

func (r *Request) markMalformed(field, reason string) {
	if r.malformed == nil {
		r.malformed = make(map[string]string)
	}
	r.malformed[field] = reason
}

// UnmarshalJSON decodes a request object, recording mistyped fields instead
// of failing. It only fails when data is not a JSON object.
func (r *Request) UnmarshalJSON(data []byte) error {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}
	*r = Request{}

	if raw, ok := object["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &r.JSONRPC); err != nil {
			r.markMalformed("jsonrpc", "must be a string")
		}
	}

	if raw, ok := object["id"]; ok {
		id, err := decodeValue(raw)
		switch {
		case err != nil, id == nil:
			r.markMalformed("id", "must be a string or number")
		default:
			switch id.(type) {
			case string, json.Number:
				r.ID = id
			default:
				r.markMalformed("id", "must be a string or number")
			}
		}
	}

	if raw, ok := object["method"]; ok {
		if err := json.Unmarshal(raw, &r.Method); err != nil {
			r.markMalformed("method", "must be a string")
		}
	}

	if raw, ok := object["params"]; ok && !isNull(raw) {
		v, err := decodeValue(raw)
		params, isObject := v.(map[string]any)
		if err != nil || !isObject {
			r.markMalformed("params", "must be an object")
		} else {
			r.Params = params
		}
	}

	if raw, ok := object["metadata"]; ok && !isNull(raw) {
		r.decodeMetadata(raw)
	}
	return nil
}

func (r *Request) decodeMetadata(raw json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		r.markMalformed("metadata", "must be an object")
		return
	}
	meta := &RequestMetadata{}

	if v, ok := fields["priority"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil || s == "" {
			r.markMalformed("metadata.priority", "must be one of low, normal, high, critical")
		} else {
			meta.Priority = s
		}
	}
	if v, ok := fields["retryCount"]; ok {
		n, err := decodeValue(v)
		num, isNum := n.(json.Number)
		if err != nil || !isNum {
			r.markMalformed("metadata.retryCount", "must be an integer")
		} else if i, err := num.Int64(); err != nil {
			r.markMalformed("metadata.retryCount", "must be an integer")
		} else {
			count := int(i)
			meta.RetryCount = &count
		}
	}
	meta.CorrelationID = r.optionalString(fields, "correlationId")
	meta.Source = r.optionalString(fields, "source")
	meta.Version = r.optionalString(fields, "version")
	r.Metadata = meta
}

func (r *Request) optionalString(fields map[string]json.RawMessage, name string) *string {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.markMalformed("metadata."+name, "must be a string")
		return nil
	}
	return &s
}

// decodeValue decodes raw JSON keeping numbers as json.Number so integer
// identifiers and parameters survive without float rounding.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
