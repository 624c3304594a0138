// Package validation evaluates requests against the structural and semantic
// rule set, producing blocking errors, advisory warnings and suggestions.
package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/semver"
)

const logPrefix = "validation:validation"

// MaxRetryCount is the highest accepted metadata.retryCount.
const MaxRetryCount = 5

// RetryWarningThreshold is the retryCount above which a warning is raised.
const RetryWarningThreshold = 3

// Severity marks whether a rule blocks processing.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Rule categories. Suggestions are keyed by category.
const (
	CategoryProtocol = "protocol"
	CategoryID       = "id"
	CategoryMethod   = "method"
	CategoryPriority = "priority"
	CategoryRetry    = "retry"
	CategoryMetadata = "metadata"
	CategoryParams   = "params"
)

// categoryOrder fixes suggestion ordering.
var categoryOrder = []string{
	CategoryProtocol, CategoryID, CategoryMethod, CategoryPriority,
	CategoryRetry, CategoryMetadata, CategoryParams,
}

var suggestions = map[string]string{
	CategoryProtocol: `Set "jsonrpc" to "2.0"`,
	CategoryID:       "Provide a string or numeric request id",
	CategoryMethod:   "Specify a valid method name",
	CategoryPriority: "Use one of: low, normal, high, critical",
	CategoryRetry:    fmt.Sprintf("Keep retryCount between 0 and %d", MaxRetryCount),
	CategoryMetadata: "Send metadata as a JSON object",
	CategoryParams:   "Send params as a JSON object",
}

// MethodLookup reports whether a method is registered.
type MethodLookup interface {
	HasMethod(name string) bool
}

// Rule is one independently evaluable check.
type Rule struct {
	Name     string
	Severity Severity
	Category string
	Check    func(req *protocol.Request) []string
}

// Result is the outcome of validating one request.
type Result struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// Options configures a Validator.
type Options struct {
	// ServerVersion enables the metadata.version compatibility warning when set.
	ServerVersion string
}

// Validator applies the rule set to requests. It holds no mutable state.
type Validator struct {
	methods       MethodLookup
	serverVersion string
	rules         []Rule
}

// NewValidator creates a Validator. methods may be nil, in which case every
// non-empty method name is treated as unknown.
func NewValidator(methods MethodLookup, opts Options) *Validator {
	v := &Validator{methods: methods, serverVersion: opts.ServerVersion}
	v.rules = v.buildRules()
	return v
}

// Rules returns the rule set in evaluation order.
func (v *Validator) Rules() []Rule {
	out := make([]Rule, len(v.rules))
	copy(out, v.rules)
	return out
}

// Validate evaluates every rule against req. A request is valid when no
// error-severity rule fired; warnings never block.
func (v *Validator) Validate(req *protocol.Request) Result {
	res := Result{Errors: []string{}, Warnings: []string{}, Suggestions: []string{}}
	if req == nil {
		req = &protocol.Request{}
	}

	fired := make(map[string]bool)
	for _, rule := range v.rules {
		msgs := rule.Check(req)
		if len(msgs) == 0 {
			continue
		}
		if rule.Severity == SeverityWarning {
			res.Warnings = append(res.Warnings, msgs...)
			continue
		}
		res.Errors = append(res.Errors, msgs...)
		fired[rule.Category] = true
	}
	for _, category := range categoryOrder {
		if fired[category] {
			res.Suggestions = append(res.Suggestions, suggestions[category])
		}
	}
	res.IsValid = len(res.Errors) == 0

	if !res.IsValid {
		slog.Debug(fmt.Sprintf("%s - method=%q rejected: %v", logPrefix, req.Method, res.Errors))
	}
	return res
}

func (v *Validator) buildRules() []Rule {
	return []Rule{
		{Name: "object", Severity: SeverityError, Category: CategoryProtocol, Check: checkObject},
		{Name: "jsonrpc", Severity: SeverityError, Category: CategoryProtocol, Check: checkProtocol},
		{Name: "id", Severity: SeverityError, Category: CategoryID, Check: checkID},
		{Name: "method", Severity: SeverityError, Category: CategoryMethod, Check: checkMethod},
		{Name: "method-registered", Severity: SeverityError, Category: CategoryMethod, Check: v.checkRegistered},
		{Name: "metadata", Severity: SeverityError, Category: CategoryMetadata, Check: checkMetadataObject},
		{Name: "priority", Severity: SeverityError, Category: CategoryPriority, Check: checkPriority},
		{Name: "retry-count", Severity: SeverityError, Category: CategoryRetry, Check: checkRetryCount},
		{Name: "retry-count-threshold", Severity: SeverityWarning, Category: CategoryRetry, Check: checkRetryThreshold},
		{Name: "correlation-id", Severity: SeverityWarning, Category: CategoryMetadata, Check: checkNonEmpty("correlationId", func(m *protocol.RequestMetadata) *string { return m.CorrelationID })},
		{Name: "source", Severity: SeverityWarning, Category: CategoryMetadata, Check: checkNonEmpty("source", func(m *protocol.RequestMetadata) *string { return m.Source })},
		{Name: "version", Severity: SeverityWarning, Category: CategoryMetadata, Check: v.checkVersion},
		{Name: "params", Severity: SeverityError, Category: CategoryParams, Check: checkParams},
	}
}

func checkObject(req *protocol.Request) []string {
	if _, bad := req.Malformed("request"); bad {
		return []string{"Request must be a JSON object"}
	}
	return nil
}

func checkProtocol(req *protocol.Request) []string {
	if _, bad := req.Malformed("request"); bad {
		return nil
	}
	if _, bad := req.Malformed("jsonrpc"); bad || req.JSONRPC != protocol.Version {
		return []string{fmt.Sprintf("Invalid JSON-RPC version: jsonrpc must be %q", protocol.Version)}
	}
	return nil
}

func checkID(req *protocol.Request) []string {
	if _, bad := req.Malformed("request"); bad {
		return nil
	}
	if _, bad := req.Malformed("id"); bad {
		return []string{"Invalid request id: id must be a string or number"}
	}
	if req.ID == nil {
		return []string{"Missing request id: id is required"}
	}
	if !validID(req.ID) {
		return []string{"Invalid request id: id must be a string or number"}
	}
	return nil
}

func validID(id any) bool {
	switch id.(type) {
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func checkMethod(req *protocol.Request) []string {
	if _, bad := req.Malformed("request"); bad {
		return nil
	}
	if _, bad := req.Malformed("method"); bad {
		return []string{"Invalid method: method must be a string"}
	}
	if req.Method == "" {
		return []string{"Missing method: method must be a non-empty string"}
	}
	return nil
}

func (v *Validator) checkRegistered(req *protocol.Request) []string {
	if req.Method == "" {
		return nil
	}
	if v.methods == nil || !v.methods.HasMethod(req.Method) {
		return []string{fmt.Sprintf("Unknown method: %s", req.Method)}
	}
	return nil
}

func checkMetadataObject(req *protocol.Request) []string {
	if _, bad := req.Malformed("metadata"); bad {
		return []string{"Invalid metadata: metadata must be an object"}
	}
	return nil
}

func checkPriority(req *protocol.Request) []string {
	if reason, bad := req.Malformed("metadata.priority"); bad {
		return []string{"Invalid priority: " + reason}
	}
	if req.Metadata == nil || req.Metadata.Priority == "" {
		return nil
	}
	if _, ok := protocol.ParsePriority(req.Metadata.Priority); !ok {
		return []string{fmt.Sprintf("Invalid priority %q: must be one of low, normal, high, critical", req.Metadata.Priority)}
	}
	return nil
}

func checkRetryCount(req *protocol.Request) []string {
	if reason, bad := req.Malformed("metadata.retryCount"); bad {
		return []string{"Invalid retryCount: " + reason}
	}
	if req.Metadata == nil || req.Metadata.RetryCount == nil {
		return nil
	}
	n := *req.Metadata.RetryCount
	if n < 0 || n > MaxRetryCount {
		return []string{fmt.Sprintf("Invalid retryCount %d: must be between 0 and %d", n, MaxRetryCount)}
	}
	return nil
}

func checkRetryThreshold(req *protocol.Request) []string {
	if req.Metadata == nil || req.Metadata.RetryCount == nil {
		return nil
	}
	n := *req.Metadata.RetryCount
	if n > RetryWarningThreshold && n <= MaxRetryCount {
		return []string{fmt.Sprintf("High retryCount %d: consider backing off before retrying", n)}
	}
	return nil
}

func checkNonEmpty(field string, get func(*protocol.RequestMetadata) *string) func(*protocol.Request) []string {
	return func(req *protocol.Request) []string {
		if _, bad := req.Malformed("metadata." + field); bad {
			return []string{fmt.Sprintf("metadata.%s should be a non-empty string", field)}
		}
		if req.Metadata == nil {
			return nil
		}
		if s := get(req.Metadata); s != nil && *s == "" {
			return []string{fmt.Sprintf("metadata.%s should be a non-empty string", field)}
		}
		return nil
	}
}

func (v *Validator) checkVersion(req *protocol.Request) []string {
	if _, bad := req.Malformed("metadata.version"); bad {
		return []string{"metadata.version should be a semantic version string (major.minor[.patch])"}
	}
	if req.Metadata == nil || req.Metadata.Version == nil {
		return nil
	}
	version := *req.Metadata.Version
	if !semver.ValidShape(version) {
		return []string{fmt.Sprintf("metadata.version %q should be a semantic version (major.minor[.patch])", version)}
	}
	if v.serverVersion == "" {
		return nil
	}
	ok, err := semver.Compatible(version, v.serverVersion)
	if err != nil || ok {
		return nil
	}
	return []string{fmt.Sprintf("metadata.version %s may be incompatible with server version %s", version, v.serverVersion)}
}

func checkParams(req *protocol.Request) []string {
	if _, bad := req.Malformed("params"); bad {
		return []string{"Invalid params: params must be an object"}
	}
	return nil
}
