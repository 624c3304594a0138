package validation

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/morezero/mcp-engine/pkg/protocol"
)

const validationTestPrefix = "validation:validation_test"

type methodSet map[string]bool

func (m methodSet) HasMethod(name string) bool { return m[name] }

func newTestValidator() *Validator {
	return NewValidator(methodSet{"echo": true, "ping": true}, Options{ServerVersion: "1.2.0"})
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func validRequest() *protocol.Request {
	return &protocol.Request{JSONRPC: "2.0", ID: 1, Method: "echo", Params: map[string]any{"x": 5}}
}

func decode(t *testing.T, raw string) *protocol.Request {
	t.Helper()
	req, rpcErr := protocol.DecodeRequest([]byte(raw))
	if rpcErr != nil {
		t.Fatalf("%s - decode failed: %v", validationTestPrefix, rpcErr)
	}
	return req
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func TestValidate_ValidRequest(t *testing.T) {
	res := newTestValidator().Validate(validRequest())
	if !res.IsValid {
		t.Fatalf("%s - expected valid, got errors %v", validationTestPrefix, res.Errors)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 || len(res.Suggestions) != 0 {
		t.Errorf("%s - expected no findings, got %+v", validationTestPrefix, res)
	}
}

func TestValidate_MissingMethod(t *testing.T) {
	req := validRequest()
	req.Method = ""
	res := newTestValidator().Validate(req)
	if res.IsValid {
		t.Fatalf("%s - expected invalid request", validationTestPrefix)
	}
	if !containsSubstring(res.Errors, "method") {
		t.Errorf("%s - expected an error mentioning method, got %v", validationTestPrefix, res.Errors)
	}
	if !containsSubstring(res.Suggestions, "specify a valid method name") {
		t.Errorf("%s - expected method suggestion, got %v", validationTestPrefix, res.Suggestions)
	}
}

func TestValidate_UnknownMethod(t *testing.T) {
	req := validRequest()
	req.Method = "nope"
	res := newTestValidator().Validate(req)
	if res.IsValid {
		t.Fatalf("%s - expected invalid request", validationTestPrefix)
	}
	if !containsSubstring(res.Errors, "Unknown method: nope") {
		t.Errorf("%s - errors = %v", validationTestPrefix, res.Errors)
	}
}

func TestValidate_NilLookupRejectsEveryMethod(t *testing.T) {
	res := NewValidator(nil, Options{}).Validate(validRequest())
	if res.IsValid {
		t.Errorf("%s - expected invalid with nil lookup", validationTestPrefix)
	}
}

func TestValidate_Protocol(t *testing.T) {
	for _, tag := range []string{"", "1.0", "2.0 "} {
		req := validRequest()
		req.JSONRPC = tag
		res := newTestValidator().Validate(req)
		if res.IsValid {
			t.Errorf("%s - jsonrpc %q should be rejected", validationTestPrefix, tag)
		}
	}
}

func TestValidate_ID(t *testing.T) {
	tests := []struct {
		name  string
		id    any
		valid bool
	}{
		{"string", "abc", true},
		{"int", 7, true},
		{"float", 7.5, true},
		{"json number", json.Number("42"), true},
		{"missing", nil, false},
		{"bool", true, false},
		{"object", map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.ID = tt.id
			res := newTestValidator().Validate(req)
			if res.IsValid != tt.valid {
				t.Errorf("%s - id %v: IsValid = %v, want %v (%v)", validationTestPrefix, tt.id, res.IsValid, tt.valid, res.Errors)
			}
		})
	}
}

func TestValidate_Priority(t *testing.T) {
	for _, p := range []string{"low", "normal", "high", "critical"} {
		req := validRequest()
		req.Metadata = &protocol.RequestMetadata{Priority: p}
		if res := newTestValidator().Validate(req); !res.IsValid {
			t.Errorf("%s - priority %q should be valid: %v", validationTestPrefix, p, res.Errors)
		}
	}
	req := validRequest()
	req.Metadata = &protocol.RequestMetadata{Priority: "urgent"}
	res := newTestValidator().Validate(req)
	if res.IsValid {
		t.Fatalf("%s - priority urgent should be rejected", validationTestPrefix)
	}
	if !containsSubstring(res.Suggestions, "low, normal, high, critical") {
		t.Errorf("%s - suggestions = %v", validationTestPrefix, res.Suggestions)
	}
}

func TestValidate_RetryCount(t *testing.T) {
	tests := []struct {
		count       int
		valid       bool
		wantWarning bool
	}{
		{0, true, false},
		{3, true, false},
		{4, true, true},
		{5, true, true},
		{6, false, false},
		{-1, false, false},
	}
	for _, tt := range tests {
		req := validRequest()
		req.Metadata = &protocol.RequestMetadata{RetryCount: intPtr(tt.count)}
		res := newTestValidator().Validate(req)
		if res.IsValid != tt.valid {
			t.Errorf("%s - retryCount %d: IsValid = %v, want %v", validationTestPrefix, tt.count, res.IsValid, tt.valid)
		}
		gotWarning := containsSubstring(res.Warnings, "retryCount")
		if gotWarning != tt.wantWarning {
			t.Errorf("%s - retryCount %d: warning = %v, want %v (%v)", validationTestPrefix, tt.count, gotWarning, tt.wantWarning, res.Warnings)
		}
	}
}

func TestValidate_AdvisoryMetadataWarnsOnly(t *testing.T) {
	req := validRequest()
	req.Metadata = &protocol.RequestMetadata{
		CorrelationID: strPtr(""),
		Source:        strPtr(""),
		Version:       strPtr("v1"),
	}
	res := newTestValidator().Validate(req)
	if !res.IsValid {
		t.Fatalf("%s - advisory fields must not block: %v", validationTestPrefix, res.Errors)
	}
	if len(res.Warnings) != 3 {
		t.Errorf("%s - expected 3 warnings, got %v", validationTestPrefix, res.Warnings)
	}
}

func TestValidate_VersionCompatibility(t *testing.T) {
	req := validRequest()
	req.Metadata = &protocol.RequestMetadata{Version: strPtr("2.0.0")}
	res := newTestValidator().Validate(req)
	if !res.IsValid {
		t.Fatalf("%s - version mismatch must not block", validationTestPrefix)
	}
	if !containsSubstring(res.Warnings, "incompatible") {
		t.Errorf("%s - expected incompatibility warning, got %v", validationTestPrefix, res.Warnings)
	}

	req.Metadata.Version = strPtr("1.0")
	if res := newTestValidator().Validate(req); len(res.Warnings) != 0 {
		t.Errorf("%s - compatible version produced warnings %v", validationTestPrefix, res.Warnings)
	}
}

func TestValidate_WireTypeErrors(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantValid bool
		wantText  string
	}{
		{"params array", `{"jsonrpc":"2.0","id":1,"method":"echo","params":[1,2]}`, false, "params must be an object"},
		{"method number", `{"jsonrpc":"2.0","id":1,"method":5}`, false, "method must be a string"},
		{"id null", `{"jsonrpc":"2.0","id":null,"method":"echo"}`, false, "id must be a string or number"},
		{"id missing", `{"jsonrpc":"2.0","method":"echo"}`, false, "id is required"},
		{"retry float", `{"jsonrpc":"2.0","id":1,"method":"echo","metadata":{"retryCount":1.5}}`, false, "retryCount"},
		{"retry too high", `{"jsonrpc":"2.0","id":1,"method":"echo","metadata":{"retryCount":9}}`, false, "between 0 and 5"},
		{"metadata string", `{"jsonrpc":"2.0","id":1,"method":"echo","metadata":"x"}`, false, "metadata must be an object"},
		{"source number warns", `{"jsonrpc":"2.0","id":"a","method":"echo","metadata":{"source":1}}`, true, ""},
		{"null params ok", `{"jsonrpc":"2.0","id":"a","method":"ping","params":null}`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestValidator().Validate(decode(t, tt.raw))
			if res.IsValid != tt.wantValid {
				t.Fatalf("%s - IsValid = %v, want %v (%v)", validationTestPrefix, res.IsValid, tt.wantValid, res.Errors)
			}
			if tt.wantText != "" && !containsSubstring(res.Errors, tt.wantText) {
				t.Errorf("%s - errors %v missing %q", validationTestPrefix, res.Errors, tt.wantText)
			}
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	v := newTestValidator()
	req := validRequest()
	req.Method = ""
	req.Metadata = &protocol.RequestMetadata{RetryCount: intPtr(4), Priority: "bogus"}

	first := v.Validate(req)
	second := v.Validate(req)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("%s - validation not idempotent: %+v vs %+v", validationTestPrefix, first, second)
	}
}

func TestValidate_SuggestionsFollowCategoryOrder(t *testing.T) {
	req := &protocol.Request{Metadata: &protocol.RequestMetadata{Priority: "bogus"}}
	res := newTestValidator().Validate(req)
	want := []string{
		suggestions[CategoryProtocol],
		suggestions[CategoryID],
		suggestions[CategoryMethod],
		suggestions[CategoryPriority],
	}
	if !reflect.DeepEqual(res.Suggestions, want) {
		t.Errorf("%s - suggestions = %v, want %v", validationTestPrefix, res.Suggestions, want)
	}
}

func TestValidate_NonObjectBatchItem(t *testing.T) {
	reqs, rpcErr := protocol.DecodeBatch([]byte(`[42]`))
	if rpcErr != nil {
		t.Fatalf("%s - decode failed: %v", validationTestPrefix, rpcErr)
	}
	res := newTestValidator().Validate(reqs[0])
	if res.IsValid {
		t.Fatalf("%s - expected invalid", validationTestPrefix)
	}
	if len(res.Errors) != 1 || !containsSubstring(res.Errors, "JSON object") {
		t.Errorf("%s - errors = %v", validationTestPrefix, res.Errors)
	}
}

func TestRules_SeveritiesTagged(t *testing.T) {
	warnings := map[string]bool{"retry-count-threshold": true, "correlation-id": true, "source": true, "version": true}
	for _, rule := range newTestValidator().Rules() {
		want := SeverityError
		if warnings[rule.Name] {
			want = SeverityWarning
		}
		if rule.Severity != want {
			t.Errorf("%s - rule %s severity = %v, want %v", validationTestPrefix, rule.Name, rule.Severity, want)
		}
	}
}
