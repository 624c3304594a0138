package protocol

import (
	"fmt"
	"net/http"
)

// JSON-RPC aligned error codes.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternalError      = -32603
	CodeRateLimited        = -32000
	CodeServiceUnavailable = -32001
)

// Error is the JSON-RPC error object. It doubles as a Go error so handlers
// can return one to choose their own code.
type Error struct {
	Code            int    `json:"code"`
	Message         string `json:"message"`
	Data            any    `json:"data,omitempty"`
	Retryable       bool   `json:"retryable"`
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ParseError reports a payload that is not valid JSON.
func ParseError(detail string) *Error {
	return &Error{
		Code:            CodeParseError,
		Message:         "Parse error",
		Data:            detail,
		SuggestedAction: "Send a valid JSON document",
	}
}

// InvalidRequest reports a structural or validation failure.
func InvalidRequest(message string, data any) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message, Data: data}
}

// MethodNotFound reports a method with no registered handler.
func MethodNotFound(method string) *Error {
	return &Error{
		Code:            CodeMethodNotFound,
		Message:         fmt.Sprintf("method not found: %s", method),
		SuggestedAction: "Specify a valid method name",
	}
}

// MissingParam reports a required parameter absent from params.
func MissingParam(name string) *Error {
	return &Error{
		Code:            CodeInvalidParams,
		Message:         fmt.Sprintf("missing required parameter: %s", name),
		SuggestedAction: fmt.Sprintf("Add the %q parameter and call again", name),
	}
}

// InvalidParams reports parameters a handler rejected.
func InvalidParams(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// InternalError wraps a handler failure. The top-level message stays generic;
// detail only travels in data.
func InternalError(detail string, retryable bool) *Error {
	return &Error{
		Code:      CodeInternalError,
		Message:   "Internal error",
		Data:      detail,
		Retryable: retryable,
	}
}

// RateLimited reports a request over its rate-limit window.
func RateLimited(data any) *Error {
	return &Error{
		Code:            CodeRateLimited,
		Message:         "Rate limit exceeded",
		Data:            data,
		Retryable:       true,
		SuggestedAction: "Wait until the rate-limit window resets before retrying",
	}
}

// ServiceUnavailable reports a request turned away at a concurrency ceiling.
func ServiceUnavailable(message string, data any) *Error {
	return &Error{
		Code:            CodeServiceUnavailable,
		Message:         message,
		Data:            data,
		Retryable:       true,
		SuggestedAction: "Retry after a short delay or raise the request priority",
	}
}

// HTTPStatus maps an error code to the status used by the HTTP transport.
// A nil error maps to 200.
func HTTPStatus(err *Error) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Code {
	case CodeParseError, CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
