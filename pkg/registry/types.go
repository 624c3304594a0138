// Package registry holds the table of callable methods and their descriptors.
package registry

import (
	"context"
	"errors"

	"github.com/morezero/mcp-engine/pkg/protocol"
)

// HandlerFunc executes one method call. Params is never nil.
type HandlerFunc func(ctx context.Context, params map[string]any, call *CallContext) (any, error)

// CallContext describes the request a handler is serving.
type CallContext struct {
	RequestID string
	ClientID  string
	Priority  protocol.Priority
	Metadata  *protocol.RequestMetadata
}

// MethodDescriptor describes a registered method.
type MethodDescriptor struct {
	Name           string
	Description    string
	Handler        HandlerFunc
	RequiredParams []string
	OptionalParams []string
	Cacheable      bool
	// RateLimitClass is the tier charged when the request declares no priority.
	RateLimitClass protocol.Priority
}

// Info returns the descriptor without its handler, for listings.
func (d *MethodDescriptor) Info() MethodInfo {
	return MethodInfo{
		Name:           d.Name,
		Description:    d.Description,
		RequiredParams: nonNil(d.RequiredParams),
		OptionalParams: nonNil(d.OptionalParams),
		Cacheable:      d.Cacheable,
		RateLimitClass: d.RateLimitClass.String(),
	}
}

// MethodInfo is the wire form of a descriptor.
type MethodInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	RequiredParams []string `json:"requiredParams"`
	OptionalParams []string `json:"optionalParams"`
	Cacheable      bool     `json:"cacheable"`
	RateLimitClass string   `json:"rateLimitClass"`
}

// Registry error codes.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeNotFound        = "NOT_FOUND"
)

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
