// Package bootstrap loads the method manifest that tunes built-in method
// descriptors at startup.
package bootstrap

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/registry"
)

// MethodEntry overrides one method's descriptor. Nil fields keep the
// descriptor's own value.
type MethodEntry struct {
	Description    *string  `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredParams []string `json:"requiredParams,omitempty" yaml:"requiredParams,omitempty"`
	OptionalParams []string `json:"optionalParams,omitempty" yaml:"optionalParams,omitempty"`
	Cacheable      *bool    `json:"cacheable,omitempty" yaml:"cacheable,omitempty"`
	RateLimitClass string   `json:"rateLimitClass,omitempty" yaml:"rateLimitClass,omitempty"`
	Enabled        *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Manifest is the root of a method manifest file.
type Manifest struct {
	Name        string                 `json:"name" yaml:"name"`
	Version     string                 `json:"version" yaml:"version"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Methods     map[string]MethodEntry `json:"methods" yaml:"methods"`
}

// Apply overrides descs with the manifest entries and drops disabled methods.
// Entries for methods without a handler are logged and ignored.
func (m *Manifest) Apply(descs []registry.MethodDescriptor) ([]registry.MethodDescriptor, error) {
	known := make(map[string]bool, len(descs))
	out := make([]registry.MethodDescriptor, 0, len(descs))

	for _, d := range descs {
		known[d.Name] = true
		entry, ok := m.Methods[d.Name]
		if !ok {
			out = append(out, d)
			continue
		}
		if entry.Enabled != nil && !*entry.Enabled {
			slog.Info(fmt.Sprintf("%s - method %s disabled by manifest", logPrefix, d.Name))
			continue
		}
		if entry.Description != nil {
			d.Description = *entry.Description
		}
		if entry.RequiredParams != nil {
			d.RequiredParams = entry.RequiredParams
		}
		if entry.OptionalParams != nil {
			d.OptionalParams = entry.OptionalParams
		}
		if entry.Cacheable != nil {
			d.Cacheable = *entry.Cacheable
		}
		if entry.RateLimitClass != "" {
			p, ok := protocol.ParsePriority(entry.RateLimitClass)
			if !ok {
				return nil, fmt.Errorf("%s - method %s: unknown rateLimitClass %q", logPrefix, d.Name, entry.RateLimitClass)
			}
			d.RateLimitClass = p
		}
		out = append(out, d)
	}

	for _, name := range m.MethodNames() {
		if !known[name] {
			slog.Warn(fmt.Sprintf("%s - manifest entry %s has no handler, ignoring", logPrefix, name))
		}
	}
	return out, nil
}

// MethodNames returns the manifest's method names, sorted.
func (m *Manifest) MethodNames() []string {
	names := make([]string, 0, len(m.Methods))
	for name := range m.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeManifests returns base with override's entries replacing base entries
// of the same name. Neither input is modified.
func MergeManifests(base, override *Manifest) *Manifest {
	merged := *base
	merged.Methods = make(map[string]MethodEntry, len(base.Methods)+len(override.Methods))
	for name, entry := range base.Methods {
		merged.Methods[name] = entry
	}
	for name, entry := range override.Methods {
		merged.Methods[name] = entry
	}
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}
