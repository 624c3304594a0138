package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// EnvMethodsFile names the environment variable holding a manifest path.
const EnvMethodsFile = "MCP_METHODS_FILE"

// searchPaths are tried in order for the base manifest.
var searchPaths = []string{"config/methods.yaml", "methods.yaml"}

// LoadManifest builds the method manifest in layers. The base is the first of
// config/methods.yaml and methods.yaml that parses, else the default
// manifest. Each path passed in, then MCP_METHODS_FILE, is merged over the
// base in that order. Those paths were named by the operator, so a file that
// cannot be read or parsed is an error. Problems with the search paths are
// only logged.
func LoadManifest(paths ...string) (*Manifest, error) {
	overrides := make([]string, 0, len(paths)+1)
	seen := make(map[string]bool)
	for _, p := range append(paths, os.Getenv(EnvMethodsFile)) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		overrides = append(overrides, p)
	}

	m := searchManifest()
	for _, p := range overrides {
		override, err := readManifest(p)
		if err != nil {
			return nil, err
		}
		slog.Info(fmt.Sprintf("%s - Loaded method manifest from %s (%d entries)", logPrefix, p, len(override.Methods)))
		m = MergeManifests(m, override)
	}
	return m, nil
}

func searchManifest() *Manifest {
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		m, err := readManifest(p)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Skipping manifest %s: %v", logPrefix, p, err))
			continue
		}
		slog.Info(fmt.Sprintf("%s - Loaded method manifest from %s (%d entries)", logPrefix, p, len(m.Methods)))
		return m
	}
	slog.Info(fmt.Sprintf("%s - Using default method manifest", logPrefix))
	return DefaultManifest()
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read manifest: %w", logPrefix, err)
	}
	m, err := ParseManifest(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s - manifest %s: %w", logPrefix, path, err)
	}
	return m, nil
}

// ParseManifest decodes manifest data. Files ending in .json are read as
// JSON, everything else as YAML.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s - invalid JSON manifest: %w", logPrefix, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s - invalid YAML manifest: %w", logPrefix, err)
		}
	}
	if m.Methods == nil {
		m.Methods = map[string]MethodEntry{}
	}
	return &m, nil
}

// DefaultManifest returns the fallback manifest, which keeps every built-in
// descriptor as declared in code.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:        "mcp-engine-default",
		Version:     "1.0.0",
		Description: "Built-in method descriptors without overrides",
		Methods:     map[string]MethodEntry{},
	}
}
