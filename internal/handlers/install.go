package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/mcp-engine/pkg/bootstrap"
	"github.com/morezero/mcp-engine/pkg/engine"
)

const logPrefix = "handlers:install"

// Install registers the built-in methods on e after applying manifest
// overrides. A nil manifest keeps every descriptor as declared.
func Install(ctx context.Context, e *engine.Engine, manifest *bootstrap.Manifest) error {
	descs := Builtins(e)
	if manifest != nil {
		var err error
		descs, err = manifest.Apply(descs)
		if err != nil {
			return fmt.Errorf("%s - apply manifest: %w", logPrefix, err)
		}
	}
	for _, d := range descs {
		if err := e.Register(ctx, d); err != nil {
			return fmt.Errorf("%s - register %s: %w", logPrefix, d.Name, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - %d built-in methods installed", logPrefix, len(descs)))
	return nil
}
