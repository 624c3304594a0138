// Package server wires the engine to its transports (HTTP, NATS), the
// database and the background jobs, and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/mcp-engine/internal/config"
	"github.com/morezero/mcp-engine/internal/handlers"
	"github.com/morezero/mcp-engine/pkg/bootstrap"
	"github.com/morezero/mcp-engine/pkg/commsutil"
	"github.com/morezero/mcp-engine/pkg/db"
	"github.com/morezero/mcp-engine/pkg/engine"
	"github.com/morezero/mcp-engine/pkg/events"
)

const logPrefix = "server:server"

// shutdownTimeout bounds HTTP drain and the final performance flush.
const shutdownTimeout = 10 * time.Second

// Server is the mcp-engine orchestrator.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	nc     *comms.Conn
	pool   *pgxpool.Pool
	store  PerformanceStore
	perf   *perfSync
}

// Run loads configuration, starts the server, blocks until a shutdown
// signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info(fmt.Sprintf("%s - Starting %s %s", logPrefix, cfg.ServiceName, cfg.ServerVersion))

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Serve(ctx)
}

// SetupLogging installs a text slog handler on stdout at the given level
// (debug, info, warn, error; anything else means info).
func SetupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// New connects the configured collaborators and builds the engine with its
// built-in methods. NATS and the database are optional.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
	} else {
		slog.Info(fmt.Sprintf("%s - COMMS_URL empty, NATS transport disabled", logPrefix))
	}

	if cfg.DatabaseURL != "" {
		if err := s.openDatabase(ctx); err != nil {
			s.Close()
			return nil, err
		}
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL empty, performance persistence disabled", logPrefix))
	}

	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if s.nc != nil {
		publisher = events.NewCommsPublisher(s.nc, &events.CommsPublisherOpts{Subject: cfg.EventSubject})
	}

	s.engine = engine.New(engine.NewEngineParams{
		Config:        cfg.EngineConfig(),
		Publisher:     publisher,
		Checks:        s.healthChecks(),
		HealthTimeout: cfg.HealthCheckTimeout,
	})

	manifest, err := bootstrap.LoadManifest(cfg.MethodsFile)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to load method manifest: %w", logPrefix, err)
	}
	if err := handlers.Install(ctx, s.engine, manifest); err != nil {
		s.Close()
		return nil, err
	}

	if s.store != nil {
		s.perf = newPerfSync(s.store, s.engine.Tracker())
		if err := s.perf.restore(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - could not restore performance stats, will retry before flushing: %v", logPrefix, err))
		}
	}
	return s, nil
}

func (s *Server) openDatabase(ctx context.Context) error {
	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	s.store = db.NewRepository(pool)
	return nil
}

func (s *Server) healthChecks() map[string]engine.HealthCheck {
	checks := make(map[string]engine.HealthCheck)
	if s.store != nil {
		checks["database"] = s.store.Ping
	}
	if s.nc != nil {
		nc := s.nc
		checks["comms"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("%s - NATS status %s", logPrefix, nc.Status())
			}
			return nil
		}
	}
	return checks
}

// Engine returns the engine the server drives.
func (s *Server) Engine() *engine.Engine { return s.engine }

// Serve runs the transports and background jobs until ctx is cancelled or
// one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.nc != nil {
		sub, err := Subscribe(gctx, s.nc, s.cfg.Subject, s.engine)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return sub.Unsubscribe()
		})
	}

	httpSrv := NewHTTPServer(fmt.Sprintf(":%d", s.cfg.HTTPPort), s.engine, s.cfg.HealthCheckTimeout)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP listening on %s", logPrefix, httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runJanitor(gctx, s.engine, janitorInterval(s.cfg.RateLimitWindow))
		return nil
	})

	if s.perf != nil {
		g.Go(func() error {
			runFlusher(gctx, s.perf, s.cfg.PerfFlushInterval)
			return nil
		})
	}

	slog.Info(fmt.Sprintf("%s - %s is ready (%d methods)", logPrefix, s.cfg.ServiceName, s.engine.Registry().Len()))
	err := g.Wait()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// Close releases NATS and database resources.
func (s *Server) Close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
