// Package main is the entrypoint for mcp-engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/mcp-engine/internal/config"
	"github.com/morezero/mcp-engine/internal/handlers"
	"github.com/morezero/mcp-engine/internal/server"
	"github.com/morezero/mcp-engine/pkg/bootstrap"
	"github.com/morezero/mcp-engine/pkg/db"
	"github.com/morezero/mcp-engine/pkg/engine"
)

const usage = `Usage: mcp-engine [command]

Commands:
  serve             (default) Start the engine (HTTP, NATS, background jobs).
  migrate up        Run database migrations.
  migrate down      Not supported; migrations are forward-only.
  migrate status    Show whether the method_performance table exists.
  ensure-db [name]  Create the database if missing (default: the name in DATABASE_URL).
  clear             Truncate stored performance snapshots; schema preserved.
  methods [file]    List the methods the engine would serve, after manifest overrides.
  help              Show this message.

Environment: DATABASE_URL, MIGRATION_PATH, COMMS_URL, MCP_SUBJECT, HTTP_PORT,
MCP_METHODS_FILE, LOG_LEVEL and the limit settings (MAX_CONCURRENT_REQUESTS,
MAX_BATCH_SIZE, RATE_LIMIT_*).
`

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
			os.Exit(2)
		}
		log.Fatalf("mcp-engine: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve", "":
		return server.Run()
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("migrate requires a subcommand (up, down, status): %w", errUsage)
		}
		switch args[1] {
		case "up":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
				if err != nil {
					return err
				}
				return db.RunMigrations(ctx, pool, migrations)
			})
		case "status":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
			})
		case "down":
			return db.MigrationDown(context.Background(), nil, "")
		default:
			return fmt.Errorf("unknown migrate subcommand %q: %w", args[1], errUsage)
		}
	case "ensure-db":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return runEnsureDB(name, out)
	case "clear":
		return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			return db.ClearPerformance(ctx, pool)
		})
	case "methods":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		return listMethods(file, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// withPool loads config, opens a pool on DATABASE_URL and runs fn.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runEnsureDB(name string, out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	target, err := withDatabaseName(cfg.DatabaseURL, name)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), target); err != nil {
		return err
	}
	dbName, _ := db.DatabaseName(target)
	fmt.Fprintf(out, "Database %q is ready.\n", dbName)
	return nil
}

// withDatabaseName swaps the database in rawURL for name; an empty name keeps it.
func withDatabaseName(rawURL, name string) (string, error) {
	if name == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

// listMethods prints the built-in methods after manifest overrides.
func listMethods(file string, out io.Writer) error {
	manifest, err := bootstrap.LoadManifest(file)
	if err != nil {
		return err
	}
	e := engine.New(engine.NewEngineParams{})
	if err := handlers.Install(context.Background(), e, manifest); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tCLASS\tCACHEABLE\tREQUIRED\tDESCRIPTION")
	for _, m := range e.Registry().Descriptors() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%v\t%s\n", m.Name, m.RateLimitClass, m.Cacheable, m.RequiredParams, m.Description)
	}
	return tw.Flush()
}
