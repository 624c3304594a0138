// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/mcp-engine/pkg/engine"
	"github.com/morezero/mcp-engine/pkg/protocol"
)

const logPrefix = "config:LoadConfig"

// Config holds mcp-engine configuration.
type Config struct {
	ServiceName   string `envconfig:"SERVICE_NAME" default:"mcp-engine"`
	ServerVersion string `envconfig:"SERVER_VERSION" default:"1.0.0"`

	// COMMS: connect to NATS at COMMSURL. Empty disables the NATS transport.
	COMMSURL     string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	Subject      string `envconfig:"MCP_SUBJECT" default:"mcp.rpc"`
	EventSubject string `envconfig:"MCP_EVENT_SUBJECT"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	MethodsFile    string        `envconfig:"MCP_METHODS_FILE"`

	// Limits
	MaxConcurrentRequests int           `envconfig:"MAX_CONCURRENT_REQUESTS" default:"50"`
	MaxConcurrentBatches  int           `envconfig:"MAX_CONCURRENT_BATCHES" default:"10"`
	MaxBatchSize          int           `envconfig:"MAX_BATCH_SIZE" default:"100"`
	RateLimitWindow       time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitLow          int           `envconfig:"RATE_LIMIT_LOW" default:"10"`
	RateLimitNormal       int           `envconfig:"RATE_LIMIT_NORMAL" default:"30"`
	RateLimitHigh         int           `envconfig:"RATE_LIMIT_HIGH" default:"60"`
	RateLimitCritical     int           `envconfig:"RATE_LIMIT_CRITICAL" default:"100"`

	// Cache
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"0s"`
	CacheMaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`

	// Database. Empty disables performance persistence.
	DatabaseURL       string        `envconfig:"DATABASE_URL"`
	RunMigrations     bool          `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath     string        `envconfig:"MIGRATION_PATH" default:"migrations"`
	PerfFlushInterval time.Duration `envconfig:"PERF_FLUSH_INTERVAL" default:"30s"`

	// HTTP
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// RateLimits returns the per-priority request limits.
func (c *Config) RateLimits() map[protocol.Priority]int {
	return map[protocol.Priority]int{
		protocol.PriorityLow:      c.RateLimitLow,
		protocol.PriorityNormal:   c.RateLimitNormal,
		protocol.PriorityHigh:     c.RateLimitHigh,
		protocol.PriorityCritical: c.RateLimitCritical,
	}
}

// EngineConfig maps the environment onto engine limits.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Name:              c.ServiceName,
		Version:           c.ServerVersion,
		RequestTimeout:    c.RequestTimeout,
		MaxActiveRequests: c.MaxConcurrentRequests,
		MaxActiveBatches:  c.MaxConcurrentBatches,
		MaxBatchSize:      c.MaxBatchSize,
		RateLimitWindow:   c.RateLimitWindow,
		RateLimits:        c.RateLimits(),
		CacheTTL:          c.CacheTTL,
		CacheMaxEntries:   c.CacheMaxEntries,
	}
}

// ValidateForServe checks required config when running the server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("%s - RATE_LIMIT_WINDOW must be positive", logPrefix)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%s - CACHE_TTL must not be negative", logPrefix)
	}
	positive := []struct {
		name  string
		value int
	}{
		{"MAX_CONCURRENT_REQUESTS", c.MaxConcurrentRequests},
		{"MAX_CONCURRENT_BATCHES", c.MaxConcurrentBatches},
		{"MAX_BATCH_SIZE", c.MaxBatchSize},
		{"RATE_LIMIT_LOW", c.RateLimitLow},
		{"RATE_LIMIT_NORMAL", c.RateLimitNormal},
		{"RATE_LIMIT_HIGH", c.RateLimitHigh},
		{"RATE_LIMIT_CRITICAL", c.RateLimitCritical},
		{"CACHE_MAX_ENTRIES", c.CacheMaxEntries},
		{"HTTP_PORT", c.HTTPPort},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s - %s must be positive", logPrefix, p.name)
		}
	}
	if c.DatabaseURL != "" && c.PerfFlushInterval <= 0 {
		return fmt.Errorf("%s - PERF_FLUSH_INTERVAL must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, ensure-db, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
