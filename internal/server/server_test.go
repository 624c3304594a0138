package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/morezero/mcp-engine/internal/config"
)

const serverTestPrefix = "server:server_test"

func standaloneConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("MCP_METHODS_FILE", "")
	os.Unsetenv("MCP_METHODS_FILE")
	return &config.Config{
		ServiceName:        "mcp-engine-test",
		ServerVersion:      "2.1.0",
		RequestTimeout:     5 * time.Second,
		RateLimitWindow:    time.Minute,
		HealthCheckTimeout: time.Second,
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("%s - listen: %v", serverTestPrefix, err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNew_WithoutCollaborators(t *testing.T) {
	s, err := New(context.Background(), standaloneConfig(t))
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	defer s.Close()

	if s.Engine().Registry().Len() != 7 {
		t.Errorf("%s - methods = %v", serverTestPrefix, s.Engine().Registry().Names())
	}
	if s.Engine().Version() != "2.1.0" {
		t.Errorf("%s - version = %q", serverTestPrefix, s.Engine().Version())
	}
	if names := s.Engine().CheckNames(); len(names) != 0 {
		t.Errorf("%s - checks = %v, want none without NATS or DB", serverTestPrefix, names)
	}
}

func TestNew_ManifestDisablesMethod(t *testing.T) {
	cfg := standaloneConfig(t)
	path := filepath.Join(t.TempDir(), "methods.yaml")
	manifest := "name: test\nversion: 1.0.0\nmethods:\n  cache.clear:\n    enabled: false\n"
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("%s - write manifest: %v", serverTestPrefix, err)
	}
	cfg.MethodsFile = path

	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	defer s.Close()
	if s.Engine().Registry().HasMethod("cache.clear") {
		t.Errorf("%s - cache.clear should be disabled", serverTestPrefix)
	}
}

func TestNew_UnparsableManifestFails(t *testing.T) {
	cfg := standaloneConfig(t)
	path := filepath.Join(t.TempDir(), "methods.yaml")
	if err := os.WriteFile(path, []byte("methods: [unclosed"), 0644); err != nil {
		t.Fatalf("%s - write manifest: %v", serverTestPrefix, err)
	}
	cfg.MethodsFile = path

	s, err := New(context.Background(), cfg)
	if err == nil {
		s.Close()
		t.Fatalf("%s - expected New to fail on an unparsable manifest", serverTestPrefix)
	}
}

func TestNew_NATSCheckRegistered(t *testing.T) {
	nc := startNATS(t)
	cfg := standaloneConfig(t)
	cfg.COMMSURL = nc.ConnectedUrl()

	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	defer s.Close()

	health := s.Engine().Health(context.Background())
	if !health.Checks["comms"] || !health.Healthy() {
		t.Errorf("%s - health = %+v", serverTestPrefix, health)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := standaloneConfig(t)
	cfg.HTTPPort = freePort(t)
	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(cfg.HTTPPort) + "/ready"
	deadline := time.Now().Add(5 * time.Second)
	var resp *http.Response
	for time.Now().Before(deadline) {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("%s - server never answered: %v", serverTestPrefix, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("%s - /ready status = %d", serverTestPrefix, resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("%s - Serve returned %v", serverTestPrefix, err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("%s - Serve did not stop", serverTestPrefix)
	}
}

func TestSetupLogging_AcceptsLevels(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error", "bogus"} {
		SetupLogging(level)
	}
	SetupLogging("info")
}
