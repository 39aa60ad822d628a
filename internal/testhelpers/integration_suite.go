package testhelpers

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/unikmhz/npui-sub001/pkg/config"
	"github.com/unikmhz/npui-sub001/pkg/logger"
)

// IntegrationSuite wires a MockHeadend, a logger and a configuration that
// points every component at test-local resources
type IntegrationSuite struct {
	T       *testing.T
	Config  *config.Config
	Logger  *logger.Logger
	Ctx     context.Context
	Cancel  context.CancelFunc
	Headend *MockHeadend
}

// NewIntegrationSuite starts a MockHeadend for user/password and builds a
// matching configuration with a sqlite database under t.TempDir()
func NewIntegrationSuite(t *testing.T, user, password string) *IntegrationSuite {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	log := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
	})

	headend := NewMockHeadend(user, password)
	if err := headend.Start(); err != nil {
		cancel()
		t.Fatalf("Failed to start mock head-end: %v", err)
	}

	cfg := CreateDefaultConfig()
	host, port, err := net.SplitHostPort(headend.Addr())
	if err != nil {
		cancel()
		t.Fatalf("Bad mock head-end address: %v", err)
	}
	cfg.Headend.Host = host
	cfg.Headend.Port, _ = strconv.Atoi(port)
	cfg.Headend.Username = user
	cfg.Headend.Password = password
	cfg.Database.Path = filepath.Join(t.TempDir(), "billing.db")

	return &IntegrationSuite{
		T:       t,
		Config:  cfg,
		Logger:  log,
		Ctx:     ctx,
		Cancel:  cancel,
		Headend: headend,
	}
}

// GetFreePort gets a free port for testing
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// Cleanup stops the head-end and cancels the suite context
func (s *IntegrationSuite) Cleanup() {
	if s.Headend != nil {
		_ = s.Headend.Close()
	}
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// CreateDefaultConfig creates a test configuration with the daemon's
// defaults and no network listeners
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Headend: config.HeadendConfig{
			Host:           "127.0.0.1",
			Port:           4000,
			ConnectTimeout: 2 * time.Second,
			CheckReplies:   true,
		},
		Sync: config.SyncConfig{
			Enabled:  true,
			Interval: time.Hour,
			Source:   "default",
			LockKey:  "ca-sync:test",
			LockTTL:  time.Minute,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   "billing.db",
		},
		Web: config.WebConfig{
			Enabled: false,
			Host:    "127.0.0.1",
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}
