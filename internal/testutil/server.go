// A shared test server setup utility, which simplifies all API tests.

package testutil

import (
	"testing"
	"time"

	"github.com/vrsandeep/collections-go/internal/api"
	"github.com/vrsandeep/collections-go/internal/config"
	"github.com/vrsandeep/collections-go/internal/core"
)

// TestConfig is a configuration tuned for tests: no storage throttle and
// small, undelayed batches.
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Jobs.BatchSize = 2
	cfg.Jobs.IdempotencyTTL = time.Hour
	cfg.Jobs.Retention = time.Hour
	cfg.Stream.Keepalive = 50 * time.Millisecond
	return cfg
}

// SetupTestApp builds a core.App around an in-memory database.
func SetupTestApp(t *testing.T, cfg *config.Config) *core.App {
	t.Helper()
	if cfg == nil {
		cfg = TestConfig()
	}
	db := SetupTestDB(t)

	app, err := core.Build(cfg, db)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	app.Version = "test"
	// Let running jobs finish before the database is closed.
	t.Cleanup(app.Engine().Wait)
	return app
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t, nil)
	return api.NewServer(app), app
}
