package core

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vrsandeep/collections-go/internal/config"
	"github.com/vrsandeep/collections-go/internal/db"
	"github.com/vrsandeep/collections-go/internal/jobs"
	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/notify"
	"github.com/vrsandeep/collections-go/internal/store"
	"github.com/vrsandeep/collections-go/internal/websocket"
	"github.com/vrsandeep/collections-go/migrations"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	mu     sync.RWMutex
	config *config.Config

	db        *sql.DB
	store     *store.Store
	engine    *jobs.Engine
	wsHub     *websocket.Hub
	metrics   *prometheus.Registry
	scheduler *gocron.Scheduler

	Version string
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, running migrations,
// recovering the job registry and starting background maintenance.
func New() (*App, error) {
	// Load configuration from config.yml
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	app, err := Build(cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}

	if err := app.engine.Registry().Load(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load job registry: %w", err)
	}
	app.scheduler = jobs.StartJanitor(app.engine, cfg.Jobs.JanitorInterval)
	config.Watch(app.ApplyConfig)

	log.Println("Core application setup complete.")
	return app, nil
}

// Open connects to the configured database and applies migrations.
func Open(cfg *config.Config) (*sql.DB, error) {
	driver := db.NormalizeDriver(cfg.Database.Driver)
	database, err := db.InitDB(driver, cfg.DataSource())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, driver, migrations.FS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return database, nil
}

// Build wires the store, job engine, websocket hub and metrics around an
// already migrated database.
func Build(cfg *config.Config, database *sql.DB) (*App, error) {
	st := store.NewWithDriver(database, db.NormalizeDriver(cfg.Database.Driver))
	st.Throttle().Set(cfg.Throttle.PerRow)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(database, "collections"),
	)

	hub := websocket.NewHub()
	go hub.Run()

	publisher := jobs.NewPublisher(cfg.Stream.Keepalive)
	publisher.Observe(func(u models.ProgressUpdate) { hub.BroadcastJSON(u) })

	opts := jobs.Options{
		Tuning:  tuningFor(cfg),
		Metrics: jobs.NewMetrics(reg),
	}
	if cfg.Notify.WebhookURL != "" {
		opts.Notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}
	registry := jobs.NewRegistry(st, cfg.Jobs.IdempotencyTTL, cfg.Jobs.Retention)
	engine := jobs.NewEngine(st, registry, publisher, opts)

	return &App{
		config:  cfg,
		db:      database,
		store:   st,
		engine:  engine,
		wsHub:   hub,
		metrics: reg,
		Version: "dev",
	}, nil
}

func tuningFor(cfg *config.Config) jobs.Tuning {
	return jobs.Tuning{
		BatchSize:  cfg.Jobs.BatchSize,
		BatchDelay: cfg.Jobs.BatchDelay,
		PerRow:     cfg.Throttle.PerRow,
	}
}

// ApplyConfig swaps in a reloaded configuration. Only the job tuning and
// the storage throttle take effect without a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.config = cfg
	a.mu.Unlock()

	a.store.Throttle().Set(cfg.Throttle.PerRow)
	a.engine.SetTuning(tuningFor(cfg))
	log.Printf("Applied job tuning: batch_size=%d batch_delay=%s per_row=%s",
		cfg.Jobs.BatchSize, cfg.Jobs.BatchDelay, cfg.Throttle.PerRow)
}

func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

func (a *App) DB() *sql.DB {
	return a.db
}

func (a *App) Store() *store.Store {
	return a.store
}

func (a *App) Engine() *jobs.Engine {
	return a.engine
}

func (a *App) WsHub() *websocket.Hub {
	return a.wsHub
}

// Metrics is the Prometheus registry served on /metrics.
func (a *App) Metrics() *prometheus.Registry {
	return a.metrics
}

// Close stops background work, gives running jobs a moment to reach a
// batch boundary, and closes the database.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.engine.Shutdown(ctx); err != nil {
			log.Printf("Jobs still running at shutdown: %v", err)
		}
		cancel()
	}
	if a.db != nil {
		a.db.Close()
	}
}
