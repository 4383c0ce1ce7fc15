package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"

	// Register the database/sql drivers for both supported backends.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vrsandeep/collections-go/internal/store"
)

// InitDB opens a connection for the given driver and ensures it is alive.
// For sqlite, dsn is a file path (or ":memory:"); for postgres it is a
// connection URL understood by pgx.
func InitDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case store.DriverSQLite, "sqlite", "":
		return openSQLite(dsn)
	case store.DriverPostgres, "pgx":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err = db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer. One connection also keeps an in-memory
	// database alive across queries.
	db.SetMaxOpenConns(1)

	// Enable foreign key support in SQLite
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign key support: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NormalizeDriver maps configured driver names onto the store's dialects.
func NormalizeDriver(driver string) string {
	switch driver {
	case store.DriverPostgres, "pgx":
		return store.DriverPostgres
	default:
		return store.DriverSQLite
	}
}

// RunMigrations applies the embedded migrations for driver. migrationsFS must
// contain one directory per dialect: "sqlite" and "postgres".
func RunMigrations(conn *sql.DB, driver string, migrationsFS fs.FS) error {
	m, err := newMigrate(conn, driver, migrationsFS)
	if err != nil {
		return err
	}

	log.Println("Applying database migrations from embedded files...")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("an error occurred while applying migrations: %w", err)
	}

	log.Println("Migrations applied successfully.")
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(conn *sql.DB, driver string, migrationsFS fs.FS) (uint, bool, error) {
	m, err := newMigrate(conn, driver, migrationsFS)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(conn *sql.DB, driver string, migrationsFS fs.FS) (*migrate.Migrate, error) {
	var (
		dir      string
		instance database.Driver
		err      error
	)
	switch NormalizeDriver(driver) {
	case store.DriverPostgres:
		dir = "postgres"
		instance, err = pgxmigrate.WithInstance(conn, &pgxmigrate.Config{})
	default:
		dir = "sqlite"
		instance, err = sqlite3.WithInstance(conn, &sqlite3.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("could not create %s migration driver: %w", dir, err)
	}

	source, err := httpfs.New(http.FS(migrationsFS), dir)
	if err != nil {
		return nil, fmt.Errorf("could not create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", source, dir, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
