package testutil

import (
	"database/sql"
	"strconv"
	"testing"

	"github.com/vrsandeep/collections-go/internal/db"
	"github.com/vrsandeep/collections-go/internal/store"
	"github.com/vrsandeep/collections-go/migrations"
)

// SetupTestDB creates an in-memory SQLite database and applies all migrations.
// It returns the database connection, ready for use in tests.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.InitDB(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	if err := db.RunMigrations(conn, store.DriverSQLite, migrations.FS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return conn
}

// SeedCollection creates a collection holding n fresh companies and returns
// it along with the company ids.
func SeedCollection(t *testing.T, s *store.Store, name string, n int) (string, []int64) {
	t.Helper()
	ctx := t.Context()

	c, err := s.CreateCollection(ctx, name)
	if err != nil {
		t.Fatalf("Failed to create collection %q: %v", name, err)
	}
	ids := SeedCompanies(t, s, n)
	if len(ids) > 0 {
		if _, err := s.UpsertMembers(ctx, c.ID, ids); err != nil {
			t.Fatalf("Failed to add members to %q: %v", name, err)
		}
	}
	return c.ID, ids
}

// SeedCompanies inserts n companies named "Company N".
func SeedCompanies(t *testing.T, s *store.Store, n int) []int64 {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = "Company " + strconv.Itoa(i+1)
	}
	ids, err := s.CreateCompanies(t.Context(), names)
	if err != nil {
		t.Fatalf("Failed to create companies: %v", err)
	}
	return ids
}
