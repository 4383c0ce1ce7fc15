// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleEvent is returned by RevertMembers when a newer mutation was
// recorded for the collection after the event being reverted.
var ErrStaleEvent = errors.New("event is no longer the latest mutation")

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Rows per INSERT/DELETE statement. Keeps every statement well under the
// bound-parameter limits of both drivers.
const statementRows = 300

// Store provides all functions to interact with the database.
type Store struct {
	db       *sql.DB
	driver   string
	throttle *Throttle

	seqMu   sync.Mutex
	lastSeq int64
}

// New creates a new Store instance for a SQLite database.
func New(db *sql.DB) *Store {
	return NewWithDriver(db, DriverSQLite)
}

// NewWithDriver creates a Store that writes SQL for the given driver.
func NewWithDriver(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver, throttle: NewThrottle(0)}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Throttle returns the simulated storage throttle applied to row writes.
func (s *Store) Throttle() *Throttle {
	return s.throttle
}

// rebind rewrites '?' placeholders into '$n' form for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// nextSeq hands out strictly increasing event sequence numbers.
func (s *Store) nextSeq(now time.Time) int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := now.UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
