package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vrsandeep/collections-go/internal/models"
)

// AppendEvent adds an event to the append-only event log. ID and CreatedAt
// are filled in when empty.
func (s *Store) AppendEvent(ctx context.Context, ev *models.Event) error {
	return s.appendEvent(ctx, s.db, ev)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) appendEvent(ctx context.Context, ex execer, ev *models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}
	query := `INSERT INTO events (id, job_id, type, collection_id, description, metadata, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = ex.ExecContext(ctx, s.rebind(query), ev.ID, nullString(ev.JobID), string(ev.Type), ev.CollectionID,
		ev.Description, string(meta), ev.CreatedAt, s.nextSeq(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", ev.Type, err)
	}
	return nil
}

const latestMutationQuery = `SELECT id, job_id, type, collection_id, description, metadata, created_at
	FROM events
	WHERE collection_id = ? AND type IN (?, ?)
	ORDER BY seq DESC
	LIMIT 1`

// LatestMutationEvent returns the most recent bulk_add or undo event recorded
// for a collection.
func (s *Store) LatestMutationEvent(ctx context.Context, collectionID string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(latestMutationQuery), collectionID, string(models.EventBulkAdd), string(models.EventUndo))
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mutation event for collection %s: %w", collectionID, ErrNotFound)
	}
	return ev, err
}

// RevertMembers removes the given membership rows and records the undo event
// in the same transaction. undo.Metadata.UndoneEventID must still be the
// collection's latest mutation when the transaction runs, otherwise nothing
// is changed and ErrStaleEvent is returned.
func (s *Store) RevertMembers(ctx context.Context, collectionID string, ids []int64, undo *models.Event) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	latest, err := scanEvent(tx.QueryRowContext(ctx, s.rebind(latestMutationQuery), collectionID, string(models.EventBulkAdd), string(models.EventUndo)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check latest mutation: %w", err)
	}
	if latest == nil || latest.ID != undo.Metadata.UndoneEventID {
		return 0, fmt.Errorf("undo of %s on collection %s: %w", undo.Metadata.UndoneEventID, collectionID, ErrStaleEvent)
	}

	var removed int64
	for _, chunk := range chunkIDs(ids, statementRows) {
		query := "DELETE FROM collection_members WHERE collection_id = ? AND company_id IN (" + placeholders(len(chunk)) + ")"
		args := append([]any{collectionID}, int64Args(chunk)...)
		res, err := tx.ExecContext(ctx, s.rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to remove members: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	undo.Metadata.Removed = removed
	if err := s.appendEvent(ctx, tx, undo); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit undo: %w", err)
	}
	return removed, nil
}

// ListEvents returns events newest first, optionally filtered, and the total
// number of events matching the filter.
func (s *Store) ListEvents(ctx context.Context, f models.EventFilter) ([]*models.Event, int, error) {
	where := " WHERE 1 = 1"
	var args []any
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.JobID != "" {
		where += " AND job_id = ?"
		args = append(args, f.JobID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM events"+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, job_id, type, collection_id, description, metadata, created_at FROM events" +
		where + " ORDER BY seq DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, s.rebind(query), append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// EventStats counts events created after since, grouped by type and UTC
// day, newest day first.
func (s *Store) EventStats(ctx context.Context, since time.Time) ([]models.EventStat, error) {
	day := "date(created_at)"
	if s.driver == DriverPostgres {
		day = "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	query := `SELECT type, COUNT(*) AS n, ` + day + ` AS day
		FROM events
		WHERE created_at > ?
		GROUP BY type, ` + day + `
		ORDER BY day DESC, n DESC, type ASC`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}
	defer rows.Close()

	stats := []models.EventStat{}
	for rows.Next() {
		var (
			st     models.EventStat
			evType string
		)
		if err := rows.Scan(&evType, &st.Count, &st.Date); err != nil {
			return nil, err
		}
		st.Type = models.EventType(evType)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		ev     models.Event
		evType string
		jobID  sql.NullString
		meta   sql.NullString
	)
	if err := row.Scan(&ev.ID, &jobID, &evType, &ev.CollectionID, &ev.Description, &meta, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.JobID = jobID.String
	ev.Type = models.EventType(evType)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of event %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}
