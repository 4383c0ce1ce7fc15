package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertMembers inserts (collectionID, id) membership rows for every id in
// ids. Rows that already exist are skipped by the unique constraint rather
// than reported as errors. The ids that were newly inserted are returned.
// The storage throttle is charged per row.
func (s *Store) UpsertMembers(ctx context.Context, collectionID string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	added := make([]int64, 0, len(ids))
	for _, chunk := range chunkIDs(ids, statementRows) {
		query := "INSERT INTO collection_members (collection_id, company_id, created_at) VALUES "
		args := make([]any, 0, len(chunk)*3)
		for i, id := range chunk {
			if i > 0 {
				query += ", "
			}
			query += "(?, ?, ?)"
			args = append(args, collectionID, id, now)
		}
		query += " ON CONFLICT (collection_id, company_id) DO NOTHING RETURNING company_id"

		rows, err := tx.QueryContext(ctx, s.rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert members: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			added = append(added, id)
		}
		// A constraint violation aborts the statement mid-iteration and only
		// surfaces here.
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to upsert members: %w", err)
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to upsert members: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit member upsert: %w", err)
	}

	if err := s.throttle.Wait(ctx, len(ids)); err != nil {
		return added, err
	}
	return added, nil
}

// CopyMembers inserts every member of sourceID into targetID with one
// set-based statement, letting the unique constraint discard duplicates.
// It returns the ids that were newly added to targetID.
func (s *Store) CopyMembers(ctx context.Context, sourceID, targetID string) ([]int64, error) {
	query := `
		INSERT INTO collection_members (collection_id, company_id, created_at)
		SELECT ?, src.company_id, ?
		FROM collection_members src
		WHERE src.collection_id = ?
		ON CONFLICT (collection_id, company_id) DO NOTHING
		RETURNING company_id
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), targetID, time.Now().UTC(), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy members: %w", err)
	}
	added := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		added = append(added, id)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to copy members: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to copy members: %w", err)
	}

	if err := s.throttle.Wait(ctx, 1); err != nil {
		return added, err
	}
	return added, nil
}

// MissingCompanies returns the ids, in input order, that name no company.
// ids must not contain duplicates.
func (s *Store) MissingCompanies(ctx context.Context, ids []int64) ([]int64, error) {
	known := make(map[int64]struct{}, len(ids))
	for _, chunk := range chunkIDs(ids, statementRows) {
		query := "SELECT id FROM companies WHERE id IN (" + placeholders(len(chunk)) + ")"
		rows, err := s.db.QueryContext(ctx, s.rebind(query), int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up companies: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			known[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to look up companies: %w", err)
		}
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// CountMembers returns the number of membership rows of a collection.
func (s *Store) CountMembers(ctx context.Context, collectionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM collection_members WHERE collection_id = ?"), collectionID).Scan(&n)
	return n, err
}

// CountExistingMembers counts how many of ids are already members of collectionID.
// ids must not contain duplicates.
func (s *Store) CountExistingMembers(ctx context.Context, collectionID string, ids []int64) (int, error) {
	total := 0
	for _, chunk := range chunkIDs(ids, statementRows) {
		query := "SELECT COUNT(*) FROM collection_members WHERE collection_id = ? AND company_id IN (" + placeholders(len(chunk)) + ")"
		args := append([]any{collectionID}, int64Args(chunk)...)
		var n int
		if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// CountOverlap counts members of sourceID that are already members of targetID.
func (s *Store) CountOverlap(ctx context.Context, sourceID, targetID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM collection_members src
		JOIN collection_members dst
		  ON dst.company_id = src.company_id AND dst.collection_id = ?
		WHERE src.collection_id = ?
	`
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(query), targetID, sourceID).Scan(&n)
	return n, err
}

// MemberIDs returns every company id in a collection, ascending.
func (s *Store) MemberIDs(ctx context.Context, collectionID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT company_id FROM collection_members WHERE collection_id = ? ORDER BY company_id"), collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
