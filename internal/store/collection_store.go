package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vrsandeep/collections-go/internal/models"
)

// CreateCollection inserts a new, empty collection.
func (s *Store) CreateCollection(ctx context.Context, name string) (*models.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	c := &models.Collection{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, s.rebind("INSERT INTO collections (id, collection_name, created_at) VALUES (?, ?, ?)"),
		c.ID, c.Name, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return c, nil
}

// GetCollection retrieves collection metadata by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, collection_name, created_at FROM collections WHERE id = ?"), id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCollectionByName is used by the CLI to address collections by name.
func (s *Store) GetCollectionByName(ctx context.Context, name string) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, collection_name, created_at FROM collections WHERE collection_name = ? ORDER BY created_at LIMIT 1"), name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollections returns metadata for every collection, oldest first.
func (s *Store) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, collection_name, created_at FROM collections ORDER BY created_at ASC, collection_name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		collections = append(collections, &c)
	}
	return collections, rows.Err()
}

// GetCollectionPage returns one page of a collection's members, ordered by
// company id, along with the total member count.
func (s *Store) GetCollectionPage(ctx context.Context, id string, offset, limit int) (*models.CollectionPage, error) {
	c, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := s.CountMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT co.id, co.company_name, co.created_at
		FROM collection_members cm
		JOIN companies co ON co.id = cm.company_id
		WHERE cm.collection_id = ?
		ORDER BY co.id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), id, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &models.CollectionPage{Collection: *c, Companies: []*models.Company{}, Total: total}
	for rows.Next() {
		var co models.Company
		if err := rows.Scan(&co.ID, &co.Name, &co.CreatedAt); err != nil {
			return nil, err
		}
		page.Companies = append(page.Companies, &co)
	}
	return page, rows.Err()
}

// CreateCompanies inserts companies in a single transaction and returns their ids.
func (s *Store) CreateCompanies(ctx context.Context, names []string) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind("INSERT INTO companies (company_name, created_at) VALUES (?, ?) RETURNING id"))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		var id int64
		if err := stmt.QueryRowContext(ctx, name, now).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to insert company %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}

// ListCompanies returns a page of companies ordered by id and the total count.
func (s *Store) ListCompanies(ctx context.Context, offset, limit int) ([]*models.Company, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies").Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT id, company_name, created_at FROM companies ORDER BY id ASC LIMIT ? OFFSET ?"), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	companies := []*models.Company{}
	for rows.Next() {
		var co models.Company
		if err := rows.Scan(&co.ID, &co.Name, &co.CreatedAt); err != nil {
			return nil, 0, err
		}
		companies = append(companies, &co)
	}
	return companies, total, rows.Err()
}
