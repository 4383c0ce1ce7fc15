package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

const jobColumns = `id, name, state, strategy, collection_id, done, total, params,
	idempotency_key, fingerprint, error_message, created_at, updated_at`

// SaveJob inserts a newly created job.
func (s *Store) SaveJob(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		job.ID, job.Name, string(job.State), string(job.Strategy), job.CollectionID, job.Done, job.Total,
		nullString(job.Params), nullString(job.IdempotencyKey), nullString(job.Fingerprint),
		nullString(job.ErrorMessage), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob persists the mutable fields of a job.
func (s *Store) UpdateJob(ctx context.Context, job *models.Job) error {
	query := `UPDATE jobs SET state = ?, done = ?, total = ?, error_message = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		string(job.State), job.Done, job.Total, nullString(job.ErrorMessage), job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a persisted job.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListJobsWithKeysSince returns jobs carrying an idempotency key created at or
// after since. Used to rebuild the idempotency index on startup.
func (s *Store) ListJobsWithKeysSince(ctx context.Context, since time.Time) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key IS NOT NULL AND created_at >= ? ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// FailInterruptedJobs marks every queued or running job as failed. Jobs are
// not resumed across restarts.
func (s *Store) FailInterruptedJobs(ctx context.Context, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE jobs SET state = ?, error_message = ?, updated_at = ? WHERE state IN (?, ?)`),
		string(models.JobFailed), message, time.Now().UTC(), string(models.JobQueued), string(models.JobRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to reset interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job                                    models.Job
		state, strategy                        string
		params, key, fingerprint, errorMessage sql.NullString
	)
	err := row.Scan(&job.ID, &job.Name, &state, &strategy, &job.CollectionID, &job.Done, &job.Total,
		&params, &key, &fingerprint, &errorMessage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.State = models.JobState(state)
	job.Strategy = models.StrategyKind(strategy)
	job.Params = params.String
	job.IdempotencyKey = key.String
	job.Fingerprint = fingerprint.String
	job.ErrorMessage = errorMessage.String
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
