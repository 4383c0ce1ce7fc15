package jobs

import (
	"context"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

// MembershipStore is the subset of the store the strategies and the
// estimator write and read membership rows through.
type MembershipStore interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	MissingCompanies(ctx context.Context, ids []int64) ([]int64, error)
	UpsertMembers(ctx context.Context, collectionID string, ids []int64) ([]int64, error)
	CopyMembers(ctx context.Context, sourceID, targetID string) ([]int64, error)
	CountMembers(ctx context.Context, collectionID string) (int, error)
	CountExistingMembers(ctx context.Context, collectionID string, ids []int64) (int, error)
	CountOverlap(ctx context.Context, sourceID, targetID string) (int, error)
}

// EventLog is the append-only record of bulk mutations.
type EventLog interface {
	AppendEvent(ctx context.Context, ev *models.Event) error
	LatestMutationEvent(ctx context.Context, collectionID string) (*models.Event, error)
	RevertMembers(ctx context.Context, collectionID string, ids []int64, undo *models.Event) (int64, error)
}

// JobStore persists job rows and throughput samples.
type JobStore interface {
	SaveJob(ctx context.Context, job *models.Job) error
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*models.Job, error)
	ListJobsWithKeysSince(ctx context.Context, since time.Time) ([]*models.Job, error)
	FailInterruptedJobs(ctx context.Context, message string) (int64, error)
	RecordJobMetric(ctx context.Context, m models.JobMetric) error
}

// Store is everything the engine needs. *store.Store implements it.
type Store interface {
	MembershipStore
	EventLog
	JobStore
}

// Notifier is told about every job that reaches a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, job models.Job)
}
