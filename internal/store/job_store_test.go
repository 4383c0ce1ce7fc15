package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/store"
	"github.com/vrsandeep/collections-go/internal/testutil"
)

func newJob(id, key string, created time.Time) *models.Job {
	return &models.Job{
		ID:             id,
		Name:           "Add companies",
		State:          models.JobQueued,
		Strategy:       models.StrategyChunked,
		CollectionID:   "c1",
		Total:          3,
		Params:         `{"company_ids":[1,2,3]}`,
		IdempotencyKey: key,
		Fingerprint:    "abc",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestJobStore(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	job := newJob("j1", "key-1", now)
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got.State)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.Equal(t, job.Params, got.Params)
	assert.True(t, now.Equal(got.CreatedAt))

	job.State = models.JobFailed
	job.Done = 2
	job.ErrorMessage = "boom"
	job.UpdatedAt = now.Add(time.Second)
	require.NoError(t, s.UpdateJob(ctx, job))

	got, err = s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Equal(t, 2, got.Done)
	assert.Equal(t, "boom", got.ErrorMessage)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListJobs(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, s.SaveJob(ctx, newJob("old", "k-old", base.Add(-48*time.Hour))))
	require.NoError(t, s.SaveJob(ctx, newJob("a", "", base)))
	require.NoError(t, s.SaveJob(ctx, newJob("b", "k-b", base.Add(time.Minute))))

	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].ID)
	assert.Equal(t, "a", jobs[1].ID)

	keyed, err := s.ListJobsWithKeysSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, keyed, 1)
	assert.Equal(t, "b", keyed[0].ID)
}

func TestFailInterruptedJobs(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	running := newJob("running", "", now)
	running.State = models.JobRunning
	done := newJob("done", "", now)
	done.State = models.JobCompleted
	require.NoError(t, s.SaveJob(ctx, newJob("queued", "", now)))
	require.NoError(t, s.SaveJob(ctx, running))
	require.NoError(t, s.SaveJob(ctx, done))

	n, err := s.FailInterruptedJobs(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.GetJob(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Equal(t, "interrupted by restart", got.ErrorMessage)

	got, err = s.GetJob(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.State)
}
