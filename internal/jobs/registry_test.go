package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/collections-go/internal/jobs"
	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/store"
	"github.com/vrsandeep/collections-go/internal/testutil"
)

func TestRegistryLoadAfterRestart(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	interrupted := &models.Job{
		ID: "running-before-restart", Name: "Add companies to Liked", State: models.JobRunning,
		Strategy: models.StrategyChunked, CollectionID: "c1", Done: 2, Total: 10,
		IdempotencyKey: "k1", Fingerprint: "fp", CreatedAt: now.Add(-time.Minute), UpdatedAt: now,
	}
	require.NoError(t, s.SaveJob(ctx, interrupted))

	reg := jobs.NewRegistry(s, time.Hour, time.Hour)
	require.NoError(t, reg.Load(ctx))

	job, err := reg.Get(ctx, interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.State)
	assert.Equal(t, "interrupted by restart", job.ErrorMessage)

	// The key still maps to the old job, so a resubmit with another payload conflicts.
	e := jobs.NewEngine(s, reg, jobs.NewPublisher(0), jobs.Options{Tuning: fastTuning})
	t.Cleanup(e.Wait)
	dest, ids := testutil.SeedCollection(t, s, "Liked", 1)
	_, err = e.Submit(ctx, dest, models.BulkAddRequest{CompanyIDs: ids}, "k1")
	assert.ErrorIs(t, err, jobs.ErrConflict)
}

func TestRegistryPrune(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	reg := jobs.NewRegistry(s, time.Minute, time.Minute)
	e := jobs.NewEngine(s, reg, jobs.NewPublisher(0), jobs.Options{Tuning: fastTuning})
	t.Cleanup(e.Wait)

	dest, err := s.CreateCollection(ctx, "Liked")
	require.NoError(t, err)
	ids := testutil.SeedCompanies(t, s, 2)

	acc, err := e.Submit(ctx, dest.ID, models.BulkAddRequest{CompanyIDs: ids}, "key")
	require.NoError(t, err)
	waitForState(t, e, acc.Job.ID)

	keys, forgotten := e.Prune(time.Now().UTC())
	assert.Equal(t, 0, keys)
	assert.Empty(t, forgotten)

	keys, forgotten = e.Prune(time.Now().UTC().Add(2 * time.Minute))
	assert.Equal(t, 1, keys)
	assert.Equal(t, []string{acc.Job.ID}, forgotten)

	// Forgotten jobs are still served from the store.
	job, err := e.Status(ctx, acc.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.State)

	// An expired key may be reused for new work.
	again, err := e.Submit(ctx, dest.ID, models.BulkAddRequest{CompanyIDs: ids[:1]}, "key")
	require.NoError(t, err)
	assert.NotEqual(t, acc.Job.ID, again.Job.ID)
	waitForState(t, e, again.Job.ID)
}

func TestStartJanitor(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	e := newTestEngine(t, s, jobs.Options{})

	disabled := jobs.StartJanitor(e, 0)
	assert.False(t, disabled.IsRunning())

	sched := jobs.StartJanitor(e, 5)
	defer sched.Stop()
	assert.True(t, sched.IsRunning())
	assert.Len(t, sched.Jobs(), 1)
}
