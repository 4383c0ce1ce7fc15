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

func TestEventLog(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	_, err := s.LatestMutationEvent(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	add := &models.Event{
		JobID:        "j1",
		Type:         models.EventBulkAdd,
		CollectionID: "c1",
		Description:  "Added 2 companies",
		Metadata:     models.EventMetadata{Strategy: models.StrategyChunked, AddedIDs: []int64{4, 5}, Done: 2, Total: 2},
	}
	require.NoError(t, s.AppendEvent(ctx, add))
	assert.NotEmpty(t, add.ID)

	// Non-mutation events never shadow the latest mutation.
	require.NoError(t, s.AppendEvent(ctx, &models.Event{Type: models.EventCancel, CollectionID: "c1", Description: "Cancelled"}))
	require.NoError(t, s.AppendEvent(ctx, &models.Event{Type: models.EventBulkAdd, CollectionID: "other", Description: "Elsewhere"}))

	latest, err := s.LatestMutationEvent(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, add.ID, latest.ID)
	assert.Equal(t, []int64{4, 5}, latest.Metadata.AddedIDs)
	assert.Equal(t, models.StrategyChunked, latest.Metadata.Strategy)

	events, total, err := s.ListEvents(ctx, models.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, events, 2)
	assert.Equal(t, "other", events[0].CollectionID)

	events, total, err = s.ListEvents(ctx, models.EventFilter{JobID: "j1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, add.ID, events[0].ID)

	_, total, err = s.ListEvents(ctx, models.EventFilter{Type: models.EventCancel})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRevertMembers(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	c, ids := testutil.SeedCollection(t, s, "Liked", 5)
	add := &models.Event{Type: models.EventBulkAdd, CollectionID: c, Description: "Added 3 companies", Metadata: models.EventMetadata{AddedIDs: ids[2:]}}
	require.NoError(t, s.AppendEvent(ctx, add))

	undo := &models.Event{
		Type:         models.EventUndo,
		CollectionID: c,
		Description:  "Undid bulk add",
		Metadata:     models.EventMetadata{UndoneEventID: add.ID},
	}
	removed, err := s.RevertMembers(ctx, c, ids[2:], undo)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	left, err := s.MemberIDs(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], left)

	latest, err := s.LatestMutationEvent(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, models.EventUndo, latest.Type)
	assert.Equal(t, int64(3), latest.Metadata.Removed)
	assert.Equal(t, add.ID, latest.Metadata.UndoneEventID)

	// The bulk add is no longer the latest mutation.
	_, err = s.RevertMembers(ctx, c, ids[2:], &models.Event{Type: models.EventUndo, CollectionID: c, Metadata: models.EventMetadata{UndoneEventID: add.ID}})
	assert.ErrorIs(t, err, store.ErrStaleEvent)
}

func TestRevertMembersRejectsStaleEvent(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	c, ids := testutil.SeedCollection(t, s, "Liked", 4)

	older := &models.Event{Type: models.EventBulkAdd, CollectionID: c, Description: "Added 2", Metadata: models.EventMetadata{AddedIDs: ids[:2]}}
	require.NoError(t, s.AppendEvent(ctx, older))
	newer := &models.Event{Type: models.EventBulkAdd, CollectionID: c, Description: "Added 2", Metadata: models.EventMetadata{AddedIDs: ids[2:]}}
	require.NoError(t, s.AppendEvent(ctx, newer))

	undo := &models.Event{Type: models.EventUndo, CollectionID: c, Metadata: models.EventMetadata{UndoneEventID: older.ID}}
	_, err := s.RevertMembers(ctx, c, ids[:2], undo)
	require.ErrorIs(t, err, store.ErrStaleEvent)

	n, err := s.CountMembers(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	latest, err := s.LatestMutationEvent(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}

func TestEventStats(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)
	for _, ev := range []*models.Event{
		{Type: models.EventBulkAdd, CollectionID: "c1", Description: "a", CreatedAt: now},
		{Type: models.EventBulkAdd, CollectionID: "c1", Description: "b", CreatedAt: now},
		{Type: models.EventCancel, CollectionID: "c1", Description: "c", CreatedAt: now},
		{Type: models.EventBulkAdd, CollectionID: "c1", Description: "d", CreatedAt: yesterday},
		{Type: models.EventError, CollectionID: "c1", Description: "too old", CreatedAt: now.Add(-10 * 24 * time.Hour)},
	} {
		require.NoError(t, s.AppendEvent(ctx, ev))
	}

	stats, err := s.EventStats(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	today, prev := now.Format("2006-01-02"), yesterday.Format("2006-01-02")
	assert.Equal(t, []models.EventStat{
		{Type: models.EventBulkAdd, Count: 2, Date: today},
		{Type: models.EventCancel, Count: 1, Date: today},
		{Type: models.EventBulkAdd, Count: 1, Date: prev},
	}, stats)
}

func TestThroughputStats(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.RecordJobMetric(ctx, models.JobMetric{Operation: models.StrategyChunked, RecordCount: 100, ChunkSize: 50, ThroughputPerSec: 10}))
	require.NoError(t, s.RecordJobMetric(ctx, models.JobMetric{Operation: models.StrategyChunked, RecordCount: 300, ChunkSize: 50, ThroughputPerSec: 30}))
	require.NoError(t, s.RecordJobMetric(ctx, models.JobMetric{Operation: models.StrategySetBased, RecordCount: 1000, ChunkSize: 1000, ThroughputPerSec: 5000}))

	stats, err := s.ThroughputStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, models.StrategyChunked, stats[0].Operation)
	assert.Equal(t, 2, stats[0].Runs)
	assert.InDelta(t, 20.0, stats[0].AvgThroughput, 0.001)
	assert.Equal(t, int64(400), stats[0].TotalRecords)
}
