package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/collections-go/internal/models"
)

func TestPlanFor(t *testing.T) {
	tuning := Tuning{BatchSize: 500, BatchDelay: time.Millisecond}

	plan, err := planFor("dest", models.BulkAddRequest{CompanyIDs: []int64{3, 1, 3, 2, 1}}, tuning)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyChunked, plan.Kind)
	assert.Equal(t, []int64{3, 1, 2}, plan.IDs)
	assert.Equal(t, 500, plan.BatchSize)

	plan, err = planFor("dest", models.BulkAddRequest{SelectAll: true, SourceCollectionID: "src"}, tuning)
	require.NoError(t, err)
	assert.Equal(t, models.StrategySetBased, plan.Kind)
	assert.Equal(t, "src", plan.SourceCollectionID)
	assert.Empty(t, plan.IDs)
}

func TestBatches(t *testing.T) {
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, batches([]int64{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int64{{1, 2}}, batches([]int64{1, 2}, 1000))
	assert.Empty(t, batches(nil, 2))
}

func TestProjections(t *testing.T) {
	tuning := Tuning{BatchSize: 1000, BatchDelay: 100 * time.Millisecond, PerRow: 100 * time.Millisecond}

	assert.Equal(t, time.Duration(0), tuning.projectChunked(0))
	assert.Equal(t, 300*time.Millisecond, tuning.projectChunked(3))
	// 2500 rows: 2500 per-row charges plus two inter-batch delays.
	assert.Equal(t, 250*time.Second+200*time.Millisecond, tuning.projectChunked(2500))

	assert.Equal(t, time.Duration(0), tuning.projectSetBased(0))
	assert.Equal(t, 100*time.Millisecond+200*time.Millisecond, tuning.projectSetBased(10000))
	assert.Less(t, tuning.projectSetBased(10000), tuning.projectChunked(10000))
}

func TestFormatEstimate(t *testing.T) {
	assert.Equal(t, "0.3 seconds", FormatEstimate(300*time.Millisecond))
	assert.Equal(t, "59.0 seconds", FormatEstimate(59*time.Second))
	assert.Equal(t, "1.0 minutes", FormatEstimate(time.Minute))
	assert.Equal(t, "16.7 minutes", FormatEstimate(1000*time.Second))
}

func TestFingerprintIsStable(t *testing.T) {
	req := models.BulkAddRequest{CompanyIDs: []int64{1, 2}}
	assert.Equal(t, Fingerprint("c", req), Fingerprint("c", req))
	assert.NotEqual(t, Fingerprint("c", req), Fingerprint("d", req))
	assert.NotEqual(t, Fingerprint("c", req), Fingerprint("c", models.BulkAddRequest{CompanyIDs: []int64{2, 1}}))
	assert.Len(t, Fingerprint("c", req), 64)
}

func TestTuningNormalized(t *testing.T) {
	n := Tuning{BatchSize: -1, BatchDelay: -time.Second, PerRow: -time.Second}.normalized()
	assert.Equal(t, 1000, n.BatchSize)
	assert.Zero(t, n.BatchDelay)
	assert.Zero(t, n.PerRow)
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.len())

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	unlockB()
	assert.Eventually(t, func() bool { return k.len() == 0 }, time.Second, time.Millisecond)
}
