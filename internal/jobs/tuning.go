package jobs

import (
	"fmt"
	"time"
)

// Rows per second a single set-based statement is modeled to move once the
// statement has been dispatched.
const setBasedRowsPerSecond = 50000

// Tuning holds the knobs that shape how fast jobs run. It is snapshotted
// into each job's plan at submit time.
type Tuning struct {
	BatchSize  int
	BatchDelay time.Duration
	// PerRow mirrors the storage throttle so projections match what the
	// strategies actually pay.
	PerRow time.Duration
}

func DefaultTuning() Tuning {
	return Tuning{BatchSize: 1000, BatchDelay: 100 * time.Millisecond, PerRow: 100 * time.Millisecond}
}

func (t Tuning) normalized() Tuning {
	if t.BatchSize <= 0 {
		t.BatchSize = DefaultTuning().BatchSize
	}
	if t.BatchDelay < 0 {
		t.BatchDelay = 0
	}
	if t.PerRow < 0 {
		t.PerRow = 0
	}
	return t
}

// projectChunked is the time to upsert rows explicit ids in batches.
func (t Tuning) projectChunked(rows int) time.Duration {
	if rows <= 0 {
		return 0
	}
	batches := (rows + t.BatchSize - 1) / t.BatchSize
	return time.Duration(rows)*t.PerRow + time.Duration(batches-1)*t.BatchDelay
}

// projectSetBased is the time for one INSERT ... SELECT over rows rows.
func (t Tuning) projectSetBased(rows int) time.Duration {
	if rows <= 0 {
		return 0
	}
	return t.PerRow + time.Duration(rows)*time.Second/setBasedRowsPerSecond
}

// FormatEstimate renders d in seconds below one minute and in minutes above.
func FormatEstimate(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1f seconds", d.Seconds())
	}
	return fmt.Sprintf("%.1f minutes", d.Minutes())
}

func throughput(rows int, d time.Duration) float64 {
	if d <= 0 {
		return float64(rows)
	}
	return float64(rows) / d.Seconds()
}
