package store

import (
	"context"
	"sync/atomic"
	"time"
)

// Throttle simulates a storage layer that charges a fixed latency for every
// row written through the explicit-row path. Set-based statements are
// charged once per statement.
type Throttle struct {
	perRow atomic.Int64
}

func NewThrottle(perRow time.Duration) *Throttle {
	t := &Throttle{}
	t.Set(perRow)
	return t
}

func (t *Throttle) Set(perRow time.Duration) {
	if perRow < 0 {
		perRow = 0
	}
	t.perRow.Store(int64(perRow))
}

func (t *Throttle) PerRow() time.Duration {
	return time.Duration(t.perRow.Load())
}

// Wait blocks for rows*perRow or until ctx is done.
func (t *Throttle) Wait(ctx context.Context, rows int) error {
	d := t.PerRow() * time.Duration(rows)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
