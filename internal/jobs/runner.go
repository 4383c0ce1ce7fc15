package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

// outcome is what a strategy reports back to the engine.
type outcome struct {
	added     []int64
	err       error
	cancelled bool
}

// run is the single writer of a job from the moment it is queued.
func (e *Engine) run(ent *entry, plan Plan) {
	defer e.wg.Done()
	// Jobs outlive the request that submitted them.
	ctx := context.Background()

	var (
		res     outcome
		started time.Time
	)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Job '%s' panicked: %v", ent.snapshot().ID, r)
			res.err = fmt.Errorf("job panicked: %v", r)
		}
		e.finish(ctx, ent, plan, res, started)
	}()

	if ent.cancel.Load() {
		res.cancelled = true
		return
	}

	started = e.now()
	job, _ := ent.update(started, func(j *models.Job) { j.State = models.JobRunning })
	e.persist(ctx, job)
	e.publisher.Publish(job.Snapshot())
	e.metrics.jobStarted()
	log.Printf("Starting job: %s", job.ID)

	switch plan.Kind {
	case models.StrategyChunked:
		res = e.runChunked(ctx, ent, plan)
	case models.StrategySetBased:
		res = e.runSetBased(ctx, ent, plan)
	default:
		res.err = fmt.Errorf("unknown strategy %q", plan.Kind)
	}
}

// runChunked upserts plan.IDs one batch at a time, checking for
// cancellation before every batch.
func (e *Engine) runChunked(ctx context.Context, ent *entry, plan Plan) outcome {
	var res outcome
	for i, batch := range batches(plan.IDs, plan.BatchSize) {
		if i > 0 && plan.BatchDelay > 0 {
			time.Sleep(plan.BatchDelay)
		}
		if ent.cancel.Load() {
			res.cancelled = true
			return res
		}

		added, err := e.store.UpsertMembers(ctx, plan.CollectionID, batch)
		res.added = append(res.added, added...)
		if err != nil {
			res.err = fmt.Errorf("batch %d: %w", i+1, err)
			return res
		}

		job, ok := ent.update(e.now(), func(j *models.Job) { j.Done += len(batch) })
		if ok {
			e.persist(ctx, job)
			e.publisher.Publish(job.Snapshot())
		}
	}
	return res
}

// runSetBased copies every member of the source collection with a single
// statement. Once dispatched it cannot be cancelled.
func (e *Engine) runSetBased(ctx context.Context, ent *entry, plan Plan) outcome {
	var res outcome
	if ent.cancel.Load() {
		res.cancelled = true
		return res
	}

	total, err := e.store.CountMembers(ctx, plan.SourceCollectionID)
	if err != nil {
		res.err = fmt.Errorf("count source members: %w", err)
		return res
	}
	job, _ := ent.update(e.now(), func(j *models.Job) { j.Total = total })
	e.persist(ctx, job)

	added, err := e.store.CopyMembers(ctx, plan.SourceCollectionID, plan.CollectionID)
	res.added = added
	if err != nil {
		res.err = err
		return res
	}
	ent.update(e.now(), func(j *models.Job) { j.Done = j.Total })
	return res
}

// finish appends the job's event and only then moves it to its terminal
// state, so any reader observing the terminal state can find the event.
func (e *Engine) finish(ctx context.Context, ent *entry, plan Plan, res outcome, started time.Time) {
	current := ent.snapshot()
	now := e.now()

	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = now.Sub(started)
	}
	rate := throughput(current.Done, elapsed)

	state := models.JobCompleted
	errMsg := ""
	switch {
	case res.err != nil:
		state = models.JobFailed
		errMsg = res.err.Error()
	case res.cancelled:
		state = models.JobCancelled
	}

	ev := &models.Event{
		JobID:        current.ID,
		CollectionID: plan.CollectionID,
		Metadata: models.EventMetadata{
			Strategy:           plan.Kind,
			SourceCollectionID: plan.SourceCollectionID,
			AddedIDs:           res.added,
			Done:               current.Done,
			Total:              current.Total,
			DurationMs:         elapsed.Milliseconds(),
			ThroughputPerSec:   rate,
		},
	}
	switch state {
	case models.JobCompleted:
		if len(res.added) > 0 {
			ev.Type = models.EventBulkAdd
			ev.Description = fmt.Sprintf("Added %d companies (%d requested)", len(res.added), current.Total)
		} else {
			ev.Type = models.EventCompleted
			ev.Description = fmt.Sprintf("All %d companies were already members", current.Total)
		}
	case models.JobCancelled:
		ev.Type = models.EventCancel
		ev.Description = fmt.Sprintf("Cancelled after %d of %d companies", current.Done, current.Total)
	default:
		ev.Type = models.EventError
		ev.Description = "Job failed: " + errMsg
	}

	if err := e.store.AppendEvent(ctx, ev); err != nil {
		log.Printf("Failed to record event for job %s: %v", current.ID, err)
		state = models.JobFailed
		errMsg = fmt.Sprintf("record event: %v", err)
	}

	if state == models.JobCompleted {
		metric := models.JobMetric{
			Operation:        plan.Kind,
			RecordCount:      current.Done,
			Duration:         elapsed,
			ChunkSize:        plan.BatchSize,
			ThroughputPerSec: rate,
		}
		if plan.Kind == models.StrategySetBased {
			metric.ChunkSize = current.Total
		}
		if err := e.store.RecordJobMetric(ctx, metric); err != nil {
			log.Printf("Failed to record throughput for job %s: %v", current.ID, err)
		}
	}

	job, ok := ent.update(e.now(), func(j *models.Job) {
		j.State = state
		j.ErrorMessage = errMsg
	})
	if !ok {
		return
	}
	e.persist(ctx, job)
	e.publisher.Publish(job.Snapshot())
	e.metrics.jobFinished(job, len(res.added), elapsed.Seconds(), rate, !started.IsZero())
	if e.notifier != nil {
		e.notifier.JobFinished(ctx, job)
	}

	if errMsg != "" {
		log.Printf("Finished job %s: %s (%d/%d): %s", job.ID, job.State, job.Done, job.Total, errMsg)
	} else {
		log.Printf("Finished job %s: %s (%d/%d, %d new)", job.ID, job.State, job.Done, job.Total, len(res.added))
	}
}

// persist writes the job row. A failure is logged; the in-memory table stays
// authoritative for the running process.
func (e *Engine) persist(ctx context.Context, job models.Job) {
	if err := e.store.UpdateJob(ctx, &job); err != nil {
		log.Printf("Failed to persist job %s: %v", job.ID, err)
	}
}
