package jobs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/store"
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Tuning   Tuning
	Metrics  *Metrics
	Notifier Notifier
}

// Accepted is the result of a submit.
type Accepted struct {
	Job           models.Job
	Message       string
	EstimatedTime string
	// Existing is set when an idempotency key matched an earlier submit.
	Existing bool
}

// Engine accepts bulk membership requests and runs them in the background.
type Engine struct {
	store     Store
	registry  *Registry
	publisher *Publisher
	metrics   *Metrics
	notifier  Notifier

	tuningMu sync.RWMutex
	tuning   Tuning

	undoLocks keyedMutex
	wg        sync.WaitGroup
	now       func() time.Time
}

func NewEngine(store Store, registry *Registry, publisher *Publisher, opts Options) *Engine {
	t := opts.Tuning
	if t == (Tuning{}) {
		t = DefaultTuning()
	}
	return &Engine{
		store:     store,
		registry:  registry,
		publisher: publisher,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		tuning:    t.normalized(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetTuning replaces the tuning applied to jobs submitted from now on.
func (e *Engine) SetTuning(t Tuning) {
	e.tuningMu.Lock()
	defer e.tuningMu.Unlock()
	e.tuning = t.normalized()
}

func (e *Engine) Tuning() Tuning {
	e.tuningMu.RLock()
	defer e.tuningMu.RUnlock()
	return e.tuning
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) Publisher() *Publisher {
	return e.publisher
}

// Submit validates req, picks a strategy and starts the job. It returns as
// soon as the job is queued.
func (e *Engine) Submit(ctx context.Context, collectionID string, req models.BulkAddRequest, key string) (*Accepted, error) {
	tuning := e.Tuning()
	plan, err := planFor(collectionID, req, tuning)
	if err != nil {
		return nil, err
	}
	target, err := e.collection(ctx, collectionID, "target")
	if err != nil {
		return nil, err
	}

	if err := e.checkCompanies(ctx, plan); err != nil {
		return nil, err
	}

	total := len(plan.IDs)
	if plan.Kind == models.StrategySetBased {
		if _, err := e.collection(ctx, plan.SourceCollectionID, "source"); err != nil {
			return nil, err
		}
		if total, err = e.store.CountMembers(ctx, plan.SourceCollectionID); err != nil {
			return nil, fmt.Errorf("failed to count source members: %w", err)
		}
	}

	params, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	fingerprint := Fingerprint(collectionID, req)

	if key != "" {
		unlock := e.registry.lockKey(key)
		defer unlock()
		if rec, ok := e.registry.lookupKey(key); ok {
			if rec.Fingerprint != fingerprint {
				return nil, fmt.Errorf("%w: idempotency key %q was already used with a different request", ErrConflict, key)
			}
			job, err := e.registry.Get(ctx, rec.JobID)
			if err != nil {
				return nil, err
			}
			return &Accepted{
				Job:           job,
				Message:       "Job already submitted: " + job.Name,
				EstimatedTime: FormatEstimate(e.project(plan.Kind, tuning, job.Total-job.Done)),
				Existing:      true,
			}, nil
		}
	}

	now := e.now()
	job := models.Job{
		ID:             uuid.NewString(),
		Name:           "Add companies to " + target.Name,
		State:          models.JobQueued,
		Strategy:       plan.Kind,
		CollectionID:   collectionID,
		Total:          total,
		Params:         string(params),
		IdempotencyKey: key,
		Fingerprint:    fingerprint,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ent, err := e.registry.create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	e.publisher.Publish(job.Snapshot())
	e.metrics.jobSubmitted(plan.Kind)
	log.Printf("Queued job %s (%s, %d rows): %s", job.ID, plan.Kind, total, job.Name)

	e.wg.Add(1)
	go e.run(ent, plan)

	return &Accepted{
		Job:           job,
		Message:       "Job started: " + job.Name,
		EstimatedTime: FormatEstimate(e.project(plan.Kind, tuning, total)),
	}, nil
}

// Status returns the current state of a job.
func (e *Engine) Status(ctx context.Context, id string) (models.Job, error) {
	return e.registry.Get(ctx, id)
}

// List returns the most recent jobs, newest first.
func (e *Engine) List(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.registry.List(ctx, limit)
}

// Cancel asks a job to stop at its next batch boundary. Cancelling a
// finished job does nothing.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	ent, ok := e.registry.entry(id)
	if !ok {
		// Jobs no longer in the table are terminal.
		_, err := e.registry.Get(ctx, id)
		return err
	}
	if ent.snapshot().State.IsTerminal() {
		return nil
	}
	if !ent.cancel.Swap(true) {
		log.Printf("Cancellation requested for job %s", id)
	}
	return nil
}

// Subscribe opens a progress subscription for a job.
func (e *Engine) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	job, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.publisher.Subscribe(id, job.Snapshot()), nil
}

// Undo reverses the most recent bulk add into a collection. Only one level
// is kept: once undone, the collection has nothing to undo until the next
// bulk add.
func (e *Engine) Undo(ctx context.Context, collectionID string) (*models.Event, error) {
	if _, err := e.collection(ctx, collectionID, "target"); err != nil {
		return nil, err
	}
	unlock := e.undoLocks.Lock(collectionID)
	defer unlock()

	latest, err := e.store.LatestMutationEvent(ctx, collectionID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: nothing to undo", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if latest.Type != models.EventBulkAdd {
		return nil, fmt.Errorf("%w: nothing to undo", ErrNotFound)
	}

	undo := &models.Event{
		JobID:        latest.JobID,
		Type:         models.EventUndo,
		CollectionID: collectionID,
		Description:  fmt.Sprintf("Undid bulk add of %d companies", len(latest.Metadata.AddedIDs)),
		Metadata: models.EventMetadata{
			Strategy:           latest.Metadata.Strategy,
			SourceCollectionID: latest.Metadata.SourceCollectionID,
			AddedIDs:           latest.Metadata.AddedIDs,
			UndoneEventID:      latest.ID,
		},
	}
	removed, err := e.store.RevertMembers(ctx, collectionID, latest.Metadata.AddedIDs, undo)
	if errors.Is(err, store.ErrStaleEvent) {
		return nil, fmt.Errorf("%w: collection %s changed while undoing, retry", ErrConflict, collectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to undo event %s: %w", latest.ID, err)
	}
	log.Printf("Undid event %s on collection %s: removed %d rows", latest.ID, collectionID, removed)
	return undo, nil
}

// CancelAll requests cancellation of every job that has not finished.
func (e *Engine) CancelAll() {
	for _, id := range e.registry.active() {
		if ent, ok := e.registry.entry(id); ok {
			ent.cancel.Store(true)
		}
	}
}

// Shutdown cancels every active job and waits for their goroutines to
// return or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.CancelAll()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every job goroutine has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) collection(ctx context.Context, id, role string) (*models.Collection, error) {
	c, err := e.store.GetCollection(ctx, id)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s collection %s", ErrNotFound, role, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// checkCompanies rejects explicit ids that name no company. One unknown id
// would otherwise fail the whole batch it lands in.
func (e *Engine) checkCompanies(ctx context.Context, plan Plan) error {
	if plan.Kind != models.StrategyChunked {
		return nil
	}
	missing, err := e.store.MissingCompanies(ctx, plan.IDs)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	shown := missing[:min(len(missing), 5)]
	return validationError(fmt.Sprintf("%d unknown company ids: %s", len(missing), joinIDs(shown)))
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) project(kind models.StrategyKind, t Tuning, rows int) time.Duration {
	if kind == models.StrategySetBased {
		return t.projectSetBased(rows)
	}
	return t.projectChunked(rows)
}

// Fingerprint identifies a request payload for idempotency checks.
func Fingerprint(collectionID string, req models.BulkAddRequest) string {
	canonical, _ := json.Marshal(struct {
		CollectionID string `json:"collection_id"`
		models.BulkAddRequest
	}{collectionID, req})
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
