package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

const interruptedMessage = "interrupted by restart"

type entry struct {
	mu        sync.Mutex
	job       models.Job
	cancel    atomic.Bool
	settledAt time.Time
}

type idempotencyRecord struct {
	JobID       string
	Fingerprint string
	ExpiresAt   time.Time
}

// Registry is the in-memory table of jobs, backed by the jobs table. It also
// owns the idempotency index and the per-key locks that serialize lookups
// with job creation.
type Registry struct {
	store JobStore

	mu      sync.RWMutex
	entries map[string]*entry
	keys    map[string]idempotencyRecord

	keyLocks keyedMutex

	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRegistry(store JobStore, ttl, retention time.Duration) *Registry {
	return &Registry{
		store:     store,
		entries:   make(map[string]*entry),
		keys:      make(map[string]idempotencyRecord),
		ttl:       ttl,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Load fails jobs a previous process left unfinished and rebuilds the
// idempotency index from persisted jobs.
func (r *Registry) Load(ctx context.Context) error {
	n, err := r.store.FailInterruptedJobs(ctx, interruptedMessage)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("Marked %d interrupted job(s) as failed", n)
	}

	now := r.now()
	keyed, err := r.store.ListJobsWithKeysSince(ctx, now.Add(-r.ttl))
	if err != nil {
		return fmt.Errorf("failed to load idempotency keys: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range keyed {
		r.keys[job.IdempotencyKey] = idempotencyRecord{
			JobID:       job.ID,
			Fingerprint: job.Fingerprint,
			ExpiresAt:   job.CreatedAt.Add(r.ttl),
		}
	}
	return nil
}

// lockKey serializes callers sharing an idempotency key. The returned
// function releases the lock.
func (r *Registry) lockKey(key string) func() {
	return r.keyLocks.Lock(key)
}

func (r *Registry) lookupKey(key string) (idempotencyRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.keys[key]
	if !ok || !r.now().Before(rec.ExpiresAt) {
		return idempotencyRecord{}, false
	}
	return rec, true
}

// create persists a new job and adds it to the table.
func (r *Registry) create(ctx context.Context, job models.Job) (*entry, error) {
	if err := r.store.SaveJob(ctx, &job); err != nil {
		return nil, err
	}
	e := &entry{job: job}
	r.mu.Lock()
	r.entries[job.ID] = e
	if job.IdempotencyKey != "" {
		r.keys[job.IdempotencyKey] = idempotencyRecord{
			JobID:       job.ID,
			Fingerprint: job.Fingerprint,
			ExpiresAt:   job.CreatedAt.Add(r.ttl),
		}
	}
	r.mu.Unlock()
	return e, nil
}

func (r *Registry) entry(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Get returns a copy of the job, falling back to the store for jobs the
// table no longer holds.
func (r *Registry) Get(ctx context.Context, id string) (models.Job, error) {
	if e, ok := r.entry(id); ok {
		return e.snapshot(), nil
	}
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
		}
		return models.Job{}, err
	}
	return *job, nil
}

// List returns recent jobs newest first, with live state for jobs still in
// the table.
func (r *Registry) List(ctx context.Context, limit int) ([]models.Job, error) {
	persisted, err := r.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Job, 0, len(persisted))
	for _, job := range persisted {
		if e, ok := r.entry(job.ID); ok {
			out = append(out, e.snapshot())
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

// active returns the ids of every job that has not reached a terminal state.
func (r *Registry) active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.entries {
		if !e.snapshot().State.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Prune drops expired idempotency keys and forgets terminal jobs settled
// longer than the retention window ago. Forgotten jobs remain readable from
// the store.
func (r *Registry) Prune(now time.Time) (keys int, forgotten []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rec := range r.keys {
		if !now.Before(rec.ExpiresAt) {
			delete(r.keys, k)
			keys++
		}
	}
	for id, e := range r.entries {
		e.mu.Lock()
		settled := e.job.State.IsTerminal() && now.Sub(e.settledAt) >= r.retention
		e.mu.Unlock()
		if settled {
			delete(r.entries, id)
			forgotten = append(forgotten, id)
		}
	}
	return keys, forgotten
}

func (e *entry) snapshot() models.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

// update applies fn to the job unless it is already terminal. It reports
// the resulting job and whether fn ran.
func (e *entry) update(now time.Time, fn func(*models.Job)) (models.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.State.IsTerminal() {
		return e.job, false
	}
	fn(&e.job)
	e.job.UpdatedAt = now
	if e.job.State.IsTerminal() {
		e.settledAt = now
	}
	return e.job, true
}
