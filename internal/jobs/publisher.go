package jobs

import (
	"sync"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

// Pending updates a slow subscriber may accumulate before intermediate
// progress updates are coalesced.
const maxPending = 64

// Publisher fans progress updates out to every subscriber of a job. A
// subscriber receives the latest snapshot at subscribe time and then every
// update published after it, in order, ending with the terminal update.
type Publisher struct {
	mu        sync.Mutex
	subs      map[string]map[*Subscription]struct{}
	last      map[string]models.ProgressUpdate
	observers []func(models.ProgressUpdate)
	keepalive time.Duration
}

func NewPublisher(keepalive time.Duration) *Publisher {
	return &Publisher{
		subs:      make(map[string]map[*Subscription]struct{}),
		last:      make(map[string]models.ProgressUpdate),
		keepalive: keepalive,
	}
}

// Observe registers fn to be called with every published update of every
// job. Used to feed the admin dashboard.
func (p *Publisher) Observe(fn func(models.ProgressUpdate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Publish delivers u to the job's subscribers. Updates published after the
// job's terminal update are dropped.
func (p *Publisher) Publish(u models.ProgressUpdate) {
	p.mu.Lock()
	if prev, ok := p.last[u.JobID]; ok && prev.IsTerminal() {
		p.mu.Unlock()
		return
	}
	p.last[u.JobID] = u
	for s := range p.subs[u.JobID] {
		s.enqueue(u)
	}
	if u.IsTerminal() {
		delete(p.subs, u.JobID)
	}
	observers := p.observers
	p.mu.Unlock()

	for _, fn := range observers {
		fn(u)
	}
}

// Subscribe opens a subscription to jobID. seed is used as the first update
// when nothing has been published for the job yet.
func (p *Publisher) Subscribe(jobID string, seed models.ProgressUpdate) *Subscription {
	s := &Subscription{
		jobID: jobID,
		p:     p,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		out:   make(chan models.ProgressUpdate),
	}

	p.mu.Lock()
	if last, ok := p.last[jobID]; ok {
		seed = last
	}
	s.enqueue(seed)
	if !seed.IsTerminal() {
		if p.subs[jobID] == nil {
			p.subs[jobID] = make(map[*Subscription]struct{})
		}
		p.subs[jobID][s] = struct{}{}
	}
	p.mu.Unlock()

	go s.pump(p.keepalive)
	return s
}

// Forget drops the retained snapshot of a job.
func (p *Publisher) Forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.last, jobID)
}

// Subscribers returns the number of open subscriptions for a job.
func (p *Publisher) Subscribers(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[jobID])
}

func (p *Publisher) remove(s *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.subs[s.jobID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(p.subs, s.jobID)
		}
	}
}

// Subscription is one observer's ordered view of a job's progress.
type Subscription struct {
	jobID string
	p     *Publisher

	mu    sync.Mutex
	queue []models.ProgressUpdate

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	out       chan models.ProgressUpdate
}

// Updates yields progress and keepalive updates. The channel is closed
// after the terminal update or once Close is called.
func (s *Subscription) Updates() <-chan models.ProgressUpdate {
	return s.out
}

// Close detaches the subscriber. The job keeps running.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.p.remove(s)
	})
}

func (s *Subscription) enqueue(u models.ProgressUpdate) {
	s.mu.Lock()
	n := len(s.queue)
	if n >= maxPending && !s.queue[n-1].IsTerminal() && !u.IsTerminal() {
		s.queue[n-1] = u
	} else {
		s.queue = append(s.queue, u)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (models.ProgressUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return models.ProgressUpdate{}, false
	}
	u := s.queue[0]
	s.queue = s.queue[1:]
	return u, true
}

func (s *Subscription) pump(keepalive time.Duration) {
	defer close(s.out)
	for {
		if u, ok := s.next(); ok {
			select {
			case s.out <- u:
			case <-s.done:
				return
			}
			if u.IsTerminal() {
				s.Close()
				return
			}
			continue
		}

		var tick <-chan time.Time
		var timer *time.Timer
		if keepalive > 0 {
			timer = time.NewTimer(keepalive)
			tick = timer.C
		}
		select {
		case <-s.wake:
		case <-s.done:
			stopTimer(timer)
			return
		case <-tick:
			select {
			case s.out <- models.ProgressUpdate{Type: models.UpdateKeepalive, JobID: s.jobID}:
			case <-s.done:
				return
			}
		}
		stopTimer(timer)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
