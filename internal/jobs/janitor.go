package jobs

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// StartJanitor schedules periodic pruning of the registry: expired
// idempotency keys are dropped and long-finished jobs are forgotten by the
// registry and the publisher. A non-positive interval disables it.
func StartJanitor(e *Engine, intervalMinutes int) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if intervalMinutes <= 0 {
		log.Println("Janitor interval is 0, registry pruning is disabled.")
		return s
	}

	jobID := "registry-janitor"
	log.Printf("Scheduling job: '%s' to run every %d minutes.", jobID, intervalMinutes)
	_, err := s.Every(intervalMinutes).Minutes().Do(func() {
		keys, forgotten := e.Prune(time.Now().UTC())
		if keys > 0 || len(forgotten) > 0 {
			log.Printf("Janitor pruned %d idempotency key(s) and %d finished job(s)", keys, len(forgotten))
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobID, err)
	}

	log.Println("Starting background job scheduler...")
	s.StartAsync()
	return s
}

// Prune runs one janitor pass.
func (e *Engine) Prune(now time.Time) (keys int, forgotten []string) {
	keys, forgotten = e.registry.Prune(now)
	for _, id := range forgotten {
		e.publisher.Forget(id)
	}
	return keys, forgotten
}
