package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/issuesim/pkg/natsutil"
)

// StartConsumer rebuilds the corpus whenever a Job arrives on
// RequestSubject. Runs never overlap; a request that arrives while a
// rebuild is in progress is skipped. Failures are logged and not retried.
func StartConsumer(ctx context.Context, sub natsutil.Subscriber, deps Deps) (*nats.Subscription, error) {
	log := logger(deps)
	var mu sync.Mutex

	return natsutil.Subscribe(sub, RequestSubject, log, func(_ context.Context, job Job) {
		if !mu.TryLock() {
			log.Warn("ingest: rebuild already running, skipping request", "job", job.ID)
			return
		}
		defer mu.Unlock()
		if job.ID == "" {
			job = NewJob()
		}
		if _, err := Run(ctx, deps, job); err != nil {
			log.Error("ingest: requested rebuild failed", "job", job.ID, "err", err)
		}
	})
}
