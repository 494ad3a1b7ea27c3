package outbox

import (
	"context"
	"log"
	"time"
)

// Worker drains the queue whenever it is kicked and on every tick.
type Worker struct {
	queue    *Queue
	pusher   Pusher
	interval time.Duration
	kick     chan struct{}
}

func NewWorker(q *Queue, p Pusher, interval time.Duration) *Worker {
	return &Worker{
		queue:    q,
		pusher:   p,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick asks for a drain without waiting for it. Kicks that arrive while one
// is already queued are merged.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Printf("[outbox] worker started with %d pending", w.queue.Len())
	for {
		select {
		case <-ctx.Done():
			log.Printf("[outbox] worker stopped with %d pending", w.queue.Len())
			return
		case <-w.kick:
		case <-tick:
		}
		if w.queue.Len() == 0 {
			continue
		}
		res := w.queue.Drain(ctx, w.pusher)
		if res.Failed > 0 {
			log.Printf("[outbox] drained %d entries: %d pushed, %d failed", res.Attempted, res.Pushed, res.Failed)
		}
	}
}
