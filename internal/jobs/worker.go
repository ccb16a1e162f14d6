package jobs

import (
	"context"
	"log"
	"time"
)

// Processor drains whatever work is currently queued. Implementations must
// be safe to call repeatedly; an error aborts only the current sweep.
type Processor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a Processor on a fixed poll interval until stopped. The first
// sweep runs immediately on Start so a job enqueued just before startup is
// not left waiting a full interval.
type Worker struct {
	name      string
	processor Processor
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
}

func NewWorker(name string, processor Processor, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start blocks in the polling loop until Stop is called or ctx is cancelled.
// Run it in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("%s worker: polling every %v", w.name, w.interval)
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker: context cancelled", w.name)
			return
		case <-w.stop:
			log.Printf("%s worker: stop requested", w.name)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("%s worker: sweep failed: %v", w.name, err)
	}
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
	log.Printf("%s worker: stopped", w.name)
}
