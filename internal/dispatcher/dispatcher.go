// Package dispatcher manages worker fan-out over the fetch queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   feeds.Queue
	mu      sync.Mutex
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue feeds.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// AddWorkers registers workers built after the Dispatcher, which is the case
// when the workers' populator enqueues through this Dispatcher. It must be
// called before Run.
func (d *Dispatcher) AddWorkers(workers ...*worker.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers = append(d.workers, workers...)
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	workers := append([]*worker.Worker(nil), d.workers...)
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job feeds.FetchJob) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// TryEnqueue proxies to the underlying queue without blocking.
func (d *Dispatcher) TryEnqueue(job feeds.FetchJob) error {
	if err := d.queue.TryEnqueue(job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
