// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	dispatch := New(queue, nil)
	dispatch.AddWorkers(worker.New(queue, nil, nil, nil, worker.Config{}, zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), feeds.FetchJob{RunID: "run"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !errors.Is(err, queue.err) {
		t.Fatalf("expected error chain to include queue error")
	}
}

// TestDispatcherTryEnqueueKeepsSentinel checks a full queue stays detectable.
func TestDispatcherTryEnqueueKeepsSentinel(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: feeds.ErrQueueFull}, nil)
	err := dispatch.TryEnqueue(feeds.FetchJob{RunID: "run"})
	if !errors.Is(err, feeds.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ feeds.FetchJob) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) TryEnqueue(job feeds.FetchJob) error {
	return q.Enqueue(context.Background(), job)
}

func (q *blockingQueue) Dequeue(ctx context.Context) (feeds.FetchJob, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return feeds.FetchJob{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, feeds.FetchJob) error {
	return q.err
}

func (q *errorQueue) TryEnqueue(feeds.FetchJob) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (feeds.FetchJob, error) {
	return feeds.FetchJob{}, nil
}
