package notifyqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue runs delivery jobs through an in-process worker pool.
// Params: buffered job channel, worker pool, and retry policy.
// Returns: queue used in single mode instead of JetStream.
type MemoryQueue struct {
	jobs       chan Job
	wg         sync.WaitGroup
	closeOnce  sync.Once
	maxDeliver int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewMemoryQueue starts the in-process delivery queue.
// Params: worker count, retry policy, logger, and per-job handler.
// Returns: running queue acting as both producer and worker.
func NewMemoryQueue(workers, maxDeliver int, retryDelay time.Duration, logger *slog.Logger, handler func(ctx context.Context, job Job) error) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if maxDeliver <= 0 {
		maxDeliver = 1
	}
	queue := &MemoryQueue{
		jobs:       make(chan Job, 1024),
		maxDeliver: maxDeliver,
		retryDelay: retryDelay,
		logger:     logger,
	}
	queue.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go queue.run(handler)
	}
	return queue
}

// Enqueue queues one job for local delivery.
// Params: context and job payload.
// Returns: error when the queue is already closed or full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for in-flight jobs to finish.
// Params: none.
// Returns: nil after the worker pool drains.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
	return nil
}

// run drains the job channel applying the retry policy per job.
// Params: delivery handler callback.
// Returns: exits when the channel closes.
func (q *MemoryQueue) run(handler func(ctx context.Context, job Job) error) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.deliver(job, handler)
	}
}

// deliver retries one job up to the max-deliver policy, dead-ending
// permanent failures immediately.
// Params: job and handler callback.
// Returns: outcome logged; failed jobs are dropped after the final attempt.
func (q *MemoryQueue) deliver(job Job, handler func(ctx context.Context, job Job) error) {
	if handler == nil {
		return
	}
	var lastErr error
	for attempt := 1; attempt <= q.maxDeliver; attempt++ {
		lastErr = handler(context.Background(), job)
		if lastErr == nil {
			return
		}
		if IsPermanent(lastErr) {
			if q.logger != nil {
				q.logger.Error("delivery job dead-ended", "job_id", job.ID, "channel", job.Channel, "error", lastErr.Error())
			}
			return
		}
		if attempt < q.maxDeliver && q.retryDelay > 0 {
			time.Sleep(q.retryDelay)
		}
	}
	if q.logger != nil {
		q.logger.Error("delivery job dropped after retries", "job_id", job.ID, "channel", job.Channel, "attempts", q.maxDeliver, "error", errorString(lastErr))
	}
}
