package notifyqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinel/internal/config"
	"sentinel/test/testutil"

	"github.com/nats-io/nats.go"
)

func newTestQueueConfig(natsURL string, maxDeliver int) config.QueueConfig {
	return config.QueueConfig{
		URL:           natsURL,
		Subject:       "sentinel.notify",
		Stream:        "SENTINEL_NOTIFY",
		ConsumerName:  "sentinel-notify",
		DeliverGroup:  "sentinel-notify-workers",
		Workers:       1,
		AckWaitSec:    2,
		NackDelayMS:   10,
		MaxDeliver:    maxDeliver,
		MaxAckPending: 128,
		DLQ: config.QueueDLQ{
			Stream:  "SENTINEL_NOTIFY_DLQ",
			Subject: "sentinel.notify.dlq",
		},
	}
}

func testJob() Job {
	job := Job{
		Kind:      "alert",
		Channel:   "telegram",
		Transport: "telegram",
		Address:   "42",
		ContactID: "ops",
		CheckID:   "web01:ssh",
		Condition: "critical",
		Severity:  "critical",
		Summary:   "connection refused",
		Timestamp: 1700000000,
		CreatedAt: time.Now().UTC(),
	}
	job.ID = BuildJobID(job)
	return job
}

func TestBuildJobIDDeterministic(t *testing.T) {
	t.Parallel()

	jobA := testJob()
	jobB := testJob()
	if jobA.ID == "" {
		t.Fatal("expected non-empty job id")
	}
	if jobA.ID != jobB.ID {
		t.Fatalf("expected deterministic ids: %q != %q", jobA.ID, jobB.ID)
	}

	jobB.Timestamp++
	if BuildJobID(jobB) == jobA.ID {
		t.Fatal("different timestamps must produce different ids")
	}
}

func TestMemoryQueueDeliversJobs(t *testing.T) {
	t.Parallel()

	var delivered int32
	queue := NewMemoryQueue(2, 1, 0, nil, func(_ context.Context, _ Job) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})
	for i := 0; i < 10; i++ {
		if err := queue.Enqueue(context.Background(), testJob()); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := atomic.LoadInt32(&delivered); got != 10 {
		t.Fatalf("delivered = %d, want 10", got)
	}
}

func TestMemoryQueueRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var attempts int32
	queue := NewMemoryQueue(1, 3, 0, nil, func(_ context.Context, _ Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("flaky downstream")
		}
		return nil
	})
	if err := queue.Enqueue(context.Background(), testJob()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestMemoryQueueDeadEndsPermanentErrors(t *testing.T) {
	t.Parallel()

	var attempts int32
	queue := NewMemoryQueue(1, 5, 0, nil, func(_ context.Context, _ Job) error {
		atomic.AddInt32(&attempts, 1)
		return MarkPermanent(errors.New("channel not configured"))
	})
	if err := queue.Enqueue(context.Background(), testJob()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("permanent error must not be retried, attempts = %d", got)
	}
}

func TestNATSProducerWorkerRedelivery(t *testing.T) {
	natsURL, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	cfg := newTestQueueConfig(natsURL, 3)

	producer, err := NewNATSProducer(cfg)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer func() { _ = producer.Close() }()

	var (
		mu       sync.Mutex
		attempts = map[string]int{}
		doneCh   = make(chan struct{}, 1)
	)
	worker, err := NewNATSWorker(cfg, nil, func(_ context.Context, job Job) error {
		mu.Lock()
		attempts[job.ID]++
		current := attempts[job.ID]
		mu.Unlock()
		if current == 1 {
			return context.DeadlineExceeded
		}
		select {
		case doneCh <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	defer func() { _ = worker.Close() }()

	job := testJob()
	if err := producer.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for redelivery success")
	}

	mu.Lock()
	gotAttempts := attempts[job.ID]
	mu.Unlock()
	if gotAttempts < 2 {
		t.Fatalf("expected at least 2 attempts due redelivery, got %d", gotAttempts)
	}
}

func TestNATSWorkerPublishesPermanentErrorToDLQ(t *testing.T) {
	natsURL, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	cfg := newTestQueueConfig(natsURL, 3)
	cfg.DLQ.Enabled = true

	producer, err := NewNATSProducer(cfg)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer func() { _ = producer.Close() }()

	var calls int32
	worker, err := NewNATSWorker(cfg, nil, func(_ context.Context, _ Job) error {
		atomic.AddInt32(&calls, 1)
		return MarkPermanent(errors.New("template missing"))
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	defer func() { _ = worker.Close() }()

	nc, err := nats.Connect(natsURL)
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync(cfg.DLQ.Subject)
	if err != nil {
		t.Fatalf("subscribe dlq: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush subscribe: %v", err)
	}

	job := testJob()
	if err := producer.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	message, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("wait dlq message: %v", err)
	}
	var entry DLQEntry
	if err := json.Unmarshal(message.Data, &entry); err != nil {
		t.Fatalf("decode dlq entry: %v", err)
	}
	if entry.Reason != DLQReasonPermanentError {
		t.Fatalf("unexpected dlq reason: %s", entry.Reason)
	}
	if entry.Job.ID != job.ID {
		t.Fatalf("unexpected dlq job id: %s", entry.Job.ID)
	}
	if entry.Attempts != 1 {
		t.Fatalf("unexpected attempts: %d", entry.Attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single handler call, got %d", got)
	}
}
