package notifyqueue

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Job is one outbound notification task in the delivery queue.
// Params: channel routing, contact/check identity, and message fields.
// Returns: queue unit consumed by delivery workers.
type Job struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Channel       string    `json:"channel"`
	Transport     string    `json:"transport"`
	Address       string    `json:"address"`
	ContactID     string    `json:"contact_id"`
	ContactName   string    `json:"contact_name"`
	CheckID       string    `json:"check_id"`
	Entity        string    `json:"entity"`
	CheckName     string    `json:"check_name"`
	Condition     string    `json:"condition"`
	Severity      string    `json:"severity"`
	Summary       string    `json:"summary"`
	Details       string    `json:"details"`
	AlertingCount int       `json:"alerting_count,omitempty"`
	DurationSec   int64     `json:"duration_sec,omitempty"`
	Timestamp     int64     `json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
}

// DLQReason identifies why a delivery job was moved to the dead-letter queue.
// Params: categorized failure reason.
// Returns: machine-readable DLQ classification.
type DLQReason string

const (
	// DLQReasonPermanentError marks non-retryable delivery failures.
	DLQReasonPermanentError DLQReason = "permanent_error"
	// DLQReasonMaxDeliverExceeded marks retries exhausted by queue max deliver policy.
	DLQReasonMaxDeliverExceeded DLQReason = "max_deliver_exceeded"
)

// DLQEntry is the dead-letter payload for delivery queue failures.
// Params: original job, failure metadata, and delivery counters.
// Returns: persisted DLQ record.
type DLQEntry struct {
	Job           Job       `json:"job"`
	Reason        DLQReason `json:"reason"`
	Error         string    `json:"error"`
	Attempts      uint64    `json:"attempts"`
	MaxDeliver    int       `json:"max_deliver"`
	Subject       string    `json:"subject"`
	FailedAt      time.Time `json:"failed_at"`
	OriginalMsgID string    `json:"original_msg_id,omitempty"`
}

// BuildJobID creates a deterministic id for one delivery job.
// Params: routing and message identity fields of the job.
// Returns: stable SHA1-based id string used for queue dedupe.
func BuildJobID(job Job) string {
	raw := fmt.Sprintf(
		"%s|%s|%s|%s|%s|%s|%s|%d|%d",
		job.Kind,
		job.Channel,
		job.Transport,
		job.ContactID,
		job.CheckID,
		job.Condition,
		job.Severity,
		job.Timestamp,
		job.AlertingCount,
	)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Producer enqueues notification delivery jobs.
// Params: context and queue job payload.
// Returns: enqueue error.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// Worker consumes queued jobs and acknowledges delivery status.
// Params: close hook for shutdown lifecycle.
// Returns: queue worker lifecycle.
type Worker interface {
	Close() error
}
