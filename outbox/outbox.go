// Package outbox implements the transactional outbox pattern (spec
// §4.6, invariant I6): state-transition events are appended in the
// same transaction as the job mutation that caused them, then drained
// to external subscribers at-least-once by a lease-based publisher.
package outbox

import (
	"time"

	"github.com/ferrywork/ferry/id"
)

// Kind identifies the job state transition an Event records.
type Kind string

const (
	KindLeased    Kind = "leased"
	KindSucceeded Kind = "succeeded"
	KindRetried   Kind = "retried"
	KindDLQ       Kind = "dlq"
	KindCanceled  Kind = "canceled"
)

// Event is a durable record of a job state transition, queued for
// at-least-once delivery to external subscribers.
type Event struct {
	ID          id.OutboxID `json:"id"`
	AggregateID id.JobID    `json:"aggregate_id"`
	// Sequence is monotonic per AggregateID (invariant I6), assigned by
	// the store at append time so two events for the same job are never
	// delivered out of order even under concurrent publishers.
	Sequence    int64     `json:"sequence"`
	Kind        Kind      `json:"kind"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
	VisibleAt   time.Time `json:"visible_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Attempts    int        `json:"attempts"`
}
