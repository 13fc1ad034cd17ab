// Package job defines the Job entity and its lifecycle state machine
// (spec §3): the durable record of a unit of work, its lease, and its
// retry bookkeeping.
package job

import (
	"time"

	"github.com/ferrywork/ferry/id"
)

// State is the lifecycle state of a job (spec §3 lifecycle).
type State string

const (
	// StatePending means the job is waiting to be claimed.
	StatePending State = "pending"
	// StateLeased means a worker currently holds an active lease on it.
	StateLeased State = "leased"
	// StateSucceeded is terminal: the job completed successfully.
	StateSucceeded State = "succeeded"
	// StateDLQ is terminal: attempts were exhausted (dead-lettered).
	StateDLQ State = "dlq"
	// StateCanceled is terminal: the job was explicitly canceled.
	StateCanceled State = "canceled"
)

// Lease is the logical triple embedded in a leased Job (spec §3 "Lease
// (logical)"): it exists iff State == StateLeased and Token is non-zero.
type Lease struct {
	Token      id.LeaseToken
	WorkerID   string
	ExpiresAt  time.Time
	Deadline   time.Time
	Heartbeat  time.Time
}

// Job is a unit of work with durable state in the store.
type Job struct {
	ID       id.JobID `json:"id"`
	TenantID string   `json:"tenant_id"`
	Queue    string   `json:"queue"`
	Priority int      `json:"priority"`
	Payload  []byte   `json:"payload"`
	State    State    `json:"state"`

	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	AvailableAt time.Time `json:"available_at"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// IdempotencyKeyCreate, when set, is unique per TenantID: a second
	// creation with the same (TenantID, key) returns this job unchanged
	// rather than creating a duplicate (spec §6 "duplicate ... returns
	// the original job, created=false").
	IdempotencyKeyCreate string `json:"idempotency_key_create,omitempty"`

	// Lease fields. All zero/empty when the job is not currently leased.
	WorkerID          string     `json:"worker_id,omitempty"`
	LeaseToken        string     `json:"-"`
	LeaseExpiresAt    *time.Time `json:"lease_expires_at,omitempty"`
	LastHeartbeatAt   *time.Time `json:"last_heartbeat_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	ExecutionDeadline *time.Time `json:"execution_deadline,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

// IsLeased reports whether the job currently holds a valid lease,
// enforcing invariant I1 (leased state implies a non-null token and
// expiry) at the type level for callers that only have a *Job in hand.
func (j *Job) IsLeased() bool {
	return j.State == StateLeased && j.LeaseToken != "" && j.LeaseExpiresAt != nil
}

// MatchesLease reports whether token authenticates the current holder
// of this job's lease (spec §4.4: "any mismatch fails with
// LeaseInvalid and performs no mutation").
func (j *Job) MatchesLease(token id.LeaseToken) bool {
	return j.IsLeased() && j.LeaseToken == token.String()
}

// Terminal reports whether State is one from which no further
// transition is possible.
func (j *Job) Terminal() bool {
	switch j.State {
	case StateSucceeded, StateDLQ, StateCanceled:
		return true
	default:
		return false
	}
}
