package job

import (
	"context"
	"time"

	"github.com/ferrywork/ferry/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Queue  string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	Queue string
	State State
}

// Store defines the persistence contract for jobs. Implementations are
// responsible for the atomicity and row-locking guarantees each method
// documents; callers (claim, lease, reaper) hold no locks of their own.
type Store interface {
	// CreateJob persists a new pending job. If j.IdempotencyKeyCreate is
	// set and a job already exists for (TenantID, IdempotencyKeyCreate),
	// CreateJob leaves the store unchanged, populates j with the
	// existing row, and returns ErrIdempotentReplay so callers can
	// report created=false (spec §6).
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetJobByIdempotencyKey looks up a job by its creation idempotency
	// key scoped to tenantID. Returns ErrNotFound if absent.
	GetJobByIdempotencyKey(ctx context.Context, tenantID, key string) (*Job, error)

	// ListJobsByState returns jobs in the given state, oldest first,
	// restricted to Queue if set.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs counts jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// ClaimCandidate selects and row-locks the single best eligible
	// pending job for tenantID (spec §4.3 step 2): State==StatePending,
	// AvailableAt<=now, Queue in queues (all queues if empty), ordered
	// by Priority DESC then CreatedAt ASC, skipping rows already locked
	// by a concurrent claim (SKIP LOCKED). Returns nil, nil if none
	// found — this is not an error.
	ClaimCandidate(ctx context.Context, tenantID string, queues []string, now time.Time) (*Job, error)

	// PromoteToLeased atomically transitions a row previously returned
	// by ClaimCandidate (within the same transaction) to StateLeased,
	// recording the lease (spec §4.3 step 3). Attempts is unchanged: it
	// counts failures, not claims, and only increments in MarkRetry,
	// MarkDLQ, and ExpireLease.
	PromoteToLeased(ctx context.Context, jobID id.JobID, lease Lease, now time.Time) (*Job, error)

	// ExtendLease verifies (jobID, token) against the current holder and
	// extends LeaseExpiresAt/LastHeartbeatAt (spec §4.4 heartbeat).
	// Returns ErrLeaseInvalid on any mismatch; performs no mutation.
	ExtendLease(ctx context.Context, jobID id.JobID, token id.LeaseToken, newExpiresAt, now time.Time) (*Job, error)

	// MarkSucceeded verifies (jobID, token) and transitions the job to
	// StateSucceeded (spec §4.4 complete; invariant I2/I7 are enforced by
	// the caller inside the same store transaction as the completion
	// insert).
	MarkSucceeded(ctx context.Context, jobID id.JobID, token id.LeaseToken, now time.Time) (*Job, error)

	// MarkRetry verifies (jobID, token), increments Attempts, and
	// requeues the job to StatePending at nextAvailableAt, recording
	// errMsg (spec §4.4 fail, retryable ∧ attempts < max_attempts path).
	MarkRetry(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, nextAvailableAt, now time.Time) (*Job, error)

	// MarkDLQ verifies (jobID, token), increments Attempts, and
	// transitions the job to StateDLQ (spec §4.4 fail, non-retryable or
	// attempts >= max_attempts path).
	MarkDLQ(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, now time.Time) (*Job, error)

	// CancelJob transitions a pending or leased job to StateCanceled. If
	// the job is leased, the race with a concurrent complete/fail is
	// resolved by row lock: whichever commits first wins, the other
	// fails (spec open question, resolved in SPEC_FULL.md).
	CancelJob(ctx context.Context, jobID id.JobID, now time.Time) (*Job, error)

	// ExpireLease is the reaper's counterpart to MarkRetry/MarkDLQ: it
	// matches on the job's own current lease rather than a
	// caller-supplied token, since the reaper acts on behalf of a worker
	// that may be gone, and increments Attempts the same way
	// MarkRetry/MarkDLQ do (spec §4.5 treats expiry as retryable=true).
	ExpireLease(ctx context.Context, jobID id.JobID, errMsg string, nextAvailableAt, now time.Time, dlq bool) (*Job, error)

	// ListExpiredLeases returns up to limit leased jobs whose
	// LeaseExpiresAt or ExecutionDeadline has passed at now, oldest
	// expiry first (spec §4.5).
	ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*Job, error)
}
