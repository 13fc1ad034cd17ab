// Package lease implements the worker-facing lease operations (spec
// §4.4): heartbeat, complete, fail, and cancel. Each verifies the
// caller's lease token against the current holder before mutating
// anything — a mismatch performs no mutation and surfaces
// ferry.ErrLeaseInvalid.
package lease

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/completion"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store"
)

// Service implements the worker-facing lease protocol over a store.
type Service struct {
	store  store.Store
	policy retry.Policy
}

// New constructs a lease Service. policy governs the backoff applied
// on a retryable failure (spec §4.2).
func New(st store.Store, policy retry.Policy) *Service {
	return &Service{store: st, policy: policy}
}

// Heartbeat extends jobID's lease by leaseDuration if token is the
// current holder (spec §4.4 heartbeat). It does not touch the outbox:
// heartbeats are high-frequency and carry no state-transition
// information a subscriber would need (SPEC_FULL.md open question).
func (s *Service) Heartbeat(ctx context.Context, jobID id.JobID, token id.LeaseToken, leaseDuration time.Duration) (*job.Job, error) {
	now := time.Now().UTC()

	j, err := s.store.ExtendLease(ctx, jobID, token, now.Add(leaseDuration), now)
	if err != nil {
		return nil, err
	}

	if j.ExecutionDeadline != nil && j.ExecutionDeadline.Before(now) {
		return nil, ferry.ErrExecutionDeadlineExceeded
	}

	return j, nil
}

// Complete marks jobID succeeded and records the completion effect
// exactly once: if idempotencyKey has already been recorded for this
// job, the prior result is returned unchanged rather than re-applied
// (spec invariants I2, I7). This replay check happens before touching
// the job row because a replayed Complete arrives after the job has
// already left StateLeased — MarkSucceeded's lease check would reject
// it as ferry.ErrLeaseInvalid otherwise. The job transition and the
// completion insert happen in one transaction alongside a succeeded
// outbox event.
func (s *Service) Complete(ctx context.Context, jobID id.JobID, token id.LeaseToken, idempotencyKey string, result []byte) (*job.Job, *completion.Completion, error) {
	existing, err := s.store.GetCompletionByJob(ctx, jobID)

	switch {
	case err == nil:
		if existing.IdempotencyKeyComplete != idempotencyKey {
			return nil, nil, ferry.ErrIdempotencyConflict
		}

		j, getErr := s.store.GetJob(ctx, jobID)
		if getErr != nil {
			return nil, nil, getErr
		}

		return j, existing, nil
	case errors.Is(err, ferry.ErrNotFound):
		// No prior completion recorded; fall through to the normal path.
	default:
		return nil, nil, err
	}

	var (
		j *job.Job
		c *completion.Completion
	)

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error

		j, err = s.store.MarkSucceeded(ctx, jobID, token, time.Now().UTC())
		if err != nil {
			return err
		}

		c = &completion.Completion{
			ID:                     id.NewCompletionID(),
			JobID:                  jobID,
			IdempotencyKeyComplete: idempotencyKey,
			Result:                 result,
			RecordedAt:             time.Now().UTC(),
		}
		if err := s.store.InsertCompletion(ctx, c); err != nil {
			if errors.Is(err, completion.ErrAlreadyRecorded) {
				return ferry.ErrIdempotencyConflict
			}

			return err
		}

		return s.appendEvent(ctx, jobID, outbox.KindSucceeded, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	return j, c, nil
}

// Fail records a job execution failure. attempts is incremented by the
// store as part of this call (counted on failure, not on claim — spec
// §4.2). The job is dead-lettered if the failure is marked
// non-retryable or if the incremented attempts count has reached
// MaxAttempts; otherwise it is requeued at a backoff-computed
// AvailableAt (spec §4.4 fail, §6 workers/fail retryable flag).
func (s *Service) Fail(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, retryable bool) (*job.Job, error) {
	var result *job.Job

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if !current.MatchesLease(token) {
			return ferry.ErrLeaseInvalid
		}

		now := time.Now().UTC()

		if !retryable || current.Attempts+1 >= current.MaxAttempts {
			result, err = s.store.MarkDLQ(ctx, jobID, token, errMsg, now)
			if err != nil {
				return err
			}

			return s.appendEvent(ctx, jobID, outbox.KindDLQ, map[string]any{"error": errMsg})
		}

		next := s.policy.NextAvailableAt(current.Attempts+1, now)

		result, err = s.store.MarkRetry(ctx, jobID, token, errMsg, next, now)
		if err != nil {
			return err
		}

		return s.appendEvent(ctx, jobID, outbox.KindRetried, map[string]any{"error": errMsg, "available_at": next})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Cancel transitions jobID to canceled from pending or leased. If the
// job is concurrently completing or failing, whichever commits first
// wins; Cancel's row-scoped update loses the race cleanly rather than
// clobbering a terminal state (SPEC_FULL.md open question).
func (s *Service) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var result *job.Job

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error

		result, err = s.store.CancelJob(ctx, jobID, time.Now().UTC())
		if err != nil {
			return err
		}

		return s.appendEvent(ctx, jobID, outbox.KindCanceled, nil)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) appendEvent(ctx context.Context, jobID id.JobID, kind outbox.Kind, data any) error {
	var payload []byte

	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return ferry.Wrap(ferry.CodeInternal, "marshal outbox event payload", err)
		}

		payload = encoded
	}

	now := time.Now().UTC()

	return s.store.AppendEvent(ctx, &outbox.Event{
		ID:          id.NewOutboxID(),
		AggregateID: jobID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   now,
		VisibleAt:   now,
	})
}
