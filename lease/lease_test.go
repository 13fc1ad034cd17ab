package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/lease"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store/memory"
	"github.com/ferrywork/ferry/tenant"
)

func newPolicy() retry.Policy {
	return retry.NewPolicy(10*time.Millisecond, time.Second, 0.1)
}

func mustLeaseJob(t *testing.T, s *memory.Store, maxAttempts int) (*job.Job, id.LeaseToken) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	tn := &tenant.Tenant{ID: id.NewTenantID(), TenantID: "acme", Weight: 1, APIKeyHash: "x", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateTenant(ctx, tn))

	j := &job.Job{
		ID:          id.NewJobID(),
		TenantID:    "acme",
		Queue:       "default",
		State:       job.StatePending,
		MaxAttempts: maxAttempts,
		AvailableAt: now,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateJob(ctx, j))

	token := id.NewLeaseToken()
	leased, err := s.PromoteToLeased(ctx, j.ID, job.Lease{
		Token:     token,
		WorkerID:  "w1",
		ExpiresAt: now.Add(time.Minute),
		Deadline:  now.Add(time.Hour),
		Heartbeat: now,
	}, now)
	require.NoError(t, err)
	require.True(t, leased.IsLeased())

	return leased, token
}

func TestService_Heartbeat_ExtendsLease(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 3)
	svc := lease.New(s, newPolicy())

	extended, err := svc.Heartbeat(context.Background(), j.ID, token, time.Minute)
	require.NoError(t, err)
	require.True(t, extended.LeaseExpiresAt.After(*j.LeaseExpiresAt))
}

func TestService_Heartbeat_WrongTokenRejected(t *testing.T) {
	s := memory.New()
	j, _ := mustLeaseJob(t, s, 3)
	svc := lease.New(s, newPolicy())

	_, err := svc.Heartbeat(context.Background(), j.ID, id.NewLeaseToken(), time.Minute)
	require.ErrorIs(t, err, ferry.ErrLeaseInvalid)
}

func TestService_Complete_RecordsCompletionAndSucceeds(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 3)
	svc := lease.New(s, newPolicy())

	updated, c, err := svc.Complete(context.Background(), j.ID, token, "idem-1", []byte(`{"ok":true}`))
	require.NoError(t, err)
	require.Equal(t, job.StateSucceeded, updated.State)
	require.Equal(t, j.ID, c.JobID)
	require.Equal(t, "idem-1", c.IdempotencyKeyComplete)
}

// TestService_Complete_IsIdempotentOnReplay verifies that calling
// Complete twice with the same idempotency key returns the original
// completion unchanged without attempting to re-mutate the job, which
// has already left StateLeased after the first call (invariant I2/I7).
func TestService_Complete_IsIdempotentOnReplay(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 3)
	svc := lease.New(s, newPolicy())

	firstJob, first, err := svc.Complete(context.Background(), j.ID, token, "idem-1", []byte(`{"n":1}`))
	require.NoError(t, err)
	require.Equal(t, job.StateSucceeded, firstJob.State)

	secondJob, second, err := svc.Complete(context.Background(), j.ID, token, "idem-1", []byte(`{"n":2}`))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Result, second.Result)
	require.Equal(t, job.StateSucceeded, secondJob.State)

	got, err := s.GetCompletionByJob(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, first.Result, got.Result)
}

// TestService_Complete_DifferentKeyConflicts verifies a replay under a
// different idempotency key is rejected rather than silently accepted
// or re-applied (spec §4.4 complete, invariant I2).
func TestService_Complete_DifferentKeyConflicts(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 3)
	svc := lease.New(s, newPolicy())

	_, _, err := svc.Complete(context.Background(), j.ID, token, "idem-1", []byte(`{"n":1}`))
	require.NoError(t, err)

	_, _, err = svc.Complete(context.Background(), j.ID, token, "idem-2", []byte(`{"n":2}`))
	require.ErrorIs(t, err, ferry.ErrIdempotencyConflict)
}

func TestService_Fail_RetriesBeforeMaxAttempts(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 3)
	svc := lease.New(s, newPolicy())

	// Attempts only counts failures, not the claim itself.
	require.Equal(t, 0, j.Attempts)

	updated, err := svc.Fail(context.Background(), j.ID, token, "boom", true)
	require.NoError(t, err)
	require.Equal(t, job.StatePending, updated.State)
	require.Equal(t, "boom", updated.LastError)
	require.Equal(t, 1, updated.Attempts)
	require.True(t, updated.AvailableAt.After(j.CreatedAt))
}

func TestService_Fail_DeadLettersAtMaxAttempts(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 1)
	svc := lease.New(s, newPolicy())

	require.Equal(t, 0, j.Attempts)
	require.Equal(t, 1, j.MaxAttempts)

	updated, err := svc.Fail(context.Background(), j.ID, token, "boom", true)
	require.NoError(t, err)
	require.Equal(t, job.StateDLQ, updated.State)
	require.Equal(t, 1, updated.Attempts)
}

// TestService_Fail_NonRetryableDeadLettersImmediately verifies a
// worker-reported retryable=false failure dead-letters the job even
// with attempts remaining (spec §4.4 fail, §6 workers/fail).
func TestService_Fail_NonRetryableDeadLettersImmediately(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 10)
	svc := lease.New(s, newPolicy())

	updated, err := svc.Fail(context.Background(), j.ID, token, "fatal", false)
	require.NoError(t, err)
	require.Equal(t, job.StateDLQ, updated.State)
	require.Equal(t, 1, updated.Attempts)
}

func TestService_Cancel_TransitionsPendingJob(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateTenant(ctx, &tenant.Tenant{ID: id.NewTenantID(), TenantID: "acme", Weight: 1, APIKeyHash: "x", CreatedAt: now, UpdatedAt: now}))

	j := &job.Job{
		ID: id.NewJobID(), TenantID: "acme", Queue: "default", State: job.StatePending,
		MaxAttempts: 1, AvailableAt: now, RunAfter: now, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateJob(ctx, j))

	svc := lease.New(s, newPolicy())

	canceled, err := svc.Cancel(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StateCanceled, canceled.State)
	require.True(t, canceled.Terminal())
}

func TestService_Cancel_RejectsAlreadyTerminalJob(t *testing.T) {
	s := memory.New()
	j, token := mustLeaseJob(t, s, 1)
	svc := lease.New(s, newPolicy())

	_, _, err := svc.Complete(context.Background(), j.ID, token, "idem-1", nil)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), j.ID)
	require.Error(t, err)
}
