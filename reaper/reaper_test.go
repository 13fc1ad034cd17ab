package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/reaper"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store/memory"
	"github.com/ferrywork/ferry/tenant"
)

func newPolicy() retry.Policy {
	return retry.NewPolicy(10*time.Millisecond, time.Second, 0.1)
}

func mustLeaseExpiredJob(t *testing.T, s *memory.Store, maxAttempts int, deadlinePassed bool) *job.Job {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	// Tests that lease several jobs share one tenant; create it only once.
	if _, err := s.GetTenant(ctx, "acme"); err != nil {
		require.NoError(t, s.CreateTenant(ctx, &tenant.Tenant{ID: id.NewTenantID(), TenantID: "acme", Weight: 1, APIKeyHash: "x", CreatedAt: now, UpdatedAt: now}))
	}

	j := &job.Job{
		ID: id.NewJobID(), TenantID: "acme", Queue: "default", State: job.StatePending,
		MaxAttempts: maxAttempts, AvailableAt: now, RunAfter: now, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateJob(ctx, j))

	deadline := now.Add(time.Hour)
	if deadlinePassed {
		deadline = now.Add(-time.Minute)
	}

	leased, err := s.PromoteToLeased(ctx, j.ID, job.Lease{
		Token:     id.NewLeaseToken(),
		WorkerID:  "w1",
		ExpiresAt: now.Add(-time.Minute), // already expired
		Deadline:  deadline,
		Heartbeat: now,
	}, now)
	require.NoError(t, err)

	return leased
}

func TestReaper_Sweep_RequeuesExpiredLeaseBelowMaxAttempts(t *testing.T) {
	s := memory.New()
	j := mustLeaseExpiredJob(t, s, 3, false)

	r := reaper.New(s, newPolicy(), 10, nil)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatePending, got.State)
	require.False(t, got.IsLeased())
	require.NotEmpty(t, got.LastError)
}

func TestReaper_Sweep_DeadLettersAtMaxAttempts(t *testing.T) {
	s := memory.New()
	j := mustLeaseExpiredJob(t, s, 1, false)

	r := reaper.New(s, newPolicy(), 10, nil)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StateDLQ, got.State)
	require.True(t, got.Terminal())
}

func TestReaper_Sweep_ExecutionDeadlineExceededIsDistinctError(t *testing.T) {
	s := memory.New()
	j := mustLeaseExpiredJob(t, s, 5, true)

	r := reaper.New(s, newPolicy(), 10, nil)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatePending, got.State)
	require.Contains(t, got.LastError, "execution deadline exceeded")
}

func TestReaper_Sweep_NoExpiredLeasesIsNoop(t *testing.T) {
	s := memory.New()
	r := reaper.New(s, newPolicy(), 10, nil)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReaper_Sweep_RespectsBatchLimit(t *testing.T) {
	s := memory.New()
	mustLeaseExpiredJob(t, s, 3, false)
	mustLeaseExpiredJob(t, s, 3, false)
	mustLeaseExpiredJob(t, s, 3, false)

	r := reaper.New(s, newPolicy(), 2, nil)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
