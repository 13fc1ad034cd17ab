package claim_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/claim"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/store/memory"
	"github.com/ferrywork/ferry/tenant"
)

func mustCreateTenant(t *testing.T, s *memory.Store, tenantID string, weight int) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, s.CreateTenant(context.Background(), &tenant.Tenant{
		ID:         id.NewTenantID(),
		TenantID:   tenantID,
		Weight:     weight,
		APIKeyHash: tenantID + "-secret",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func mustCreateJob(t *testing.T, s *memory.Store, tenantID string, priority int) *job.Job {
	t.Helper()

	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		TenantID:    tenantID,
		Queue:       "default",
		Priority:    priority,
		Payload:     []byte(`{}`),
		State:       job.StatePending,
		MaxAttempts: 3,
		AvailableAt: now,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateJob(context.Background(), j))

	return j
}

// stubRNG always returns the same draw, letting tests pin which
// tenant a weighted selection lands on.
type stubRNG struct{ v float64 }

func (r stubRNG) Float64() float64 { return r.v }

func TestEngine_Claim_NoEligibleTenants(t *testing.T) {
	s := memory.New()
	e := claim.New(s)

	got, token, err := e.Claim(context.Background(), "worker-1", nil, time.Minute, time.Hour)
	require.ErrorIs(t, err, ferry.ErrNotFound)
	require.Nil(t, got)
	require.Empty(t, token)
}

func TestEngine_Claim_PromotesHighestPriorityJob(t *testing.T) {
	s := memory.New()
	mustCreateTenant(t, s, "acme", 1)

	mustCreateJob(t, s, "acme", 0)
	mustCreateJob(t, s, "acme", 1)
	high := mustCreateJob(t, s, "acme", 5)

	e := claim.New(s)

	claimed, token, err := e.Claim(context.Background(), "worker-1", nil, time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, high.ID, claimed.ID)
	require.True(t, claimed.IsLeased())
	require.Equal(t, "worker-1", claimed.WorkerID)
}

func TestEngine_Claim_DrainsQueueThenReturnsNotFound(t *testing.T) {
	s := memory.New()
	mustCreateTenant(t, s, "acme", 1)
	mustCreateJob(t, s, "acme", 0)

	e := claim.New(s)

	_, _, err := e.Claim(context.Background(), "worker-1", nil, time.Minute, time.Hour)
	require.NoError(t, err)

	_, _, err = e.Claim(context.Background(), "worker-1", nil, time.Minute, time.Hour)
	require.ErrorIs(t, err, ferry.ErrNotFound)
}

func TestEngine_Claim_WeightedSelectionFavorsHeavierTenant(t *testing.T) {
	s := memory.New()
	mustCreateTenant(t, s, "light", 1)
	mustCreateTenant(t, s, "heavy", 9)

	lightJob := mustCreateJob(t, s, "light", 0)
	heavyJob := mustCreateJob(t, s, "heavy", 0)

	// total weight 10, candidates sorted "heavy" then "light"
	// (store/memory.ListEligibleTenants orders by TenantID, "heavy" <
	// "light"); a draw of 0.5*10=5 falls inside heavy's [0,9) share.
	e := claim.New(s).WithRNG(stubRNG{v: 0.5})

	claimed, _, err := e.Claim(context.Background(), "worker-1", nil, time.Minute, time.Hour)
	require.NoError(t, err)
	require.Equal(t, heavyJob.ID, claimed.ID)
	require.NotEqual(t, lightJob.ID, claimed.ID)
}

func TestEngine_Claim_QueueFilter(t *testing.T) {
	s := memory.New()
	mustCreateTenant(t, s, "acme", 1)

	now := time.Now().UTC()
	other := &job.Job{
		ID:          id.NewJobID(),
		TenantID:    "acme",
		Queue:       "other",
		State:       job.StatePending,
		MaxAttempts: 1,
		AvailableAt: now,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateJob(context.Background(), other))

	e := claim.New(s)

	_, _, err := e.Claim(context.Background(), "worker-1", []string{"default"}, time.Minute, time.Hour)
	require.ErrorIs(t, err, ferry.ErrNotFound)
}
