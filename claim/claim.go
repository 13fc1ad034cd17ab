// Package claim implements the lease claim engine (spec §4.3): weighted
// fair tenant selection followed by a single best-candidate pick within
// the winning tenant, promoted to a lease inside one transaction.
package claim

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/store"
	"github.com/ferrywork/ferry/tenant"
)

// RNG selects a weighted-random index. Injectable for deterministic
// tests of the fairness distribution (spec §8 P6).
type RNG interface {
	Float64() float64
}

type defaultRNG struct{}

func (defaultRNG) Float64() float64 { return rand.Float64() } //nolint:gosec // fairness draw, not security-sensitive

// Engine claims jobs on behalf of a poller, enforcing tenant fairness
// and lease exclusivity.
type Engine struct {
	store store.Store
	rng   RNG
}

// New constructs a claim Engine over store.
func New(st store.Store) *Engine {
	return &Engine{store: st, rng: defaultRNG{}}
}

// WithRNG overrides the weighted-selection RNG, for tests.
func (e *Engine) WithRNG(rng RNG) *Engine {
	e.rng = rng

	return e
}

// Claim attempts to lease a single job for workerID, drawing a tenant
// by weight among those with eligible demand in queues (empty means
// any queue), then taking that tenant's highest-priority, oldest
// eligible job (spec §4.3 steps 1-3). Returns nil, zero-value,
// ferry.ErrNotFound if no job is currently claimable.
func (e *Engine) Claim(ctx context.Context, workerID string, queues []string, leaseDuration, executionTimeout time.Duration) (*job.Job, id.LeaseToken, error) {
	tenants, err := e.store.ListEligibleTenants(ctx, queues)
	if err != nil {
		return nil, "", ferry.Wrap(ferry.CodeTransient, "list eligible tenants", err)
	}

	if len(tenants) == 0 {
		return nil, "", ferry.ErrNotFound
	}

	chosen := e.selectWeighted(tenants)

	var (
		claimed *job.Job
		token   id.LeaseToken
	)

	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		candidate, cerr := e.store.ClaimCandidate(ctx, chosen.TenantID, queues, now)
		if cerr != nil {
			return ferry.Wrap(ferry.CodeTransient, "claim candidate", cerr)
		}

		if candidate == nil {
			return ferry.ErrNotFound
		}

		token = id.NewLeaseToken()
		lease := job.Lease{
			Token:     token,
			WorkerID:  workerID,
			ExpiresAt: now.Add(leaseDuration),
			Deadline:  now.Add(executionTimeout),
			Heartbeat: now,
		}

		promoted, perr := e.store.PromoteToLeased(ctx, candidate.ID, lease, now)
		if perr != nil {
			return ferry.Wrap(ferry.CodeTransient, "promote to leased", perr)
		}

		payload, merr := json.Marshal(struct {
			WorkerID string `json:"worker_id"`
			Attempts int    `json:"attempts"`
		}{WorkerID: workerID, Attempts: promoted.Attempts})
		if merr != nil {
			return ferry.Wrap(ferry.CodeInternal, "marshal leased event payload", merr)
		}

		evt := &outbox.Event{
			ID:          id.NewOutboxID(),
			AggregateID: promoted.ID,
			Kind:        outbox.KindLeased,
			Payload:     payload,
			CreatedAt:   now,
			VisibleAt:   now,
		}
		if aerr := e.store.AppendEvent(ctx, evt); aerr != nil {
			return ferry.Wrap(ferry.CodeTransient, "append leased outbox event", aerr)
		}

		claimed = promoted

		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return claimed, token, nil
}

// selectWeighted picks one tenant from candidates with probability
// proportional to tenant.Tenant.EligibleWeight() (spec §4.3 step 1,
// §8 P6).
func (e *Engine) selectWeighted(candidates []*tenant.Tenant) *tenant.Tenant {
	if len(candidates) == 1 {
		return candidates[0]
	}

	total := 0
	for _, t := range candidates {
		total += t.EligibleWeight()
	}

	draw := e.rng.Float64() * float64(total)

	cursor := 0.0

	for _, t := range candidates {
		cursor += float64(t.EligibleWeight())
		if draw < cursor {
			return t
		}
	}

	return candidates[len(candidates)-1]
}
