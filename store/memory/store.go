// Package memory is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and local
// development, not production use — WithTx serializes all access
// behind a single mutex rather than providing true isolation levels.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/completion"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/tenant"
)

var (
	_ job.Store        = (*Store)(nil)
	_ tenant.Store      = (*Store)(nil)
	_ completion.Store  = (*Store)(nil)
	_ outbox.Store      = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	jobs        map[string]*job.Job
	jobsByIdem  map[string]string // "tenantID:key" -> jobID
	tenants     map[string]*tenant.Tenant
	completions map[string]*completion.Completion // keyed by jobID
	events      map[string]*outbox.Event
	eventSeq    map[string]int64 // aggregateID -> last assigned sequence
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]*job.Job),
		jobsByIdem:  make(map[string]string),
		tenants:     make(map[string]*tenant.Tenant),
		completions: make(map[string]*completion.Completion),
		events:      make(map[string]*outbox.Event),
		eventSeq:    make(map[string]int64),
	}
}

type txMarker struct{}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txMarker{}).(bool)
	return v
}

// WithTx serializes fn behind the store's single mutex, so every
// operation issued through the context it receives is atomic with
// respect to the rest of the store. There is no rollback: writes fn
// made before returning an error stay in place.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(context.WithValue(ctx, txMarker{}, true))
}

func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}

	s.mu.Lock()

	return s.mu.Unlock
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func idemKey(tenantID, key string) string { return tenantID + ":" + key }

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	defer s.lock(ctx)()

	if j.IdempotencyKeyCreate != "" {
		if existingID, ok := s.jobsByIdem[idemKey(j.TenantID, j.IdempotencyKeyCreate)]; ok {
			existing := s.jobs[existingID]
			*j = *existing

			return job.ErrIdempotentReplay
		}
	}

	cp := *j
	s.jobs[j.ID.String()] = &cp

	if j.IdempotencyKeyCreate != "" {
		s.jobsByIdem[idemKey(j.TenantID, j.IdempotencyKeyCreate)] = j.ID.String()
	}

	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	cp := *j

	return &cp, nil
}

func (s *Store) GetJobByIdempotencyKey(ctx context.Context, tenantID, key string) (*job.Job, error) {
	defer s.lock(ctx)()

	jobID, ok := s.jobsByIdem[idemKey(tenantID, key)]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	cp := *s.jobs[jobID]

	return &cp, nil
}

func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	defer s.lock(ctx)()

	result := make([]*job.Job, 0, len(s.jobs))

	for _, j := range s.jobs {
		if j.State != state {
			continue
		}

		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}

		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAt.Before(result[k].CreatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}

		result = result[opts.Offset:]
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	defer s.lock(ctx)()

	var count int64

	for _, j := range s.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}

		if opts.State != "" && j.State != opts.State {
			continue
		}

		count++
	}

	return count, nil
}

func (s *Store) ClaimCandidate(ctx context.Context, tenantID string, queues []string, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	var best *job.Job

	for _, j := range s.jobs {
		if j.State != job.StatePending || j.TenantID != tenantID {
			continue
		}

		if j.AvailableAt.After(now) {
			continue
		}

		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}

		if best == nil {
			best = j

			continue
		}

		if j.Priority != best.Priority {
			if j.Priority > best.Priority {
				best = j
			}

			continue
		}

		if j.CreatedAt.Before(best.CreatedAt) {
			best = j
		}
	}

	if best == nil {
		return nil, nil
	}

	cp := *best

	return &cp, nil
}

func (s *Store) PromoteToLeased(ctx context.Context, jobID id.JobID, lease job.Lease, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if j.State != job.StatePending {
		return nil, ferry.ErrNotFound
	}

	j.State = job.StateLeased
	j.WorkerID = lease.WorkerID
	j.LeaseToken = lease.Token.String()
	expires := lease.ExpiresAt
	j.LeaseExpiresAt = &expires
	deadline := lease.Deadline
	j.ExecutionDeadline = &deadline
	started := now
	j.StartedAt = &started
	hb := now
	j.LastHeartbeatAt = &hb
	j.UpdatedAt = now

	cp := *j

	return &cp, nil
}

func (s *Store) verifyLeaseHolder(j *job.Job, token id.LeaseToken) bool {
	return j.State == job.StateLeased && j.LeaseToken == token.String()
}

func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, token id.LeaseToken, newExpiresAt, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if !s.verifyLeaseHolder(j, token) {
		return nil, ferry.ErrLeaseInvalid
	}

	j.LeaseExpiresAt = &newExpiresAt
	hb := now
	j.LastHeartbeatAt = &hb
	j.UpdatedAt = now

	cp := *j

	return &cp, nil
}

func (s *Store) MarkSucceeded(ctx context.Context, jobID id.JobID, token id.LeaseToken, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if !s.verifyLeaseHolder(j, token) {
		return nil, ferry.ErrLeaseInvalid
	}

	j.State = job.StateSucceeded
	j.UpdatedAt = now

	cp := *j

	return &cp, nil
}

func (s *Store) MarkRetry(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, nextAvailableAt, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if !s.verifyLeaseHolder(j, token) {
		return nil, ferry.ErrLeaseInvalid
	}

	s.clearLease(j)
	j.State = job.StatePending
	j.AvailableAt = nextAvailableAt
	j.LastError = errMsg
	j.Attempts++
	j.UpdatedAt = now

	cp := *j

	return &cp, nil
}

func (s *Store) MarkDLQ(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if !s.verifyLeaseHolder(j, token) {
		return nil, ferry.ErrLeaseInvalid
	}

	s.clearLease(j)
	j.State = job.StateDLQ
	j.LastError = errMsg
	j.Attempts++
	j.UpdatedAt = now

	cp := *j

	return &cp, nil
}

func (s *Store) CancelJob(ctx context.Context, jobID id.JobID, now time.Time) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if j.Terminal() {
		return nil, ferry.ErrBadRequest
	}

	s.clearLease(j)
	j.State = job.StateCanceled
	j.UpdatedAt = now

	cp := *j

	return &cp, nil
}

func (s *Store) ExpireLease(ctx context.Context, jobID id.JobID, errMsg string, nextAvailableAt, now time.Time, dlq bool) (*job.Job, error) {
	defer s.lock(ctx)()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	if j.State != job.StateLeased {
		return nil, ferry.ErrNotFound
	}

	s.clearLease(j)
	j.LastError = errMsg
	j.Attempts++
	j.UpdatedAt = now

	if dlq {
		j.State = job.StateDLQ
	} else {
		j.State = job.StatePending
		j.AvailableAt = nextAvailableAt
	}

	cp := *j

	return &cp, nil
}

func (s *Store) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	defer s.lock(ctx)()

	result := make([]*job.Job, 0)

	for _, j := range s.jobs {
		if j.State != job.StateLeased {
			continue
		}

		expired := j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now)
		overdue := j.ExecutionDeadline != nil && j.ExecutionDeadline.Before(now)

		if !expired && !overdue {
			continue
		}

		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].LeaseExpiresAt.Before(*result[k].LeaseExpiresAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (s *Store) clearLease(j *job.Job) {
	j.WorkerID = ""
	j.LeaseToken = ""
	j.LeaseExpiresAt = nil
	j.LastHeartbeatAt = nil
	j.StartedAt = nil
	j.ExecutionDeadline = nil
}

// ──────────────────────────────────────────────────
// Tenant Store
// ──────────────────────────────────────────────────

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	defer s.lock(ctx)()

	if _, exists := s.tenants[t.TenantID]; exists {
		return ferry.ErrBadRequest
	}

	cp := *t
	s.tenants[t.TenantID] = &cp

	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	defer s.lock(ctx)()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	cp := *t

	return &cp, nil
}

func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*tenant.Tenant, error) {
	defer s.lock(ctx)()

	for _, t := range s.tenants {
		if t.APIKeyHash == hash {
			cp := *t

			return &cp, nil
		}
	}

	return nil, ferry.ErrNotFound
}

func (s *Store) ListEligibleTenants(ctx context.Context, queues []string) ([]*tenant.Tenant, error) {
	defer s.lock(ctx)()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	haveDemand := make(map[string]bool)
	now := time.Now().UTC()

	for _, j := range s.jobs {
		if j.State != job.StatePending || j.AvailableAt.After(now) {
			continue
		}

		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}

		haveDemand[j.TenantID] = true
	}

	result := make([]*tenant.Tenant, 0, len(haveDemand))

	for tenantID := range haveDemand {
		t, ok := s.tenants[tenantID]
		if !ok {
			continue
		}

		if t.InflightCap > 0 && s.countLeasedLocked(tenantID) >= t.InflightCap {
			continue
		}

		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool { return result[i].TenantID < result[k].TenantID })

	return result, nil
}

func (s *Store) countLeasedLocked(tenantID string) int {
	n := 0

	for _, j := range s.jobs {
		if j.TenantID == tenantID && j.State == job.StateLeased {
			n++
		}
	}

	return n
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	defer s.lock(ctx)()

	if _, ok := s.tenants[t.TenantID]; !ok {
		return ferry.ErrNotFound
	}

	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	s.tenants[t.TenantID] = &cp

	return nil
}

// ──────────────────────────────────────────────────
// Completion Store
// ──────────────────────────────────────────────────

func (s *Store) InsertCompletion(ctx context.Context, c *completion.Completion) error {
	defer s.lock(ctx)()

	existing, ok := s.completions[c.JobID.String()]
	if ok {
		if existing.IdempotencyKeyComplete == c.IdempotencyKeyComplete {
			*c = *existing

			return nil
		}

		return completion.ErrAlreadyRecorded
	}

	cp := *c
	s.completions[c.JobID.String()] = &cp

	return nil
}

func (s *Store) GetCompletionByJob(ctx context.Context, jobID id.JobID) (*completion.Completion, error) {
	defer s.lock(ctx)()

	c, ok := s.completions[jobID.String()]
	if !ok {
		return nil, ferry.ErrNotFound
	}

	cp := *c

	return &cp, nil
}

// ──────────────────────────────────────────────────
// Outbox Store
// ──────────────────────────────────────────────────

func (s *Store) AppendEvent(ctx context.Context, e *outbox.Event) error {
	defer s.lock(ctx)()

	key := e.AggregateID.String()
	s.eventSeq[key]++
	e.Sequence = s.eventSeq[key]

	cp := *e
	s.events[e.ID.String()] = &cp

	return nil
}

func (s *Store) ClaimBatch(ctx context.Context, limit int, visibility time.Duration, now time.Time) ([]*outbox.Event, error) {
	defer s.lock(ctx)()

	candidates := make([]*outbox.Event, 0)

	for _, e := range s.events {
		if e.DeliveredAt != nil {
			continue
		}

		candidates = append(candidates, e)
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].AggregateID.String() != candidates[k].AggregateID.String() {
			return candidates[i].AggregateID.String() < candidates[k].AggregateID.String()
		}

		return candidates[i].Sequence < candidates[k].Sequence
	})

	// Only the oldest undelivered event per aggregate is eligible, and
	// only once its VisibleAt has passed, so per-aggregate ordering (spec
	// §4.6) can never be violated by a later sequence overtaking an
	// earlier one still in flight or retrying.
	oldestPerAggregate := make([]*outbox.Event, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, e := range candidates {
		key := e.AggregateID.String()
		if seen[key] {
			continue
		}

		seen[key] = true

		if e.VisibleAt.After(now) {
			continue
		}

		oldestPerAggregate = append(oldestPerAggregate, e)
	}

	candidates = oldestPerAggregate

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*outbox.Event, len(candidates))

	for i, e := range candidates {
		e.VisibleAt = now.Add(visibility)
		cp := *e
		result[i] = &cp
	}

	return result, nil
}

func (s *Store) MarkDelivered(ctx context.Context, eventID id.OutboxID, now time.Time) error {
	defer s.lock(ctx)()

	e, ok := s.events[eventID.String()]
	if !ok {
		return ferry.ErrNotFound
	}

	e.DeliveredAt = &now

	return nil
}

func (s *Store) MarkFailed(ctx context.Context, eventID id.OutboxID, nextVisibleAt time.Time) error {
	defer s.lock(ctx)()

	e, ok := s.events[eventID.String()]
	if !ok {
		return ferry.ErrNotFound
	}

	e.Attempts++
	e.VisibleAt = nextVisibleAt

	return nil
}
