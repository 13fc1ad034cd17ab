// Package reaper reclaims jobs whose lease or execution deadline has
// passed without a heartbeat or completion (spec §4.5): it requeues
// them with backoff or dead-letters them exactly like a worker-reported
// failure would, so downstream consumers see one failure path rather
// than two.
package reaper

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store"
)

// Reaper periodically scans for and reclaims expired leases.
type Reaper struct {
	store  store.Store
	policy retry.Policy
	batch  int
	log    *slog.Logger
}

// New constructs a Reaper. batch bounds how many expired leases are
// reclaimed per Sweep call (spec §4.5); engine.New passes
// Config.ClaimBatch.
func New(st store.Store, policy retry.Policy, batch int, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}

	return &Reaper{store: st, policy: policy, batch: batch, log: log}
}

// Sweep reclaims up to one batch of expired leases, returning how many
// were reclaimed. Each reclaim happens in its own transaction so one
// row's failure does not block the rest of the batch.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	expired, err := r.store.ListExpiredLeases(ctx, now, r.batch)
	if err != nil {
		return 0, ferry.Wrap(ferry.CodeTransient, "list expired leases", err)
	}

	reclaimed := 0

	for _, j := range expired {
		if err := r.reclaim(ctx, j, now); err != nil {
			r.log.Error("reaper: failed to reclaim job",
				slog.String("job_id", j.ID.String()), slog.Any("error", err))

			continue
		}

		reclaimed++
	}

	return reclaimed, nil
}

func (r *Reaper) reclaim(ctx context.Context, j *job.Job, now time.Time) error {
	return r.store.WithTx(ctx, func(ctx context.Context) error {
		dlq := j.Attempts+1 >= j.MaxAttempts
		next := r.policy.NextAvailableAt(j.Attempts+1, now)
		errMsg := "lease expired without heartbeat or completion"

		if j.ExecutionDeadline != nil && j.ExecutionDeadline.Before(now) {
			errMsg = "execution deadline exceeded"
		}

		updated, err := r.store.ExpireLease(ctx, j.ID, errMsg, next, now, dlq)
		if err != nil {
			return err
		}

		kind := outbox.KindRetried
		if dlq {
			kind = outbox.KindDLQ
		}

		payload, err := json.Marshal(map[string]any{"error": errMsg, "reaped": true})
		if err != nil {
			return ferry.Wrap(ferry.CodeInternal, "marshal outbox event payload", err)
		}

		return r.store.AppendEvent(ctx, &outbox.Event{
			ID:          id.NewOutboxID(),
			AggregateID: updated.ID,
			Kind:        kind,
			Payload:     payload,
			CreatedAt:   now,
			VisibleAt:   now,
		})
	})
}
