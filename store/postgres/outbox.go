package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/outbox"
)

// AppendEvent assigns e the next Sequence for e.AggregateID. Callers
// invoke this inside the same transaction as the job-row mutation that
// produced the event, and that mutation already holds a row lock on
// ferry_jobs for AggregateID — which serializes concurrent appends for
// the same job without a separate sequence table.
func (s *Store) AppendEvent(ctx context.Context, e *outbox.Event) error {
	var next int64

	err := s.db(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM ferry_outbox_events WHERE aggregate_id = $1`,
		e.AggregateID.String(),
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("ferry/postgres: append event: next sequence: %w", err)
	}

	e.Sequence = next

	_, err = s.db(ctx).Exec(ctx, `
		INSERT INTO ferry_outbox_events (id, aggregate_id, sequence, kind, payload, created_at, visible_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
		e.ID.String(), e.AggregateID.String(), e.Sequence, string(e.Kind), e.Payload, e.CreatedAt, e.VisibleAt,
	)
	if err != nil {
		return fmt.Errorf("ferry/postgres: append event: %w", err)
	}

	return nil
}

// ClaimBatch claims at most one undelivered event per aggregate — the
// oldest undelivered sequence only, once its visible_at has passed —
// so a later event for the same
// aggregate can never be marked delivered ahead of an earlier one
// still in flight or awaiting redelivery (spec §4.6 per-aggregate
// ordering).
func (s *Store) ClaimBatch(ctx context.Context, limit int, visibility time.Duration, now time.Time) ([]*outbox.Event, error) {
	rows, err := s.db(ctx).Query(ctx, `
		WITH candidates AS (
			SELECT id FROM (
				SELECT id, visible_at, row_number() OVER (PARTITION BY aggregate_id ORDER BY sequence) AS rn
				FROM ferry_outbox_events
				WHERE delivered_at IS NULL
			) ranked
			WHERE rn = 1 AND visible_at <= $1
			ORDER BY id
			LIMIT $3
		),
		locked AS (
			SELECT id FROM ferry_outbox_events
			WHERE id IN (SELECT id FROM candidates)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ferry_outbox_events SET visible_at = $2
		WHERE id IN (SELECT id FROM locked)
		RETURNING id, aggregate_id, sequence, kind, payload, created_at, visible_at, delivered_at, attempts`,
		now, now.Add(visibility), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: claim outbox batch: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}

	sortEventsByAggregateSequence(events)

	return events, nil
}

func (s *Store) MarkDelivered(ctx context.Context, eventID id.OutboxID, now time.Time) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE ferry_outbox_events SET delivered_at = $2 WHERE id = $1`,
		eventID.String(), now,
	)
	if err != nil {
		return fmt.Errorf("ferry/postgres: mark event delivered: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ferry.ErrNotFound
	}

	return nil
}

func (s *Store) MarkFailed(ctx context.Context, eventID id.OutboxID, nextVisibleAt time.Time) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE ferry_outbox_events SET visible_at = $2, attempts = attempts + 1 WHERE id = $1`,
		eventID.String(), nextVisibleAt,
	)
	if err != nil {
		return fmt.Errorf("ferry/postgres: mark event failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ferry.ErrNotFound
	}

	return nil
}

func collectEvents(rows pgx.Rows) ([]*outbox.Event, error) {
	var events []*outbox.Event

	for rows.Next() {
		var (
			e        outbox.Event
			idStr    string
			aggIDStr string
			kindStr  string
		)

		if err := rows.Scan(&idStr, &aggIDStr, &e.Sequence, &kindStr, &e.Payload, &e.CreatedAt, &e.VisibleAt, &e.DeliveredAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("ferry/postgres: scan outbox event row: %w", err)
		}

		e.Kind = outbox.Kind(kindStr)

		parsedID, err := id.ParseOutboxID(idStr)
		if err != nil {
			return nil, fmt.Errorf("ferry/postgres: parse outbox id %q: %w", idStr, err)
		}

		parsedAggID, err := id.ParseJobID(aggIDStr)
		if err != nil {
			return nil, fmt.Errorf("ferry/postgres: parse aggregate id %q: %w", aggIDStr, err)
		}

		e.ID = parsedID
		e.AggregateID = parsedAggID

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ferry/postgres: iterate outbox event rows: %w", err)
	}

	return events, nil
}

// sortEventsByAggregateSequence re-establishes (aggregate_id, sequence)
// order after the UPDATE ... RETURNING above, whose row order is not
// guaranteed to match the inner SELECT's ORDER BY.
func sortEventsByAggregateSequence(events []*outbox.Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.AggregateID.String() != b.AggregateID.String() {
			return a.AggregateID.String() < b.AggregateID.String()
		}

		return a.Sequence < b.Sequence
	})
}
