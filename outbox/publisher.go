package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/ferrywork/ferry/retry"
)

// Sink delivers a single outbox event to whatever external system
// subscribes to job state transitions (a message broker, webhook
// fanout, etc). Implementations are provided by the embedder; Ferry
// ships only LogSink, which logs each event, matching spec §4.6's
// framing of delivery as
// at-least-once with the subscriber responsible for dedup.
type Sink interface {
	Deliver(ctx context.Context, e *Event) error
}

// Publisher drains the outbox on an interval, leasing a batch at a
// time and handing each event to Sink in (AggregateID, Sequence) order.
type Publisher struct {
	store      Store
	sink       Sink
	batch      int
	visibility time.Duration
	retry      retry.Policy
	log        *slog.Logger
}

// NewPublisher constructs a Publisher. visibility bounds how long a
// claimed-but-undelivered event blocks redelivery if the publisher
// dies mid-batch (spec §4.6).
func NewPublisher(store Store, sink Sink, batch int, visibility time.Duration, backoff retry.Policy, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{store: store, sink: sink, batch: batch, visibility: visibility, retry: backoff, log: log}
}

// Drain claims and delivers up to one batch of events, returning the
// number successfully delivered. It never returns an error for
// individual delivery failures — those are logged and redriven on the
// Publisher's retry.Policy backoff schedule — only for store-level
// failures that
// prevented claiming a batch at all.
func (p *Publisher) Drain(ctx context.Context, now time.Time) (int, error) {
	events, err := p.store.ClaimBatch(ctx, p.batch, p.visibility, now)
	if err != nil {
		return 0, err
	}

	delivered := 0
	failedAggregates := make(map[string]bool)

	for _, e := range events {
		aggID := e.AggregateID.String()

		// ClaimBatch already limits a batch to one event per aggregate,
		// but a failure is handled defensively here too: once an
		// aggregate has a failed delivery in this pass, no later event
		// for it may be delivered out of order (spec §4.6).
		if failedAggregates[aggID] {
			continue
		}

		if err := p.sink.Deliver(ctx, e); err != nil {
			failedAggregates[aggID] = true

			p.log.Warn("outbox: delivery failed, will retry",
				slog.String("event_id", e.ID.String()),
				slog.String("aggregate_id", e.AggregateID.String()),
				slog.Int("attempts", e.Attempts),
				slog.Any("error", err))

			next := p.retry.NextAvailableAt(e.Attempts+1, now)
			if markErr := p.store.MarkFailed(ctx, e.ID, next); markErr != nil {
				p.log.Error("outbox: failed to mark event failed",
					slog.String("event_id", e.ID.String()), slog.Any("error", markErr))
			}

			continue
		}

		if markErr := p.store.MarkDelivered(ctx, e.ID, now); markErr != nil {
			p.log.Error("outbox: failed to mark event delivered",
				slog.String("event_id", e.ID.String()), slog.Any("error", markErr))

			continue
		}

		delivered++
	}

	return delivered, nil
}
