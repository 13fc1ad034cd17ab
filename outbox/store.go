package outbox

import (
	"context"
	"time"

	"github.com/ferrywork/ferry/id"
)

// Store defines the persistence contract for outbox events.
type Store interface {
	// AppendEvent persists e, assigning it the next Sequence for
	// e.AggregateID. Callers append inside the same store transaction
	// as the job mutation that produced the event (spec invariant I6).
	AppendEvent(ctx context.Context, e *Event) error

	// ClaimBatch selects and leases up to limit undelivered events, at
	// most one per aggregate: the aggregate's oldest undelivered
	// Sequence, and only once its VisibleAt has passed. It extends
	// VisibleAt by visibility so a crashed publisher's claim eventually
	// becomes reclaimable (spec §4.6 visibility timeout). Events are
	// returned ordered by (AggregateID, Sequence).
	ClaimBatch(ctx context.Context, limit int, visibility time.Duration, now time.Time) ([]*Event, error)

	// MarkDelivered records successful delivery of eventID.
	MarkDelivered(ctx context.Context, eventID id.OutboxID, now time.Time) error

	// MarkFailed releases eventID back for redelivery at nextVisibleAt
	// and increments its attempt counter.
	MarkFailed(ctx context.Context, eventID id.OutboxID, nextVisibleAt time.Time) error
}
