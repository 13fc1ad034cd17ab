package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store/memory"
)

func newPolicy() retry.Policy {
	return retry.NewPolicy(10*time.Millisecond, time.Second, 0.1)
}

// recordingSink records every delivered event and can be told to fail
// delivery for a specific event ID.
type recordingSink struct {
	mu        sync.Mutex
	delivered []id.OutboxID
	failFor   map[id.OutboxID]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failFor: make(map[id.OutboxID]bool)}
}

func (s *recordingSink) Deliver(_ context.Context, e *outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFor[e.ID] {
		return errors.New("delivery failed")
	}

	s.delivered = append(s.delivered, e.ID)

	return nil
}

func TestPublisher_Drain_DeliversInAggregateSequenceOrder(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	aggID := id.NewJobID()

	var ids []id.OutboxID

	for i := 0; i < 3; i++ {
		e := &outbox.Event{ID: id.NewOutboxID(), AggregateID: aggID, Kind: outbox.KindRetried, CreatedAt: now, VisibleAt: now}
		require.NoError(t, s.AppendEvent(ctx, e))
		ids = append(ids, e.ID)
	}

	sink := newRecordingSink()
	pub := outbox.NewPublisher(s, sink, 10, time.Minute, newPolicy(), nil)

	// ClaimBatch hands out one event per aggregate at a time, so each
	// drain delivers the next sequence.
	for i := 0; i < 3; i++ {
		n, err := pub.Drain(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	require.Equal(t, ids, sink.delivered)
}

// TestPublisher_Drain_FailedDeliveryBlocksLaterSameAggregateEvent verifies
// the per-aggregate ordering guarantee (spec §4.6, property P5): a later
// sequence for an aggregate must never be delivered before an earlier,
// still-failing sequence for that same aggregate.
func TestPublisher_Drain_FailedDeliveryBlocksLaterSameAggregateEvent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	aggID := id.NewJobID()

	bad := &outbox.Event{ID: id.NewOutboxID(), AggregateID: aggID, Kind: outbox.KindRetried, CreatedAt: now, VisibleAt: now}
	require.NoError(t, s.AppendEvent(ctx, bad))

	good := &outbox.Event{ID: id.NewOutboxID(), AggregateID: aggID, Kind: outbox.KindRetried, CreatedAt: now, VisibleAt: now}
	require.NoError(t, s.AppendEvent(ctx, good))

	sink := newRecordingSink()
	sink.failFor[bad.ID] = true

	pub := outbox.NewPublisher(s, sink, 10, time.Minute, newPolicy(), nil)

	n, err := pub.Drain(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, sink.delivered)

	// bad is still failing and still the oldest undelivered sequence
	// for aggID, so good must remain blocked even on a later drain.
	n, err = pub.Drain(ctx, now.Add(time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, sink.delivered)

	// Once bad succeeds, good becomes eligible on a subsequent drain.
	sink.failFor[bad.ID] = false

	n, err = pub.Drain(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []id.OutboxID{bad.ID}, sink.delivered)

	n, err = pub.Drain(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []id.OutboxID{bad.ID, good.ID}, sink.delivered)
}

func TestPublisher_Drain_RedeliversAfterVisibilityTimeout(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	aggID := id.NewJobID()
	e := &outbox.Event{ID: id.NewOutboxID(), AggregateID: aggID, Kind: outbox.KindLeased, CreatedAt: now, VisibleAt: now}
	require.NoError(t, s.AppendEvent(ctx, e))

	sink := newRecordingSink()
	sink.failFor[e.ID] = true

	pub := outbox.NewPublisher(s, sink, 10, time.Minute, newPolicy(), nil)

	n, err := pub.Drain(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// Before the retry backoff elapses, the event stays invisible.
	n, err = pub.Drain(ctx, now.Add(time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// Allow delivery to succeed on redrive, well past the backoff window.
	sink.failFor[e.ID] = false

	n, err = pub.Drain(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []id.OutboxID{e.ID}, sink.delivered)
}

func TestPublisher_Drain_NoEventsIsNoop(t *testing.T) {
	s := memory.New()
	sink := newRecordingSink()
	pub := outbox.NewPublisher(s, sink, 10, time.Minute, newPolicy(), nil)

	n, err := pub.Drain(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
