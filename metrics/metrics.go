// Package metrics wires the dispatcher's runtime signals into
// OpenTelemetry instruments (spec §4.7d): queue depth, lease age,
// claim latency, and outbox lag.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments the engine records against. All
// instruments are safe for concurrent use per the otel/metric API
// contract.
type Metrics struct {
	QueueDepth    metric.Int64Gauge
	LeaseAge      metric.Float64Histogram
	ClaimLatency  metric.Float64Histogram
	ClaimMisses   metric.Int64Counter
	OutboxLag     metric.Float64Gauge
	ReapedLeases  metric.Int64Counter
}

// New constructs Metrics from meter, prefixing every instrument name
// with "ferry.".
func New(meter metric.Meter) (*Metrics, error) {
	queueDepth, err := meter.Int64Gauge("ferry.queue_depth",
		metric.WithDescription("number of pending jobs, per queue"))
	if err != nil {
		return nil, fmt.Errorf("metrics: queue_depth gauge: %w", err)
	}

	leaseAge, err := meter.Float64Histogram("ferry.lease_age_seconds",
		metric.WithDescription("age of active leases at observation time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("metrics: lease_age histogram: %w", err)
	}

	claimLatency, err := meter.Float64Histogram("ferry.claim_latency_seconds",
		metric.WithDescription("time to complete a single claim attempt"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("metrics: claim_latency histogram: %w", err)
	}

	claimMisses, err := meter.Int64Counter("ferry.claim_misses_total",
		metric.WithDescription("claim attempts that found no eligible job"))
	if err != nil {
		return nil, fmt.Errorf("metrics: claim_misses counter: %w", err)
	}

	outboxLag, err := meter.Float64Gauge("ferry.outbox_lag_seconds",
		metric.WithDescription("age of the oldest undelivered outbox event"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("metrics: outbox_lag gauge: %w", err)
	}

	reapedLeases, err := meter.Int64Counter("ferry.reaped_leases_total",
		metric.WithDescription("leases reclaimed by the reaper"))
	if err != nil {
		return nil, fmt.Errorf("metrics: reaped_leases counter: %w", err)
	}

	return &Metrics{
		QueueDepth:   queueDepth,
		LeaseAge:     leaseAge,
		ClaimLatency: claimLatency,
		ClaimMisses:  claimMisses,
		OutboxLag:    outboxLag,
		ReapedLeases: reapedLeases,
	}, nil
}

// RecordClaimLatency records a claim attempt's latency in seconds.
func (m *Metrics) RecordClaimLatency(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}

	m.ClaimLatency.Record(ctx, seconds)
}

// RecordReapedLeases increments the reaped-leases counter by n.
func (m *Metrics) RecordReapedLeases(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}

	m.ReapedLeases.Add(ctx, n)
}
