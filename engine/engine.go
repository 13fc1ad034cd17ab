// Package engine wires the claim engine, lease service, reaper, and
// outbox publisher into a running process (spec §4.7). Claims are
// served on demand through Claim; the reaper and the outbox publisher
// run on two independently-paced tickers coordinated by an errgroup,
// stopped together on context cancellation.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/claim"
	"github.com/ferrywork/ferry/cluster"
	"github.com/ferrywork/ferry/lease"
	"github.com/ferrywork/ferry/metrics"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/queue"
	"github.com/ferrywork/ferry/reaper"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store"
	"golang.org/x/sync/errgroup"
)

// Engine runs the background loops that make ferry a coordinator
// rather than just a passive store: claiming on behalf of pollers that
// ask for it, reaping expired leases, and draining the outbox.
type Engine struct {
	store   store.Store
	cfg     ferry.Config
	claim   *claim.Engine
	lease   *lease.Service
	reaper  *reaper.Reaper
	pub     *outbox.Publisher
	leader  *cluster.AdvisoryLeader
	metrics *metrics.Metrics
	queues  *queue.Manager
	log     *slog.Logger

	reapInterval   time.Duration
	outboxInterval time.Duration
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default slog.Logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithLeader enables cluster coordination: the reaper and outbox
// publisher loops only run while this instance holds the advisory
// lock (spec §9 supplemented feature). Without this option every
// instance runs both loops independently, which is safe but redundant.
func WithLeader(leader *cluster.AdvisoryLeader) Option {
	return func(e *Engine) { e.leader = leader }
}

// WithMetrics attaches OpenTelemetry instruments (spec §4.7d).
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithQueueConfig installs a queue.Manager holding per-queue rate and
// concurrency limits, reachable through Queues (spec §9 supplemented
// feature). Claim does not consult it: the limits apply only where a
// caller uses the manager's Acquire and Release.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(e *Engine) { e.queues = queue.NewManager(configs...) }
}

// WithOutboxPublisher attaches a publisher draining the transactional
// outbox (spec §4.6). Without one, outbox events accumulate
// undelivered — a valid configuration for embedders that drain the
// outbox out-of-process.
func WithOutboxPublisher(pub *outbox.Publisher, interval time.Duration) Option {
	return func(e *Engine) {
		e.pub = pub
		e.outboxInterval = interval
	}
}

// New constructs an Engine over st using cfg's lease/reap/retry
// settings.
func New(st store.Store, cfg ferry.Config, opts ...Option) *Engine {
	policy := retry.NewPolicy(cfg.RetryBase(), cfg.RetryCap(), cfg.RetryJitterRatio)

	e := &Engine{
		store:          st,
		cfg:            cfg,
		claim:          claim.New(st),
		lease:          lease.New(st, policy),
		reaper:         reaper.New(st, policy, cfg.ClaimBatch, nil),
		log:            slog.Default(),
		reapInterval:   cfg.ReapInterval(),
		outboxInterval: time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Claim exposes the claim engine for poller-facing callers (HTTP
// handlers, in-process SDKs).
func (e *Engine) Claim() *claim.Engine { return e.claim }

// Lease exposes the lease service for poller-facing callers.
func (e *Engine) Lease() *lease.Service { return e.lease }

// Queues exposes the queue rate/concurrency manager, or nil if
// WithQueueConfig was not used.
func (e *Engine) Queues() *queue.Manager { return e.queues }

// Config returns the engine's configuration.
func (e *Engine) Config() ferry.Config { return e.cfg }

// Run blocks, running the reaper and (if configured) the outbox
// publisher on their own tickers until ctx is canceled. It returns the
// first non-context-cancellation error from either loop.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.runReaper(ctx) })

	if e.pub != nil {
		g.Go(func() error { return e.runOutboxPublisher(ctx) })
	}

	return g.Wait()
}

func (e *Engine) holdsLeadership(ctx context.Context) bool {
	if e.leader == nil {
		return true
	}

	held, err := e.leader.TryAcquire(ctx)
	if err != nil {
		e.log.Warn("engine: advisory leader acquire failed", slog.Any("error", err))

		return false
	}

	return held
}

func (e *Engine) runReaper(ctx context.Context) error {
	ticker := time.NewTicker(e.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !e.holdsLeadership(ctx) {
				continue
			}

			n, err := e.reaper.Sweep(ctx)
			if err != nil {
				e.log.Error("engine: reaper sweep failed", slog.Any("error", err))

				continue
			}

			if n > 0 {
				e.log.Info("engine: reaped expired leases", slog.Int("count", n))
			}

			e.metrics.RecordReapedLeases(ctx, int64(n))
		}
	}
}

func (e *Engine) runOutboxPublisher(ctx context.Context) error {
	ticker := time.NewTicker(e.outboxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !e.holdsLeadership(ctx) {
				continue
			}

			n, err := e.pub.Drain(ctx, time.Now().UTC())
			if err != nil {
				e.log.Error("engine: outbox drain failed", slog.Any("error", err))

				continue
			}

			if n > 0 {
				e.log.Debug("engine: delivered outbox events", slog.Int("count", n))
			}
		}
	}
}

// ReapNow runs a single reaper sweep immediately, bypassing the
// ticker interval. Used by the admin reap endpoint (POST
// /v1/admin/reap) to let
// an operator force reclamation without waiting for the next tick.
func (e *Engine) ReapNow(ctx context.Context) (int, error) {
	return e.reaper.Sweep(ctx)
}

// Stop releases any held leadership lock. Callers should call this
// after Run returns during a graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.leader == nil {
		return nil
	}

	return e.leader.Release(ctx)
}
