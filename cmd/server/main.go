// Command server runs ferry as a standalone HTTP coordinator: the
// postgres store, the claim/lease/reaper/outbox engine, and the HTTP
// control surface, wired together and shut down gracefully on signal
// (spec §6, §9). Exit codes: 0 clean stop, 1 configuration error, 2
// store or metrics failure during startup, or an error from the engine
// or HTTP server while running.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	r "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/api"
	"github.com/ferrywork/ferry/cluster"
	"github.com/ferrywork/ferry/engine"
	"github.com/ferrywork/ferry/metrics"
	"github.com/ferrywork/ferry/noncecache"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/retry"
	"github.com/ferrywork/ferry/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfg ferry.Config
	if err := env.Parse(&cfg); err != nil {
		log.Error("config: parse failed", slog.Any("error", err))

		return 1
	}

	if err := cfg.Validate(); err != nil {
		log.Error("config: invalid", slog.Any("error", err))

		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.New(ctx, cfg.StoreDSN, postgres.WithLogger(log))
	if err != nil {
		log.Error("store: connect failed", slog.Any("error", err))

		return 2
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Error("store: migrate failed", slog.Any("error", err))

		return 2
	}

	m, err := metrics.New(otel.GetMeterProvider().Meter("github.com/ferrywork/ferry"))
	if err != nil {
		log.Error("metrics: init failed", slog.Any("error", err))

		return 2
	}

	policy := retry.NewPolicy(cfg.RetryBase(), cfg.RetryCap(), cfg.RetryJitterRatio)
	pub := outbox.NewPublisher(st, outbox.NewLogSink(log), cfg.OutboxBatch, cfg.LeaseDuration(), policy, log)
	leader := cluster.NewAdvisoryLeader(st.Pool())

	eng := engine.New(st, cfg,
		engine.WithLogger(log),
		engine.WithLeader(leader),
		engine.WithMetrics(m),
		engine.WithOutboxPublisher(pub, time.Second),
	)

	var nonces *noncecache.Cache
	if cfg.RedisAddr != "" {
		nonces = noncecache.New(r.NewClient(&r.Options{Addr: cfg.RedisAddr}), cfg.HMACSkew())
	}

	srv := api.New(st, eng, nonces, cfg, log)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return eng.Run(ctx) })

	g.Go(func() error {
		log.Info("server: listening", slog.String("addr", cfg.ListenAddr))

		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("server: shutdown failed", slog.Any("error", err))
		}

		return eng.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server: exited with error", slog.Any("error", err))

		return 2
	}

	log.Info("server: stopped")

	return 0
}
