//go:build integration

package cluster_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ferrywork/ferry/cluster"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("ferry_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	return pool
}

func TestAdvisoryLeader_SecondContenderBlockedUntilReleased(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	first := cluster.NewAdvisoryLeader(pool)
	second := cluster.NewAdvisoryLeader(pool)

	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.IsLeader())

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, second.IsLeader())

	require.NoError(t, first.Release(ctx))

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAdvisoryLeader_TryAcquireIsIdempotentWhileHeld(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	leader := cluster.NewAdvisoryLeader(pool)

	ok, err := leader.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = leader.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, leader.Release(ctx))
}
