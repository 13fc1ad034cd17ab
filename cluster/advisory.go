package cluster

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// leaderLockKey is a fixed 64-bit advisory lock key identifying the
// single "reaper/outbox leader" role. An arbitrary constant is fine:
// the key space is process-wide to this deployment, not shared with
// any other advisory lock user.
const leaderLockKey = 84728472

// AdvisoryLeader holds a dedicated Postgres connection and contends
// for session-scoped leadership over it. The lock releases
// automatically if the connection drops, so a crashed instance never
// needs an explicit unlock to let another instance take over.
type AdvisoryLeader struct {
	pool   *pgxpool.Pool
	conn   *pgxpool.Conn
	isHeld bool
}

// NewAdvisoryLeader constructs an AdvisoryLeader over pool.
func NewAdvisoryLeader(pool *pgxpool.Pool) *AdvisoryLeader {
	return &AdvisoryLeader{pool: pool}
}

// TryAcquire attempts to become leader, reusing a previously acquired
// connection if this instance already holds the lock.
func (a *AdvisoryLeader) TryAcquire(ctx context.Context) (bool, error) {
	if a.isHeld {
		return true, nil
	}

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("cluster: acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", leaderLockKey).Scan(&acquired); err != nil {
		conn.Release()

		return false, fmt.Errorf("cluster: pg_try_advisory_lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return false, nil
	}

	a.conn = conn
	a.isHeld = true

	return true, nil
}

// IsLeader reports whether this instance currently holds leadership.
func (a *AdvisoryLeader) IsLeader() bool { return a.isHeld }

// Release gives up leadership explicitly, e.g. during a graceful
// shutdown so another instance can take over immediately rather than
// waiting for this connection to be detected as dropped.
func (a *AdvisoryLeader) Release(ctx context.Context) error {
	if !a.isHeld {
		return nil
	}

	_, err := a.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", leaderLockKey)
	a.conn.Release()
	a.conn = nil
	a.isHeld = false

	if err != nil {
		return fmt.Errorf("cluster: pg_advisory_unlock: %w", err)
	}

	return nil
}
