// Package store defines the aggregate persistence interface. Each
// subsystem (job, tenant, completion, outbox) defines its own store
// interface; the composite Store composes them all plus the
// transaction boundary that lets operations spanning subsystems (a
// completion insert and a job state transition, say) commit together.
// Backends: Postgres and an in-memory implementation for tests.
package store

import (
	"context"

	"github.com/ferrywork/ferry/completion"
	"github.com/ferrywork/ferry/job"
	"github.com/ferrywork/ferry/outbox"
	"github.com/ferrywork/ferry/tenant"
)

// Store is the aggregate persistence interface. A single backend
// (postgres or memory) implements all of it.
type Store interface {
	job.Store
	tenant.Store
	completion.Store
	outbox.Store

	// WithTx runs fn inside a single transaction: operations issued
	// through the ctx it is given are part of that transaction, and a
	// non-nil return from fn rolls it back. Nested calls to WithTx
	// reuse the outer transaction rather than starting a new one.
	WithTx(ctx context.Context, fn func(context.Context) error) error

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
