// Package store defines the aggregate persistence interface.
//
// Each subsystem (job, tenant, completion, outbox) defines its own
// store interface. The composite [Store] composes them all. A single backend
// need only implement Store to satisfy every subsystem's persistence contract.
//
// The composite interface:
//
//	type Store interface {
//	    job.Store
//	    tenant.Store
//	    completion.Store
//	    outbox.Store
//
//	    WithTx(ctx context.Context, fn func(context.Context) error) error
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/postgres — PostgreSQL backend using pgx/v5
//
// # Usage
//
//	import "github.com/ferrywork/ferry/store/postgres"
//
//	s, err := postgres.New(ctx, "postgres://localhost/ferry")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	eng := engine.New(s, cfg)
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
