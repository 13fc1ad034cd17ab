// Package ferry provides the coordination kernel for a durable,
// multi-tenant job orchestrator: lease-based claiming, heartbeat and
// completion handling, a reaper for abandoned leases, jittered
// exponential backoff with dead-lettering, and a transactional outbox
// for atomic event emission.
//
// Ferry is a library, not a service. Import it, configure a store, and
// drive the claim/lease/reaper/outbox components directly or through
// the engine package's ticker.
//
// # Quick Start
//
//	eng := engine.New(pgStore, cfg)
//
// # Architecture
//
// A relational store (store/postgres, or store/memory for tests) is the
// sole source of truth for job, lease, completion, outbox, and tenant
// state. Every mutation is a single-transaction unit of work; row locks
// and "skip contended rows" claims, not in-memory mutexes, enforce
// cross-row invariants.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers. Lease tokens are a distinct,
// cryptographically random type, deliberately not K-sortable.
package ferry
