// Package cluster provides optional leader election for running
// multiple ferry engine instances against the same store (spec §9
// supplemented feature — only one reaper/outbox-drain loop needs to
// run cluster-wide, even though claim itself is safe from every
// instance via row locking).
//
// # Advisory locking
//
// [AdvisoryLeader] wraps Postgres advisory locks
// (pg_try_advisory_lock/pg_advisory_unlock): whichever instance holds
// the lock runs the reaper and outbox publisher tickers; the rest
// stay idle on those loops but keep claiming jobs normally. This is
// deliberately lighter than a full worker registry — ferry has no
// Worker entity, only ad hoc worker_id strings passed into claim and
// heartbeat calls.
package cluster
