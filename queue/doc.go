// Package queue defines per-queue / per-tenant rate and concurrency
// limits held in an in-process [Manager]. The store-enforced claim
// ordering (spec §4.3) does not consult the Manager; it limits only
// the callers that use Acquire and Release.
//
// Jobs carry a Queue field that determines which queue they belong to.
// Pollers name the queues they claim from in each claim request (none
// means all queues).
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "email",
//	    MaxConcurrency: 5,      // max 5 concurrent email jobs
//	    RateLimit:      10,     // max 10 jobs/s dequeued from this queue
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// Pass configs when building the engine, which exposes the resulting
// Manager through Engine.Queues:
//
//	engine.New(store, cfg,
//	    engine.WithQueueConfig(
//	        queue.Config{Name: "critical", MaxConcurrency: 20},
//	        queue.Config{Name: "bulk", RateLimit: 5, RateBurst: 10},
//	    ),
//	)
//
// # Manager
//
// [Manager] enforces per-queue and per-tenant limits on Acquire.
// It uses a token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName, tenantID) {
//	    defer m.Release(queueName, tenantID)
//	    // process the job
//	}
//
// Queues without a [Config] have no limits.
package queue
