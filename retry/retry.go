// Package retry computes job retry delays (spec §4.2): exponential
// backoff with an additive jitter term, so the jittered delay is never
// shorter than the unjittered base — unlike full-jitter strategies,
// which can return close to zero and stampede the queue the moment a
// large batch fails together.
package retry

import (
	"math/bits"
	"math/rand/v2"
	"time"
)

// RNG is the source of jitter randomness. Injectable so tests can
// assert exact delays with a seeded generator.
type RNG interface {
	Float64() float64
}

type defaultRNG struct{}

func (defaultRNG) Float64() float64 { return rand.Float64() } //nolint:gosec // jitter, not security-sensitive

// Policy computes the next available-at time for a failed job (spec
// §4.2): delay = min(base*2^(attempts-1), cap) + uniform(0, jitterRatio*delay).
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	JitterRatio float64
	RNG         RNG
}

// NewPolicy constructs a Policy from config-derived values, defaulting
// to a crypto-unrelated math/rand/v2 source.
func NewPolicy(base, cap time.Duration, jitterRatio float64) Policy {
	return Policy{Base: base, Cap: cap, JitterRatio: jitterRatio, RNG: defaultRNG{}}
}

// Delay returns the backoff duration for the given attempt count
// (1-indexed: attempts is the total number of attempts made so far,
// including the one that just failed).
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	// Clamp the shift exponent before computing base*2^(attempts-1): a
	// large attempts count would otherwise overflow time.Duration and
	// wrap into a small or negative bound that escapes the cap check
	// below. maxShift is the largest exponent Base can be left-shifted
	// by without overflowing int64.
	shift := attempts - 1

	if p.Base > 0 {
		maxShift := bits.LeadingZeros64(uint64(p.Base)) - 1
		if shift > maxShift {
			shift = maxShift
		}
	}

	bound := p.Base << uint(shift) //nolint:gosec // shift is clamped so the shift never overflows int64
	if p.Cap > 0 && bound > p.Cap {
		bound = p.Cap
	}

	rng := p.RNG
	if rng == nil {
		rng = defaultRNG{}
	}

	jitter := time.Duration(rng.Float64() * p.JitterRatio * float64(bound))

	return bound + jitter
}

// NextAvailableAt returns the time a job should next become eligible
// for claiming after failing its attempts-th attempt.
func (p Policy) NextAvailableAt(attempts int, now time.Time) time.Time {
	return now.Add(p.Delay(attempts))
}
