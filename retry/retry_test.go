package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrywork/ferry/retry"
)

// fixedRNG always returns the same Float64 value, for deterministic
// assertions on the jitter term.
type fixedRNG float64

func (f fixedRNG) Float64() float64 { return float64(f) }

func TestPolicy_Delay_ExponentialGrowth(t *testing.T) {
	p := retry.Policy{Base: time.Second, Cap: time.Hour, JitterRatio: 0, RNG: fixedRNG(0)}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
}

func TestPolicy_Delay_CappedAtMax(t *testing.T) {
	p := retry.Policy{Base: time.Second, Cap: 5 * time.Second, JitterRatio: 0, RNG: fixedRNG(0)}

	assert.Equal(t, 5*time.Second, p.Delay(10))
}

func TestPolicy_Delay_JitterIsAdditiveNeverNegative(t *testing.T) {
	// With JitterRatio=0.5 and a max RNG draw of 1.0, jitter adds up to
	// half the base delay on top — never subtracts from it.
	p := retry.Policy{Base: time.Second, Cap: time.Minute, JitterRatio: 0.5, RNG: fixedRNG(1)}

	got := p.Delay(1)
	require.GreaterOrEqual(t, got, time.Second)
	assert.Equal(t, 1500*time.Millisecond, got)
}

func TestPolicy_Delay_ZeroJitterRatioIsDeterministic(t *testing.T) {
	p := retry.Policy{Base: 100 * time.Millisecond, Cap: time.Second, JitterRatio: 0, RNG: fixedRNG(0.9)}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
}

func TestPolicy_Delay_AttemptsBelowOneTreatedAsOne(t *testing.T) {
	p := retry.Policy{Base: time.Second, Cap: time.Minute, JitterRatio: 0, RNG: fixedRNG(0)}

	assert.Equal(t, p.Delay(1), p.Delay(0))
}

// TestPolicy_Delay_LargeAttemptsNeverOverflowsNegative guards against
// left-shifting Base past time.Duration's range before the Cap clamp
// applies, which would otherwise wrap the bound into a negative value.
func TestPolicy_Delay_LargeAttemptsNeverOverflowsNegative(t *testing.T) {
	p := retry.Policy{Base: time.Second, Cap: time.Minute, JitterRatio: 0, RNG: fixedRNG(0)}

	got := p.Delay(1000)
	assert.Equal(t, time.Minute, got)
	assert.GreaterOrEqual(t, got, time.Duration(0))
}

func TestPolicy_NextAvailableAt(t *testing.T) {
	p := retry.Policy{Base: time.Second, Cap: time.Minute, JitterRatio: 0, RNG: fixedRNG(0)}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Second), p.NextAvailableAt(1, now))
}
