// Package tenant defines the Tenant entity: the unit of weighted-fair
// dispatch and in-flight admission control (spec §3, §4.3 step 1).
package tenant

import (
	"time"

	"github.com/ferrywork/ferry/id"
)

// Tenant is a caller of the orchestrator, identified by TenantID and
// authenticated with the HMAC secret held in APIKeyHash. Weight governs its share of claim
// slots under saturating demand (spec §4.3 step 1, §8 P6); InflightCap
// bounds its concurrently leased jobs (0 = unlimited).
type Tenant struct {
	ID          id.TenantID `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Weight      int         `json:"weight"`
	InflightCap int         `json:"inflight_cap"`

	// APIKeyHash holds the tenant's shared HMAC signing secret. The
	// field is named for its storage discipline, not its use: request
	// signatures (spec §6) are symmetric HMACs verified against this
	// value directly, so it cannot be a one-way digest the way a login
	// password hash would be — callers must still store and transmit it
	// with the same care as any other server-side secret.
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EligibleWeight returns t.Weight if it is positive, else 1 — a tenant
// with a misconfigured non-positive weight still gets a minimal, equal
// share rather than being silently excluded from the weighted draw.
func (t *Tenant) EligibleWeight() int {
	if t.Weight <= 0 {
		return 1
	}

	return t.Weight
}
