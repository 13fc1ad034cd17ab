package tenant

import "context"

// Store defines the persistence contract for tenant records.
type Store interface {
	// CreateTenant persists a new tenant.
	CreateTenant(ctx context.Context, t *Tenant) error

	// GetTenant retrieves a tenant by its TenantID.
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// GetTenantByAPIKeyHash looks up a tenant by its hashed API key, for
	// request authentication (spec §6).
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)

	// ListEligibleTenants returns tenants that currently have at least
	// one pending, available job and are under their in-flight cap — the
	// candidate set for weighted tenant selection (spec §4.3 step 1).
	ListEligibleTenants(ctx context.Context, queues []string) ([]*Tenant, error)

	// UpdateTenant persists changes to weight/cap/key-hash.
	UpdateTenant(ctx context.Context, t *Tenant) error
}
