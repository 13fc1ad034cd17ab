package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/tenant"
)

const tenantColumns = `id, tenant_id, weight, inflight_cap, api_key_hash, created_at, updated_at`

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO ferry_tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID.String(), t.TenantID, t.Weight, t.InflightCap, t.APIKeyHash, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ferry.Wrap(ferry.CodeBadRequest, "tenant already exists", err)
		}

		return fmt.Errorf("ferry/postgres: create tenant: %w", err)
	}

	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	row := s.db(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM ferry_tenants WHERE tenant_id = $1`, tenantID)

	t, err := scanTenant(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrNotFound
		}

		return nil, fmt.Errorf("ferry/postgres: get tenant: %w", err)
	}

	return t, nil
}

func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*tenant.Tenant, error) {
	row := s.db(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM ferry_tenants WHERE api_key_hash = $1`, hash)

	t, err := scanTenant(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrUnauthorized
		}

		return nil, fmt.Errorf("ferry/postgres: get tenant by api key hash: %w", err)
	}

	return t, nil
}

// ListEligibleTenants returns tenants with at least one pending,
// available job in queues (or any queue if queues is empty) that are
// currently under their in-flight cap — the candidate set for weighted
// selection (spec §4.3 step 1).
func (s *Store) ListEligibleTenants(ctx context.Context, queues []string) ([]*tenant.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + ` FROM ferry_tenants t
		WHERE EXISTS (
			SELECT 1 FROM ferry_jobs j
			WHERE j.tenant_id = t.tenant_id AND j.state = 'pending' AND j.available_at <= NOW()`

	args := []any{}

	if len(queues) > 0 {
		query += ` AND j.queue = ANY($1)`
		args = append(args, queues)
	}

	query += `
		)
		AND (
			t.inflight_cap <= 0
			OR (SELECT COUNT(*) FROM ferry_jobs j2 WHERE j2.tenant_id = t.tenant_id AND j2.state = 'leased') < t.inflight_cap
		)`

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: list eligible tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant

	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("ferry/postgres: scan tenant row: %w", err)
		}

		tenants = append(tenants, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ferry/postgres: iterate tenant rows: %w", err)
	}

	return tenants, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE ferry_tenants SET
			weight = $2, inflight_cap = $3, api_key_hash = $4, updated_at = $5
		WHERE tenant_id = $1`,
		t.TenantID, t.Weight, t.InflightCap, t.APIKeyHash, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ferry/postgres: update tenant: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ferry.ErrNotFound
	}

	return nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t     tenant.Tenant
		idStr string
	)

	if err := row.Scan(&idStr, &t.TenantID, &t.Weight, &t.InflightCap, &t.APIKeyHash, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseTenantID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: parse tenant id %q: %w", idStr, err)
	}

	t.ID = parsedID

	return &t, nil
}
