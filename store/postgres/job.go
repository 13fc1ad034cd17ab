package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
)

const jobColumns = `
	id, tenant_id, queue, priority, payload, state, attempts, max_attempts,
	available_at, run_after, created_at, updated_at, idempotency_key_create,
	worker_id, lease_token, lease_expires_at, last_heartbeat_at, started_at,
	execution_deadline, last_error`

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO ferry_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		j.ID.String(), j.TenantID, j.Queue, j.Priority, j.Payload, string(j.State),
		j.Attempts, j.MaxAttempts, j.AvailableAt, j.RunAfter, j.CreatedAt, j.UpdatedAt,
		j.IdempotencyKeyCreate, j.WorkerID, j.LeaseToken,
		j.LeaseExpiresAt, j.LastHeartbeatAt, j.StartedAt, j.ExecutionDeadline, j.LastError,
	)
	if err == nil {
		return nil
	}

	if isDuplicateKey(err) && j.IdempotencyKeyCreate != "" {
		existing, getErr := s.GetJobByIdempotencyKey(ctx, j.TenantID, j.IdempotencyKeyCreate)
		if getErr != nil {
			return fmt.Errorf("ferry/postgres: create job: resolve idempotent replay: %w", getErr)
		}

		*j = *existing

		return job.ErrIdempotentReplay
	}

	return fmt.Errorf("ferry/postgres: create job: %w", err)
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+jobColumns+` FROM ferry_jobs WHERE id = $1`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrNotFound
		}

		return nil, fmt.Errorf("ferry/postgres: get job: %w", err)
	}

	return j, nil
}

func (s *Store) GetJobByIdempotencyKey(ctx context.Context, tenantID, key string) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ferry_jobs WHERE tenant_id = $1 AND idempotency_key_create = $2`,
		tenantID, key)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrNotFound
		}

		return nil, fmt.Errorf("ferry/postgres: get job by idempotency key: %w", err)
	}

	return j, nil
}

func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ferry_jobs WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM ferry_jobs WHERE 1=1`

	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.db(ctx).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ferry/postgres: count jobs: %w", err)
	}

	return count, nil
}

// ClaimCandidate locks the single best eligible pending job for
// tenantID. Callers MUST invoke this and PromoteToLeased within the
// same WithTx so the row lock acquired here is held until the
// subsequent UPDATE commits (spec §4.3 step 2).
func (s *Store) ClaimCandidate(ctx context.Context, tenantID string, queues []string, now time.Time) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ferry_jobs
		WHERE tenant_id = $1 AND state = 'pending' AND available_at <= $2`

	args := []any{tenantID, now}

	if len(queues) > 0 {
		query += ` AND queue = ANY($3)`
		args = append(args, queues)
	}

	query += ` ORDER BY priority DESC, created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`

	row := s.db(ctx).QueryRow(ctx, query, args...)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil //nolint:nilnil // no claimable job is not an error
		}

		return nil, fmt.Errorf("ferry/postgres: claim candidate: %w", err)
	}

	return j, nil
}

func (s *Store) PromoteToLeased(ctx context.Context, jobID id.JobID, lease job.Lease, now time.Time) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET
			state = 'leased', worker_id = $2,
			lease_token = $3, lease_expires_at = $4, execution_deadline = $5,
			started_at = $6, last_heartbeat_at = $6, updated_at = $6
		WHERE id = $1 AND state = 'pending'
		RETURNING `+jobColumns,
		jobID.String(), lease.WorkerID, lease.Token.String(), lease.ExpiresAt, lease.Deadline, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrNotFound
		}

		return nil, fmt.Errorf("ferry/postgres: promote to leased: %w", err)
	}

	return j, nil
}

func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, token id.LeaseToken, newExpiresAt, now time.Time) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET lease_expires_at = $3, last_heartbeat_at = $4, updated_at = $4
		WHERE id = $1 AND state = 'leased' AND lease_token = $2
		RETURNING `+jobColumns,
		jobID.String(), token.String(), newExpiresAt, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrLeaseInvalid
		}

		return nil, fmt.Errorf("ferry/postgres: extend lease: %w", err)
	}

	return j, nil
}

func (s *Store) MarkSucceeded(ctx context.Context, jobID id.JobID, token id.LeaseToken, now time.Time) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET state = 'succeeded', updated_at = $3
		WHERE id = $1 AND state = 'leased' AND lease_token = $2
		RETURNING `+jobColumns,
		jobID.String(), token.String(), now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrLeaseInvalid
		}

		return nil, fmt.Errorf("ferry/postgres: mark succeeded: %w", err)
	}

	return j, nil
}

func (s *Store) MarkRetry(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, nextAvailableAt, now time.Time) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET
			state = 'pending', available_at = $4, last_error = $3,
			attempts = attempts + 1,
			worker_id = '', lease_token = '', lease_expires_at = NULL,
			last_heartbeat_at = NULL, started_at = NULL, execution_deadline = NULL,
			updated_at = $5
		WHERE id = $1 AND state = 'leased' AND lease_token = $2
		RETURNING `+jobColumns,
		jobID.String(), token.String(), errMsg, nextAvailableAt, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrLeaseInvalid
		}

		return nil, fmt.Errorf("ferry/postgres: mark retry: %w", err)
	}

	return j, nil
}

func (s *Store) MarkDLQ(ctx context.Context, jobID id.JobID, token id.LeaseToken, errMsg string, now time.Time) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET
			state = 'dlq', last_error = $3,
			attempts = attempts + 1,
			worker_id = '', lease_token = '', lease_expires_at = NULL,
			last_heartbeat_at = NULL, started_at = NULL, execution_deadline = NULL,
			updated_at = $4
		WHERE id = $1 AND state = 'leased' AND lease_token = $2
		RETURNING `+jobColumns,
		jobID.String(), token.String(), errMsg, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrLeaseInvalid
		}

		return nil, fmt.Errorf("ferry/postgres: mark dlq: %w", err)
	}

	return j, nil
}

func (s *Store) CancelJob(ctx context.Context, jobID id.JobID, now time.Time) (*job.Job, error) {
	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET
			state = 'canceled', worker_id = '', lease_token = '',
			lease_expires_at = NULL, last_heartbeat_at = NULL, started_at = NULL,
			execution_deadline = NULL, updated_at = $2
		WHERE id = $1 AND state IN ('pending', 'leased')
		RETURNING `+jobColumns,
		jobID.String(), now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrBadRequest
		}

		return nil, fmt.Errorf("ferry/postgres: cancel job: %w", err)
	}

	return j, nil
}

func (s *Store) ExpireLease(ctx context.Context, jobID id.JobID, errMsg string, nextAvailableAt, now time.Time, dlq bool) (*job.Job, error) {
	state := "pending"
	if dlq {
		state = "dlq"
	}

	row := s.db(ctx).QueryRow(ctx, `
		UPDATE ferry_jobs SET
			state = $2, available_at = $3, last_error = $4,
			attempts = attempts + 1,
			worker_id = '', lease_token = '', lease_expires_at = NULL,
			last_heartbeat_at = NULL, started_at = NULL, execution_deadline = NULL,
			updated_at = $5
		WHERE id = $1 AND state = 'leased'
		RETURNING `+jobColumns,
		jobID.String(), state, nextAvailableAt, errMsg, now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrNotFound
		}

		return nil, fmt.Errorf("ferry/postgres: expire lease: %w", err)
	}

	return j, nil
}

func (s *Store) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+jobColumns+` FROM ferry_jobs
		WHERE state = 'leased' AND (lease_expires_at < $1 OR execution_deadline < $1)
		ORDER BY lease_expires_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: list expired leases: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j        job.Job
		idStr    string
		stateStr string
	)

	err := row.Scan(
		&idStr, &j.TenantID, &j.Queue, &j.Priority, &j.Payload, &stateStr,
		&j.Attempts, &j.MaxAttempts, &j.AvailableAt, &j.RunAfter, &j.CreatedAt, &j.UpdatedAt,
		&j.IdempotencyKeyCreate, &j.WorkerID, &j.LeaseToken, &j.LeaseExpiresAt,
		&j.LastHeartbeatAt, &j.StartedAt, &j.ExecutionDeadline, &j.LastError,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: parse job id %q: %w", idStr, err)
	}

	j.ID = parsedID

	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ferry/postgres: scan job row: %w", err)
		}

		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ferry/postgres: iterate job rows: %w", err)
	}

	return jobs, nil
}
