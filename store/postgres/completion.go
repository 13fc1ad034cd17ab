package postgres

import (
	"context"
	"fmt"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/completion"
	"github.com/ferrywork/ferry/id"
)

// InsertCompletion enforces the same replay semantics as the in-memory
// store: a second insert for a job already completed under the same
// idempotency-key-complete returns the existing row unchanged; a
// different key returns completion.ErrAlreadyRecorded.
func (s *Store) InsertCompletion(ctx context.Context, c *completion.Completion) error {
	// ON CONFLICT DO NOTHING rather than catching a unique violation: a
	// failed statement would abort the caller's transaction and the
	// lookup below could not run inside it.
	tag, err := s.db(ctx).Exec(ctx, `
		INSERT INTO ferry_completions (id, job_id, idempotency_key_complete, result, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`,
		c.ID.String(), c.JobID.String(), c.IdempotencyKeyComplete, c.Result, c.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("ferry/postgres: insert completion: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, getErr := s.GetCompletionByJob(ctx, c.JobID)
	if getErr != nil {
		return fmt.Errorf("ferry/postgres: insert completion: resolve conflict: %w", getErr)
	}

	if existing.IdempotencyKeyComplete != c.IdempotencyKeyComplete {
		return completion.ErrAlreadyRecorded
	}

	*c = *existing

	return nil
}

func (s *Store) GetCompletionByJob(ctx context.Context, jobID id.JobID) (*completion.Completion, error) {
	row := s.db(ctx).QueryRow(ctx, `
		SELECT id, job_id, idempotency_key_complete, result, recorded_at
		FROM ferry_completions WHERE job_id = $1`,
		jobID.String(),
	)

	var (
		c      completion.Completion
		idStr  string
		jobStr string
	)

	if err := row.Scan(&idStr, &jobStr, &c.IdempotencyKeyComplete, &c.Result, &c.RecordedAt); err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrNotFound
		}

		return nil, fmt.Errorf("ferry/postgres: get completion by job: %w", err)
	}

	parsedID, err := id.ParseCompletionID(idStr)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: parse completion id %q: %w", idStr, err)
	}

	parsedJobID, err := id.ParseJobID(jobStr)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: parse job id %q: %w", jobStr, err)
	}

	c.ID = parsedID
	c.JobID = parsedJobID

	return &c, nil
}
