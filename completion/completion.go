// Package completion records the exactly-once completion effect of a
// job (spec invariants I2, I7): the pair (JobID, IdempotencyKeyComplete)
// is unique, so a worker that retries its own completion call after a
// dropped response never double-applies side effects downstream.
package completion

import (
	"time"

	"github.com/ferrywork/ferry/id"
)

// Completion is the durable record that a job's completion effect has
// already been applied.
type Completion struct {
	ID                     id.CompletionID `json:"id"`
	JobID                  id.JobID        `json:"job_id"`
	IdempotencyKeyComplete string          `json:"idempotency_key_complete"`
	Result                 []byte          `json:"result,omitempty"`
	RecordedAt             time.Time       `json:"recorded_at"`
}
