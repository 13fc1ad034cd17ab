package completion

import (
	"context"
	"errors"

	"github.com/ferrywork/ferry/id"
)

// ErrAlreadyRecorded is returned by Store.InsertCompletion when a
// completion already exists for the job under a different
// idempotency-key-complete — the I2/I7 conflict that the caller
// surfaces as ferry.CodeIdempotencyConflict.
var ErrAlreadyRecorded = errors.New("completion: already recorded")

// Store defines the persistence contract for completion records.
type Store interface {
	// InsertCompletion persists c. Implementations enforce uniqueness on
	// JobID (a job completes at most once) and, within that, idempotent
	// replay: when IdempotencyKeyComplete matches the recorded key, the
	// existing row is copied into c and no error is returned. The
	// submitted Result is not compared with the recorded one.
	InsertCompletion(ctx context.Context, c *Completion) error

	// GetCompletionByJob returns the completion recorded for jobID, if
	// any. Returns ferry.ErrNotFound if the job has not yet completed.
	GetCompletionByJob(ctx context.Context, jobID id.JobID) (*Completion, error)
}
