package job

import "errors"

// ErrIdempotentReplay is returned by Store.CreateJob when a job already
// exists for the given (TenantID, IdempotencyKeyCreate) pair. The
// caller's *Job argument is populated with the existing row.
var ErrIdempotentReplay = errors.New("job: idempotent replay of existing job")
