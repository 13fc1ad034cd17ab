package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
	"github.com/ferrywork/ferry/job"
)

type createJobRequest struct {
	Queue                string          `json:"queue"`
	Priority             int             `json:"priority"`
	Payload              json.RawMessage `json:"payload"`
	MaxAttempts          int             `json:"max_attempts"`
	RunAfter             *time.Time      `json:"run_after,omitempty"`
	IdempotencyKeyCreate string          `json:"idempotency_key_create,omitempty"`
}

type createJobResponse struct {
	Job     *job.Job `json:"job"`
	Created bool     `json:"created"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	t := tenantFromContext(r.Context())

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "decode request body", err))

		return
	}

	if req.Queue == "" {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "queue is required", nil))

		return
	}

	if req.MaxAttempts <= 0 {
		req.MaxAttempts = 1
	}

	now := time.Now().UTC()
	runAfter := now

	if req.RunAfter != nil {
		runAfter = *req.RunAfter
	}

	j := &job.Job{
		ID:                   id.NewJobID(),
		TenantID:             t.TenantID,
		Queue:                req.Queue,
		Priority:             req.Priority,
		Payload:              req.Payload,
		State:                job.StatePending,
		MaxAttempts:          req.MaxAttempts,
		AvailableAt:          runAfter,
		RunAfter:             runAfter,
		CreatedAt:            now,
		UpdatedAt:            now,
		IdempotencyKeyCreate: req.IdempotencyKeyCreate,
	}

	err := s.store.CreateJob(r.Context(), j)

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, createJobResponse{Job: j, Created: true})
	case err == job.ErrIdempotentReplay:
		writeJSON(w, http.StatusOK, createJobResponse{Job: j, Created: false})
	default:
		writeError(w, ferry.Wrap(ferry.CodeTransient, "create job", err))
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "invalid job id", err))

		return
	}

	j, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)

		return
	}

	t := tenantFromContext(r.Context())
	if j.TenantID != t.TenantID {
		writeError(w, ferry.ErrNotFound)

		return
	}

	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "invalid job id", err))

		return
	}

	existing, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)

		return
	}

	t := tenantFromContext(r.Context())
	if existing.TenantID != t.TenantID {
		writeError(w, ferry.ErrNotFound)

		return
	}

	j, err := s.engine.Lease().Cancel(r.Context(), jobID)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, j)
}
