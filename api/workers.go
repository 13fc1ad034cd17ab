package api

import (
	"encoding/json"
	"net/http"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/id"
)

type claimRequest struct {
	WorkerID string   `json:"worker_id"`
	Queues   []string `json:"queues,omitempty"`
}

type claimResponse struct {
	Job        any    `json:"job"`
	LeaseToken string `json:"lease_token"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "decode request body", err))

		return
	}

	if req.WorkerID == "" {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "worker_id is required", nil))

		return
	}

	cfg := s.engine.Config()

	j, token, err := s.engine.Claim().Claim(r.Context(), req.WorkerID, req.Queues, cfg.LeaseDuration(), cfg.ExecutionTimeout())
	if err != nil {
		if ferry.HasCode(err, ferry.CodeNotFound) {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, claimResponse{Job: j, LeaseToken: token.String()})
}

type heartbeatRequest struct {
	JobID      string `json:"job_id"`
	LeaseToken string `json:"lease_token"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "decode request body", err))

		return
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "invalid job_id", err))

		return
	}

	j, err := s.engine.Lease().Heartbeat(r.Context(), jobID, id.LeaseToken(req.LeaseToken), s.engine.Config().LeaseDuration())
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, j)
}

type completeRequest struct {
	JobID                  string          `json:"job_id"`
	LeaseToken             string          `json:"lease_token"`
	IdempotencyKeyComplete string          `json:"idempotency_key_complete"`
	Result                 json.RawMessage `json:"result,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "decode request body", err))

		return
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "invalid job_id", err))

		return
	}

	if req.IdempotencyKeyComplete == "" {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "idempotency_key_complete is required", nil))

		return
	}

	j, c, err := s.engine.Lease().Complete(r.Context(), jobID, id.LeaseToken(req.LeaseToken), req.IdempotencyKeyComplete, req.Result)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"job": j, "completion": c})
}

type failRequest struct {
	JobID      string `json:"job_id"`
	LeaseToken string `json:"lease_token"`
	Error      string `json:"error"`
	Retryable  bool   `json:"retryable"`
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "decode request body", err))

		return
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		writeError(w, ferry.Wrap(ferry.CodeBadRequest, "invalid job_id", err))

		return
	}

	j, err := s.engine.Lease().Fail(r.Context(), jobID, id.LeaseToken(req.LeaseToken), req.Error, req.Retryable)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleAdminReap(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ReapNow(r.Context())
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"reaped": n})
}
