package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ferrywork/ferry"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// codeStatus maps a wire-level ferry.Code to its HTTP status (spec §6).
func codeStatus(code ferry.Code) int {
	switch code {
	case ferry.CodeBadRequest:
		return http.StatusBadRequest
	case ferry.CodeUnauthorized:
		return http.StatusUnauthorized
	case ferry.CodeNotFound:
		return http.StatusNotFound
	case ferry.CodeLeaseInvalid:
		return http.StatusConflict
	case ferry.CodeExecutionDeadlineExceeded:
		return http.StatusConflict
	case ferry.CodeIdempotencyConflict:
		return http.StatusConflict
	case ferry.CodeTenantCapExceeded:
		return http.StatusTooManyRequests
	case ferry.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ferr *ferry.Error
	if !errors.As(err, &ferr) {
		ferr = ferry.Wrap(ferry.CodeInternal, "unexpected error", err)
	}

	writeJSON(w, codeStatus(ferr.Code), map[string]any{
		"error": map[string]string{
			"code":    string(ferr.Code),
			"message": ferr.Message,
		},
	})
}
