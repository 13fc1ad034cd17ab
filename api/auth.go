package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/authsig"
	"github.com/ferrywork/ferry/tenant"
)

type ctxKey int

const tenantCtxKey ctxKey = iota

// tenantFromContext returns the authenticated tenant for the request,
// set by Server.authenticate.
func tenantFromContext(ctx context.Context) *tenant.Tenant {
	t, _ := ctx.Value(tenantCtxKey).(*tenant.Tenant)

	return t
}

// authenticate verifies the HMAC request signature (spec §6) and
// attaches the resolved tenant to the request context. It never
// mutates the store on failure.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Ferry-Tenant")
		signature := r.Header.Get("X-Ferry-Signature")
		nonce := r.Header.Get("X-Ferry-Nonce")
		timestampHeader := r.Header.Get("X-Ferry-Timestamp")

		if tenantID == "" || signature == "" || nonce == "" || timestampHeader == "" {
			writeError(w, ferry.Wrap(ferry.CodeUnauthorized, "missing auth headers", nil))

			return
		}

		timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
		if err != nil {
			writeError(w, ferry.Wrap(ferry.CodeUnauthorized, "invalid timestamp header", err))

			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, ferry.Wrap(ferry.CodeBadRequest, "read body", err))

			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))

		t, err := s.store.GetTenant(r.Context(), tenantID)
		if err != nil {
			writeError(w, ferry.Wrap(ferry.CodeUnauthorized, "unknown tenant", err))

			return
		}

		req := authsig.Request{Method: r.Method, Path: r.URL.Path, Body: body, Timestamp: timestamp, Nonce: nonce}
		if err := authsig.Verify(t.APIKeyHash, req, signature, time.Now().UTC(), s.cfg.HMACSkew()); err != nil {
			writeError(w, ferry.Wrap(ferry.CodeUnauthorized, "signature verification failed", err))

			return
		}

		if s.nonces != nil {
			replay, err := s.nonces.CheckAndRemember(r.Context(), tenantID, nonce)
			if err != nil {
				s.log.Warn("api: nonce cache unavailable, failing open on replay check")
			} else if replay {
				writeError(w, ferry.Wrap(ferry.CodeUnauthorized, "nonce already used", nil))

				return
			}
		}

		ctx := context.WithValue(r.Context(), tenantCtxKey, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
