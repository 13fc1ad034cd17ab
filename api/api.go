// Package api exposes the HTTP control surface (spec §6): job
// creation, worker lease operations, and job lookup/cancel, each
// authenticated by an HMAC request signature (see authsig).
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ferrywork/ferry"
	"github.com/ferrywork/ferry/engine"
	"github.com/ferrywork/ferry/noncecache"
	"github.com/ferrywork/ferry/store"
)

// Server holds the dependencies HTTP handlers need.
type Server struct {
	store  store.Store
	engine *engine.Engine
	nonces *noncecache.Cache // optional; nil disables replay checking
	cfg    ferry.Config
	log    *slog.Logger
}

// New constructs a Server. nonces may be nil.
func New(st store.Store, eng *engine.Engine, nonces *noncecache.Cache, cfg ferry.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{store: st, engine: eng, nonces: nonces, cfg: cfg, log: log}
}

// Router builds the chi router: /healthz plus the authenticated job,
// worker and admin-reap routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/v1/jobs", s.handleCreateJob)
		r.Get("/v1/jobs/{id}", s.handleGetJob)
		r.Post("/v1/jobs/{id}/cancel", s.handleCancelJob)

		r.Post("/v1/workers/claim", s.handleClaim)
		r.Post("/v1/workers/heartbeat", s.handleHeartbeat)
		r.Post("/v1/workers/complete", s.handleComplete)
		r.Post("/v1/workers/fail", s.handleFail)

		r.Post("/v1/admin/reap", s.handleAdminReap)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, ferry.Wrap(ferry.CodeTransient, "store unreachable", err))

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info("api: request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)))
	})
}
