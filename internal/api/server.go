// Package api exposes the dispatch console control plane over HTTP: operator
// auth, call termination, directory synchronization and the recording
// catalog.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dispatchd/dispatchd/internal/api/middleware"
	"github.com/dispatchd/dispatchd/internal/channel"
	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/internal/database"
	"github.com/dispatchd/dispatchd/internal/directory"
	"github.com/dispatchd/dispatchd/internal/recording"
)

// Deps bundles the collaborators the handlers drive.
type Deps struct {
	Operators database.OperatorRepository
	Statuses  database.ChannelStatusRepository
	Resolver  *channel.Resolver
	Directory *directory.Synchronizer
	Catalog   *recording.Catalog
	Metrics   http.Handler // /metrics endpoint, optional
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	deps   Deps

	limiter     *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		cfg:         cfg,
		deps:        deps,
		limiter:     middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter: middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiters' background cleanup.
func (s *Server) Close() {
	s.limiter.Stop()
	s.authLimiter.Stop()
}

// routes configures the middleware stack and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))
	r.Use(middleware.RateLimit(s.limiter))

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.With(middleware.RateLimit(s.authLimiter)).
			Post("/auth/login", s.handleLogin)

		// Everything else requires an operator token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth([]byte(s.cfg.JWTSecret)))

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", s.handleListCalls)
				r.Put("/{requestID}/terminate", s.handleTerminateCall)
			})

			r.Route("/directory/{kind}", func(r chi.Router) {
				r.Post("/sync", s.handleDirectorySync)
				r.Put("/{extension}", s.handleDirectoryUpdate)
			})

			r.Route("/recordings", func(r chi.Router) {
				r.Get("/", s.handleListRecordings)
				r.Post("/sync", s.handleRecordingsSync)
				r.Delete("/{filename}", s.handleDeleteRecording)
			})
		})
	})
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
