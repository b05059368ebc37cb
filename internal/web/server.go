// Package web serves sed jobs over HTTP: a CSV request body is filtered
// and streamed back row by row.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvsed/internal/config"
	"github.com/JonMunkholm/csvsed/internal/logging"
	mw "github.com/JonMunkholm/csvsed/internal/web/middleware"
)

// Server is the csvsed HTTP service.
type Server struct {
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	jobs    *JobLimiter
	started time.Time
	stop    context.CancelFunc
}

// NewServer builds a Server from cfg.
func NewServer(cfg *config.Config) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		jobs:    NewJobLimiter(cfg.Sed.MaxConcurrent, cfg.Sed.MaxWaitTime),
		started: time.Now(),
		stop:    stop,
	}
	s.setupMiddleware(ctx)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.NewRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute, time.Minute).Middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		r.Get("/status", s.handleStatus)
		r.Post("/sed", s.handleSed)
	})
}

// Start listens on the configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running jobs to finish
// streaming, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.stop()
	if s.server == nil {
		return nil
	}

	logger := logging.FromContext(ctx)
	if active := s.jobs.ActiveCount(); active > 0 {
		logger.Info("waiting for jobs to complete", "active", active)
	}

	var errs []error
	// Shutdown waits for in-flight handlers, which is where jobs run.
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.jobs.WaitForDrain(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Jobs exposes the job limiter.
func (s *Server) Jobs() *JobLimiter { return s.jobs }

// Router returns the HTTP handler, for tests.
func (s *Server) Router() http.Handler { return s.router }

// securityHeaders adds headers appropriate for a JSON/CSV API.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
