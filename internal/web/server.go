// Package web provides the HTTP API for the people importer.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/phantom/internal/config"
	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/logging"
	"github.com/JonMunkholm/phantom/internal/web/middleware"
)

// Server is the HTTP server for the importer.
type Server struct {
	importer *core.Importer
	counter  core.Counter
	limiter  *core.ImportLimiter
	cfg      *config.Config
	logger   *slog.Logger
	router   *chi.Mux
	server   *http.Server
	stop     context.CancelFunc
}

// NewServer creates a Server importing through importer. counter backs
// GET /api/stats and may be nil.
func NewServer(importer *core.Importer, counter core.Counter, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		importer: importer,
		counter:  counter,
		limiter:  core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		cfg:      cfg,
		logger:   logger,
		router:   chi.NewRouter(),
		stop:     stop,
	}
	s.setupMiddleware(ctx)
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)

	if len(s.cfg.Security.AllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.cfg.Security.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		})
		s.router.Use(c.Handler)
	}

	if s.cfg.Rate.Enabled {
		rl := middleware.NewRateLimiter(s.cfg.Rate)
		go rl.Cleanup(ctx)
		s.router.Use(rl.Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		r.Post("/imports", s.handleImport(false))
		r.Post("/imports/check", s.handleImport(true))
		r.Get("/imports/status", s.handleImportStatus)
		r.Get("/stats", s.handleStats)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running imports.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
