// Package server provides the HTTP server and routing for the EBITDA API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/dart-ebitda/internal/corpcode"
	"github.com/aristath/dart-ebitda/internal/database"
	"github.com/aristath/dart-ebitda/internal/domain"
)

// Version is reported by the root and health endpoints.
const Version = "1.0.0"

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-ID"

// CompanyResolver turns a company name or stock code into a directory record.
type CompanyResolver interface {
	Resolve(ctx context.Context, query string) (domain.CompanyRecord, error)
	Current() *corpcode.Directory
}

// EbitdaCalculator computes EBITDA for one filing.
type EbitdaCalculator interface {
	Calculate(ctx context.Context, corpCode string, year int, reportCode domain.ReportCode, fsDiv domain.ConsolidationBasis) (*domain.EbitdaResult, error)
}

// CacheStatsProvider reports the size of the response cache.
type CacheStatsProvider interface {
	Stats(ctx context.Context) (*database.Stats, error)
}

// Config holds server dependencies
type Config struct {
	Log            zerolog.Logger
	Port           int
	DevMode        bool
	RequestTimeout time.Duration // defaults to 60s
	Resolver       CompanyResolver
	Calculator     EbitdaCalculator
	Cache          CacheStatsProvider // optional
}

// Server is the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	resolver       CompanyResolver
	calculator     EbitdaCalculator
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		port:       cfg.Port,
		resolver:   cfg.Resolver,
		calculator: cfg.Calculator,
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Resolver, cfg.Cache)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	s.setupMiddleware(cfg.DevMode, timeout)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool, timeout time.Duration) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(requestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(timeout))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.systemHandlers.HandleHealth)
		r.Get("/ebitda", s.handleEbitda)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errorBody{
			Error:   "ROUTE_NOT_FOUND",
			Message: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
		})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// requestID accepts an incoming X-Request-ID or assigns a UUID, and makes it
// available through middleware.GetReqID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
