// Package httpserver exposes process liveness and Prometheus metrics over
// a small read-only HTTP server, grounded on
// internal/interfaces/http/server.go's mux.Router + middleware stack and
// internal/interfaces/http/metrics.go's MetricsRegistry, scoped to the
// tickstore ingest pipeline instead of the scanner.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tickstore/internal/ingest"
	"github.com/sawpanic/tickstore/internal/infrastructure/db"
)

// Config bounds the HTTP server's network and timeout behavior.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig matches the teacher's local-only, conservative defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StatsSource reports the ingest service's live counters for the health
// and metrics endpoints.
type StatsSource interface {
	Stats() ingest.Stats
}

// Server is the read-only HTTP surface: /health and /metrics.
type Server struct {
	router *mux.Router
	server *http.Server
	config Config

	ingestStats StatsSource
	dbHealth    db.Health
	metrics     *MetricsRegistry
}

// New constructs a Server. ingestStats and dbHealth may be nil; the
// corresponding health fields are simply omitted.
func New(config Config, ingestStats StatsSource, dbHealth db.Health) (*Server, error) {
	addr := config.Addr
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("httpserver: port %s unavailable: %w", addr, err)
	}
	listener.Close()

	metricsRegistry, promReg := NewMetricsRegistry()

	s := &Server{
		router:      mux.NewRouter(),
		config:      config,
		ingestStats: ingestStats,
		dbHealth:    dbHealth,
		metrics:     metricsRegistry,
	}

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", Handler(promReg)).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Metrics returns the Prometheus collectors so callers can update them
// directly. Nothing in this module updates them, so /metrics serves their
// initial zero values.
func (s *Server) Metrics() *MetricsRegistry { return s.metrics }

// Start blocks serving until the server is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("httpserver: starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("httpserver: shutting down")
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status    string         `json:"status"`
	Ingest    *ingest.Stats  `json:"ingest,omitempty"`
	Database  *dbHealthView  `json:"database,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type dbHealthView struct {
	Healthy bool     `json:"healthy"`
	Errors  []string `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Timestamp: time.Now()}

	if s.ingestStats != nil {
		stats := s.ingestStats.Stats()
		resp.Ingest = &stats
	}

	if s.dbHealth != nil {
		check := s.dbHealth.Health(r.Context())
		resp.Database = &dbHealthView{Healthy: check.Healthy, Errors: check.Errors}
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found", "path": r.URL.Path})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("httpserver: request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
