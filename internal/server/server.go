package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/middleware"
	"github.com/flowpilot-ai/flowpilot/internal/pipeline"
	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/types"
	"github.com/flowpilot-ai/flowpilot/internal/usage"
)

// Server is the HTTP front of the query pipeline.
type Server struct {
	pipeline   *pipeline.Pipeline
	router     *routing.Router
	tracker    *usage.Tracker
	httpServer *http.Server
	security   *middleware.Security
	logger     *logrus.Logger
	config     *Config
}

// Config holds server configuration.
type Config struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`

	Security *middleware.SecurityConfig `yaml:"security"`
}

// New creates a server instance.
func New(p *pipeline.Pipeline, router *routing.Router, tracker *usage.Tracker, config *Config, logger *logrus.Logger) *Server {
	s := &Server{
		pipeline: p,
		router:   router,
		tracker:  tracker,
		logger:   logger,
		config:   config,
	}

	if config.Security != nil {
		s.security = middleware.NewSecurity(config.Security, logger)
	}

	return s
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting query server")
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping query server")

	if s.security != nil {
		s.security.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	if s.security != nil {
		r.Use(s.security.Handler())
	}

	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/query", s.handleQuery).Methods("POST")
	api.HandleFunc("/usage", s.handleUsage).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleClearSession).Methods("DELETE")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

// handleQuery runs one query through the pipeline.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var query types.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if strings.TrimSpace(query.Text) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "text is required")
		return
	}
	if query.SessionID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "session_id is required")
		return
	}

	resp := s.pipeline.Process(r.Context(), query)

	statusCode := http.StatusOK
	if resp.Status == types.StatusFailed {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleHealth reports liveness plus per-tier circuit state. Any open
// breaker degrades the overall status without failing the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	breakers := s.router.BreakerStates()

	status := "healthy"
	for _, state := range breakers {
		if state != routing.BreakerClosed {
			status = "degraded"
			break
		}
	}

	response := map[string]interface{}{
		"status":    status,
		"tiers":     breakers,
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleUsage exposes the per-tier cost counters.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"tiers":     s.tracker.Snapshot(),
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleClearSession drops one conversation.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.pipeline.ClearSession(r.Context(), vars["id"])

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	}

	json.NewEncoder(w).Encode(errorResp)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
