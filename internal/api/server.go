package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"truck-event-scorer/internal/artifact"
	"truck-event-scorer/internal/classifier"
	"truck-event-scorer/internal/enrich"
	"truck-event-scorer/internal/models"
	"truck-event-scorer/internal/parser"
)

const maxEventBytes = 64 << 10

// Scorer runs one decoded event through the scoring pipeline
type Scorer interface {
	Process(ctx context.Context, e *models.Event) (*models.EmittedRecord, error)
	Model() *classifier.Classifier
}

// Reports reads stored audit reports
type Reports interface {
	Reports(ctx context.Context) ([]models.AuditEntry, error)
	ReadReport(ctx context.Context, name string) ([]byte, error)
}

// Server represents the API server
type Server struct {
	scorer   Scorer
	reports  Reports
	parser   *parser.Parser
	gatherer prometheus.Gatherer
	router   *mux.Router
	logger   zerolog.Logger
}

// NewServer creates a new API server
func NewServer(scorer Scorer, reports Reports, p *parser.Parser, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		scorer:   scorer,
		reports:  reports,
		parser:   p,
		gatherer: gatherer,
		router:   mux.NewRouter(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := s.router.NewRoute().Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Model endpoints
	api.HandleFunc("/api/v1/model", s.handleModel).Methods("GET")

	// Scoring endpoints
	api.HandleFunc("/api/v1/events", s.handleScoreEvent).Methods("POST")

	// Audit report endpoints
	api.HandleFunc("/api/v1/predictions", s.handleListPredictions).Methods("GET")
	api.HandleFunc("/api/v1/predictions/{name}", s.handleGetPrediction).Methods("GET")

	api.Use(jsonMiddleware)
	s.router.Use(s.loggingMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

type modelInfo struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Threshold float64   `json:"threshold"`
}

type scoreResult struct {
	EventKey string                `json:"event_key"`
	Scored   bool                  `json:"scored"`
	Record   *models.EmittedRecord `json:"record,omitempty"`
}

type prediction struct {
	Name   string `json:"name"`
	Report string `json:"report"`
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	m := s.scorer.Model()
	respondJSON(w, http.StatusOK, modelInfo{
		Weights:   m.Weights(),
		Intercept: m.Intercept(),
		Threshold: classifier.Threshold,
	})
}

func (s *Server) handleScoreEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	e, err := s.parser.Decode(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.scorer.Process(r.Context(), e)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, enrich.ErrEnrichmentUnavailable) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, scoreResult{EventKey: e.EventKey, Scored: rec != nil, Record: rec})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	reports, err := s.reports.Reports(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithMeta(w, reports, &meta{
		Total:   len(reports),
		QueryMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	data, err := s.reports.ReadReport(r.Context(), name)
	if errors.Is(err, artifact.ErrNotFound) {
		respondError(w, http.StatusNotFound, "prediction not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, prediction{Name: name, Report: string(data)})
}
