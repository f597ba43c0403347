// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/cltv/internal/adapters/repository"
	service "github.com/okian/cltv/internal/app"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/pkg/metrics"
)

const defaultMaxLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	CustomerDependencies
	PredictDependencies
}

// Entry mirrors the read shape returned by ranking queries.
type Entry = repository.Entry

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	customersHandler *CustomersHandler
	predictHandler   *PredictHandler
}

// Option applies a configuration option to the Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxLimit int
}

// WithMaxLimit caps the limit accepted by GET /customers.
func WithMaxLimit(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{maxLimit: defaultMaxLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		customersHandler: NewCustomersHandler(deps, o.maxLimit),
		predictHandler:   NewPredictHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /params", MetricsMiddleware(s.statsHandler.HandleParams, "params"))
	mux.HandleFunc("GET /segments", MetricsMiddleware(s.statsHandler.HandleSegments, "segments"))
	mux.HandleFunc("GET /customers", MetricsMiddleware(s.customersHandler.HandleTopN, "customers"))
	mux.HandleFunc("GET /customers/{id}", MetricsMiddleware(s.customersHandler.HandleCustomer, "customer"))
	mux.HandleFunc("POST /predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates pipeline and repository errors to statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "not_ready", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, model.ErrNumericalInstability):
		writeError(w, http.StatusUnprocessableEntity, "numerical_instability", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
