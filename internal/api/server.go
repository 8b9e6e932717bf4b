package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iot-engine/internal/hierarchy"
	"iot-engine/internal/models"
	"iot-engine/internal/services"
	"iot-engine/internal/thresholds"
)

// SnapshotReader returns the current snapshot of a site
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, siteID string) (models.SiteSnapshot, error)
}

// RollupRunner computes scope rollups
type RollupRunner interface {
	Rollup(ctx context.Context, scope models.Scope) (models.RollupResult, error)
}

// Deps are the collaborators the HTTP surface reads from
type Deps struct {
	Snapshots  SnapshotReader
	Sites      hierarchy.Resolver
	Evaluator  services.SiteEvaluator
	Thresholds thresholds.Store
	Rollups    RollupRunner
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
}

// Server exposes snapshots, site views, thresholds and rollups over HTTP
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// NewServer creates a Server
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger.With("component", "api")}
}

// Router returns the route table without the outer middleware
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/sites/{siteID}/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/sites/{siteID}/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/sites/{siteID}/thresholds", s.handleGetThresholds).Methods(http.MethodGet)
	v1.HandleFunc("/sites/{siteID}/thresholds", s.handlePutThresholds).Methods(http.MethodPut)
	v1.HandleFunc("/rollup", s.handleRollup).Methods(http.MethodGet)

	return r
}

// Handler returns the router wrapped in access logging and panic recovery
func (s *Server) Handler() http.Handler {
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(s.Router())
	return handlers.LoggingHandler(os.Stdout, recovered)
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("handler panic", "panic", v)
}
