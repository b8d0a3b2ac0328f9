// Package admin exposes the configuration-management REST surface plus the
// health and metrics endpoints.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/strategyconfig"
)

// Error codes returned in the response envelope.
const (
	codeNotFound        = "NOT_FOUND"
	codeValidationError = "VALIDATION_ERROR"
	codeDeleteFailed    = "DELETE_FAILED"
	codeRollbackFailed  = "ROLLBACK_FAILED"
	codeInternalError   = "INTERNAL_ERROR"
)

// HealthSource reports one component's health snapshot.
type HealthSource interface {
	Health() map[string]any
}

// Server is the admin HTTP surface. It holds the same configuration manager
// the dispatcher resolves parameters from.
type Server struct {
	mgr     *strategyconfig.Manager
	health  map[string]HealthSource
	gatherer prometheus.Gatherer
	log     zerolog.Logger
	startAt time.Time
}

// NewServer creates an admin server. health maps component names to their
// snapshot sources; gatherer may be nil to disable /metrics.
func NewServer(mgr *strategyconfig.Manager, health map[string]HealthSource, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	return &Server{
		mgr:     mgr,
		health:  health,
		gatherer: gatherer,
		log:     log.With().Str("component", "admin").Logger(),
		startAt: time.Now(),
	}
}

// Register attaches the admin routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/v1/strategies/{id}/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/v1/strategies/{id}/config", s.handleSetConfig)
	mux.HandleFunc("DELETE /api/v1/strategies/{id}/config", s.handleDeleteConfig)
	mux.HandleFunc("GET /api/v1/strategies/{id}/schema", s.handleSchema)
	mux.HandleFunc("GET /api/v1/strategies/{id}/defaults", s.handleDefaults)
	mux.HandleFunc("GET /api/v1/strategies/{id}/audit", s.handleAuditTrail)
	mux.HandleFunc("POST /api/v1/strategies/{id}/rollback", s.handleRollback)
	mux.HandleFunc("POST /api/v1/config/validate", s.handleValidate)
	mux.HandleFunc("POST /api/v1/cache/refresh", s.handleCacheRefresh)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// response is the standard envelope.
type response struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *responseError `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any, metadata map[string]any) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data, Metadata: metadata})
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, response{Success: false, Error: &responseError{Code: code, Message: msg, Details: details}})
}

func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
