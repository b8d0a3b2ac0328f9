package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quantfeed/strategyd/internal/strategyconfig"
	"github.com/quantfeed/strategyd/internal/symbol"
)

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	infos := s.mgr.ListStrategies(r.Context())
	writeData(w, infos, map[string]any{"count": len(infos)})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !strategyconfig.KnownStrategy(id) {
		writeError(w, http.StatusNotFound, codeNotFound, "strategy not found: "+id, nil)
		return
	}
	sym, ok := s.symbolParam(w, r)
	if !ok {
		return
	}
	snap := s.mgr.Resolve(r.Context(), id, sym)
	writeData(w, map[string]any{
		"strategy_id": id,
		"symbol":      sym,
		"parameters":  snap.Parameters,
		"version":     snap.Version,
		"source":      snap.Source,
		"is_override": snap.IsOverride,
	}, nil)
}

type configRequest struct {
	Parameters map[string]any `json:"parameters"`
	ChangedBy  string         `json:"changed_by"`
	Reason     string         `json:"reason"`
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !strategyconfig.KnownStrategy(id) {
		writeError(w, http.StatusNotFound, codeNotFound, "strategy not found: "+id, nil)
		return
	}
	sym, ok := s.symbolParam(w, r)
	if !ok {
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid request body: "+err.Error(), nil)
		return
	}
	if req.ChangedBy == "" {
		req.ChangedBy = "admin-api"
	}

	cfg, verrs, err := s.mgr.Set(r.Context(), strategyconfig.SetRequest{
		StrategyID: id,
		Symbol:     sym,
		Parameters: req.Parameters,
		ChangedBy:  req.ChangedBy,
		Reason:     req.Reason,
	})
	if len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, codeValidationError, "configuration validation failed", verrs)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("strategy", id).Msg("config update failed")
		writeError(w, http.StatusInternalServerError, codeInternalError, err.Error(), nil)
		return
	}
	writeData(w, map[string]any{
		"strategy_id": cfg.StrategyID,
		"symbol":      cfg.Symbol,
		"parameters":  cfg.Parameters,
		"version":     cfg.Version,
	}, map[string]any{"action": "update"})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sym, ok := s.symbolParam(w, r)
	if !ok {
		return
	}
	changedBy := r.URL.Query().Get("changed_by")
	if changedBy == "" {
		changedBy = "admin-api"
	}

	err := s.mgr.Delete(r.Context(), id, sym, changedBy, r.URL.Query().Get("reason"))
	switch {
	case errors.Is(err, strategyconfig.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case err != nil:
		writeError(w, http.StatusInternalServerError, codeDeleteFailed, err.Error(), nil)
	default:
		writeData(w, map[string]any{"strategy_id": id, "symbol": sym}, map[string]any{"action": "delete"})
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	schema := strategyconfig.Schema(id)
	if schema == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "strategy not found: "+id, nil)
		return
	}
	writeData(w, schema, map[string]any{"strategy_id": id, "parameter_count": len(schema)})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	defaults := strategyconfig.Defaults(id)
	if defaults == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "strategy not found: "+id, nil)
		return
	}
	writeData(w, defaults, map[string]any{"strategy_id": id})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sym, ok := s.symbolParam(w, r)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", 100)

	records, err := s.mgr.AuditTrail(r.Context(), id, sym, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeInternalError, err.Error(), nil)
		return
	}
	writeData(w, auditViews(records), map[string]any{"strategy_id": id, "count": len(records)})
}

type rollbackRequest struct {
	TargetVersion int    `json:"target_version"`
	RollbackID    string `json:"rollback_id"`
	ChangedBy     string `json:"changed_by"`
	Reason        string `json:"reason"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sym, ok := s.symbolParam(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid request body: "+err.Error(), nil)
		return
	}

	cfg, verrs, err := s.mgr.Rollback(r.Context(), strategyconfig.RollbackRequest{
		StrategyID:    id,
		Symbol:        sym,
		TargetVersion: req.TargetVersion,
		AuditID:       req.RollbackID,
		ChangedBy:     req.ChangedBy,
		Reason:        req.Reason,
	})
	switch {
	case errors.Is(err, strategyconfig.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case len(verrs) > 0:
		writeError(w, http.StatusBadRequest, codeRollbackFailed, "rollback validation failed", verrs)
	case err != nil:
		writeError(w, http.StatusInternalServerError, codeRollbackFailed, err.Error(), nil)
	default:
		writeData(w, map[string]any{
			"strategy_id": cfg.StrategyID,
			"symbol":      cfg.Symbol,
			"parameters":  cfg.Parameters,
			"version":     cfg.Version,
		}, map[string]any{"action": "rollback"})
	}
}

type validateRequest struct {
	StrategyID string         `json:"strategy_id"`
	Symbol     string         `json:"symbol"`
	Parameters map[string]any `json:"parameters"`
}

// handleValidate is the single validation endpoint: dry-run only, no state
// change, no audit record.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "invalid request body: "+err.Error(), nil)
		return
	}

	verrs := strategyconfig.Validate(req.StrategyID, req.Parameters)
	scope := "strategy:" + req.StrategyID
	if req.Symbol != "" {
		scope += ":symbol:" + req.Symbol
	}
	writeData(w, map[string]any{
		"validation_passed": len(verrs) == 0,
		"errors":            verrs,
	}, map[string]any{"validation_mode": "dry_run", "scope": scope})
}

func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	s.mgr.RefreshCache()
	writeData(w, map[string]any{"refreshed": true}, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]any, len(s.health))
	healthy := true
	for name, src := range s.health {
		snap := src.Health()
		components[name] = snap
		if running, ok := snap["running"].(bool); ok && !running {
			healthy = false
		}
	}
	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"uptime":     time.Since(s.startAt).String(),
		"components": components,
	})
}

// symbolParam reads and validates the optional ?symbol= query parameter.
func (s *Server) symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("symbol")
	if raw == "" {
		return "", true
	}
	sym := symbol.Normalize(raw)
	if err := symbol.Validate(sym); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, err.Error(), nil)
		return "", false
	}
	return sym, true
}

type auditView struct {
	ID            string         `json:"id"`
	StrategyID    string         `json:"strategy_id"`
	Symbol        string         `json:"symbol,omitempty"`
	Action        string         `json:"action"`
	OldParameters map[string]any `json:"old_parameters"`
	NewParameters map[string]any `json:"new_parameters"`
	ChangedBy     string         `json:"changed_by"`
	ChangedAt     time.Time      `json:"changed_at"`
	Reason        string         `json:"reason,omitempty"`
}

func auditViews(records []strategyconfig.AuditRecord) []auditView {
	out := make([]auditView, len(records))
	for i, rec := range records {
		out[i] = auditView{
			ID:            rec.ID,
			StrategyID:    rec.StrategyID,
			Symbol:        rec.Symbol,
			Action:        rec.Action,
			OldParameters: rec.OldParameters,
			NewParameters: rec.NewParameters,
			ChangedBy:     rec.ChangedBy,
			ChangedAt:     rec.ChangedAt,
			Reason:        rec.Reason,
		}
	}
	return out
}
