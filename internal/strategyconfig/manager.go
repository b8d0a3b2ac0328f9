package strategyconfig

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// cacheEntry pairs a resolved snapshot with its insertion time.
type cacheEntry struct {
	snap       Snapshot
	insertedAt time.Time
}

// Manager resolves and mutates strategy configuration. Reads survive a
// disconnected store by falling through to environment values and built-in
// defaults; writes require the store.
type Manager struct {
	store Store
	ttl   time.Duration
	env   map[string]map[string]any // strategy id -> explicitly-set env params
	log   zerolog.Logger
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a configuration manager. store may be nil (reads then
// use environment and defaults only); env holds per-strategy parameters that
// were explicitly set in the process environment.
func NewManager(store Store, ttl time.Duration, env map[string]map[string]any, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		env:   env,
		log:   log.With().Str("component", "config_manager").Logger(),
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

func cacheKey(strategyID, symbol string) string {
	if symbol == "" {
		return strategyID + ":global"
	}
	return strategyID + ":" + symbol
}

// Resolve returns the current parameter snapshot for (strategy, symbol).
// Resolution order: cache, store symbol override, store global, environment,
// built-in defaults. Every store hit populates the cache.
func (m *Manager) Resolve(ctx context.Context, strategyID, symbol string) Snapshot {
	key := cacheKey(strategyID, symbol)

	m.mu.RLock()
	entry, ok := m.cache[key]
	m.mu.RUnlock()
	if ok && m.now().Sub(entry.insertedAt) < m.ttl {
		return entry.snap
	}

	snap := m.resolveUncached(ctx, strategyID, symbol)
	m.mu.Lock()
	m.cache[key] = cacheEntry{snap: snap, insertedAt: m.now()}
	m.mu.Unlock()
	return snap
}

func (m *Manager) resolveUncached(ctx context.Context, strategyID, symbol string) Snapshot {
	if m.store != nil && m.store.Connected() {
		if symbol != "" {
			if cfg, err := m.store.GetConfig(ctx, strategyID, symbol); err == nil && cfg != nil {
				return Snapshot{Parameters: copyMap(cfg.Parameters), Version: cfg.Version, Source: SourceStore, IsOverride: true}
			}
		}
		if cfg, err := m.store.GetConfig(ctx, strategyID, ""); err == nil && cfg != nil {
			return Snapshot{Parameters: copyMap(cfg.Parameters), Version: cfg.Version, Source: SourceStore}
		}
	}
	if params, ok := m.env[strategyID]; ok && len(params) > 0 {
		return Snapshot{Parameters: copyMap(params), Source: SourceEnvironment}
	}
	return Snapshot{Parameters: Defaults(strategyID), Source: SourceDefault}
}

// SetRequest describes one configuration write.
type SetRequest struct {
	StrategyID   string
	Symbol       string // empty for global
	Parameters   map[string]any
	ChangedBy    string
	Reason       string
	ValidateOnly bool
}

// Set validates and persists a configuration. In ValidateOnly mode nothing
// is mutated and no audit record is written. A successful write produces
// exactly one audit record and invalidates the affected cache key.
func (m *Manager) Set(ctx context.Context, req SetRequest) (*StoredConfig, []ValidationError, error) {
	if errs := Validate(req.StrategyID, req.Parameters); len(errs) > 0 {
		return nil, errs, nil
	}
	if req.ValidateOnly {
		return nil, nil, nil
	}
	if m.store == nil || !m.store.Connected() {
		return nil, nil, ErrStoreUnavailable
	}

	existing, err := m.store.GetConfig(ctx, req.StrategyID, req.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("read existing config: %w", err)
	}

	now := m.now().UTC()
	cfg := &StoredConfig{
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Parameters: copyMap(req.Parameters),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  req.ChangedBy,
	}
	action := ActionCreate
	var oldParams map[string]any
	if existing != nil {
		cfg.Version = existing.Version + 1
		cfg.CreatedAt = existing.CreatedAt
		action = ActionUpdate
		oldParams = existing.Parameters
	}
	if req.Reason != "" {
		cfg.Metadata = map[string]any{"reason": req.Reason}
	}

	if err := m.store.UpsertConfig(ctx, cfg); err != nil {
		return nil, nil, fmt.Errorf("persist config: %w", err)
	}

	if _, err := m.store.CreateAuditRecord(ctx, &AuditRecord{
		StrategyID:    req.StrategyID,
		Symbol:        req.Symbol,
		Action:        action,
		OldParameters: oldParams,
		NewParameters: copyMap(req.Parameters),
		ChangedBy:     req.ChangedBy,
		ChangedAt:     now,
		Reason:        req.Reason,
	}); err != nil {
		return nil, nil, fmt.Errorf("write audit record: %w", err)
	}

	m.invalidate(req.StrategyID, req.Symbol)
	m.log.Info().
		Str("strategy", req.StrategyID).
		Str("symbol", req.Symbol).
		Str("action", action).
		Int("version", cfg.Version).
		Str("changed_by", req.ChangedBy).
		Msg("config updated")

	return cfg, nil, nil
}

// Delete removes a configuration, writing exactly one DELETE audit record
// with the removed parameters (best-effort read) and nil new parameters.
func (m *Manager) Delete(ctx context.Context, strategyID, symbol, changedBy, reason string) error {
	if m.store == nil || !m.store.Connected() {
		return ErrStoreUnavailable
	}

	existing, err := m.store.GetConfig(ctx, strategyID, symbol)
	if err != nil {
		m.log.Warn().Err(err).Str("strategy", strategyID).Msg("pre-delete read failed")
	} else if existing == nil {
		return fmt.Errorf("config %s: %w", cacheKey(strategyID, symbol), ErrNotFound)
	}
	var oldParams map[string]any
	if existing != nil {
		oldParams = existing.Parameters
	}

	if err := m.store.DeleteConfig(ctx, strategyID, symbol); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}

	if _, err := m.store.CreateAuditRecord(ctx, &AuditRecord{
		StrategyID:    strategyID,
		Symbol:        symbol,
		Action:        ActionDelete,
		OldParameters: oldParams,
		NewParameters: nil,
		ChangedBy:     changedBy,
		ChangedAt:     m.now().UTC(),
		Reason:        reason,
	}); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}

	m.invalidate(strategyID, symbol)
	m.log.Info().Str("strategy", strategyID).Str("symbol", symbol).Msg("config deleted")
	return nil
}

// RollbackRequest identifies the audit state to restore: either a version
// number or an audit record id.
type RollbackRequest struct {
	StrategyID    string
	Symbol        string
	TargetVersion int    // > 0 selects by version
	AuditID       string // otherwise selects by audit id
	ChangedBy     string
	Reason        string
}

// Rollback restores the parameters captured by a historical audit record via
// a normal update: the result is a new version (current + 1), never the old
// version number. Audit ids belonging to a different strategy are refused as
// not found.
func (m *Manager) Rollback(ctx context.Context, req RollbackRequest) (*StoredConfig, []ValidationError, error) {
	if m.store == nil || !m.store.Connected() {
		return nil, nil, ErrStoreUnavailable
	}

	var (
		target *AuditRecord
		err    error
	)
	switch {
	case req.TargetVersion > 0:
		target, err = m.store.GetAuditRecordByVersion(ctx, req.StrategyID, req.TargetVersion, req.Symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve version %d: %w", req.TargetVersion, err)
		}
		if target == nil {
			return nil, nil, fmt.Errorf("version %d: %w", req.TargetVersion, ErrNotFound)
		}
	case req.AuditID != "":
		target, err = m.store.GetAuditRecordByID(ctx, req.AuditID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve audit id %s: %w", req.AuditID, err)
		}
		if target == nil {
			return nil, nil, fmt.Errorf("audit record %s: %w", req.AuditID, ErrNotFound)
		}
		// Security check: an audit id from another strategy must not leak
		// or apply that strategy's parameters here.
		if target.StrategyID != req.StrategyID {
			return nil, nil, fmt.Errorf("audit record %s not found for strategy %s: %w", req.AuditID, req.StrategyID, ErrNotFound)
		}
	default:
		return nil, nil, fmt.Errorf("rollback target missing: %w", ErrNotFound)
	}

	if len(target.NewParameters) == 0 {
		return nil, nil, fmt.Errorf("target audit record has no parameters: %w", ErrNotFound)
	}

	params := copyMap(target.NewParameters)
	delete(params, "version") // stored snapshots may embed their version

	reason := "Rollback: " + req.Reason
	if req.AuditID != "" {
		reason = fmt.Sprintf("%s (from audit %s)", reason, target.ID)
	} else {
		reason = fmt.Sprintf("%s (to version %d)", reason, req.TargetVersion)
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = "system_rollback"
	}

	return m.Set(ctx, SetRequest{
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Parameters: params,
		ChangedBy:  changedBy,
		Reason:     reason,
	})
}

// AuditTrail returns the change history, most recent first.
func (m *Manager) AuditTrail(ctx context.Context, strategyID, symbol string, limit int) ([]AuditRecord, error) {
	if m.store == nil || !m.store.Connected() {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return m.store.GetAuditTrail(ctx, strategyID, symbol, limit)
}

// ListStrategies summarizes every known strategy and its override coverage.
func (m *Manager) ListStrategies(ctx context.Context) []StrategyInfo {
	out := make([]StrategyInfo, 0, len(schemas))
	for _, id := range ListStrategies() {
		name, description := Metadata(id)
		info := StrategyInfo{
			StrategyID:      id,
			Name:            name,
			Description:     description,
			SymbolOverrides: []string{},
			ParameterCount:  len(Schema(id)),
		}
		if m.store != nil && m.store.Connected() {
			if cfg, err := m.store.GetConfig(ctx, id, ""); err == nil && cfg != nil {
				info.HasGlobalConfig = true
			}
			if overrides, err := m.store.ListSymbolOverrides(ctx, id); err == nil && overrides != nil {
				info.SymbolOverrides = overrides
			}
		}
		out = append(out, info)
	}
	return out
}

// RefreshCache drops every cached entry immediately.
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	n := len(m.cache)
	m.cache = make(map[string]cacheEntry)
	m.mu.Unlock()
	m.log.Info().Int("entries", n).Msg("configuration cache cleared")
}

// Run sweeps expired cache entries until ctx is cancelled. The sweep is an
// optimization only; Resolve also expires entries lazily.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.cache {
		if now.Sub(entry.insertedAt) >= m.ttl {
			delete(m.cache, key)
		}
	}
}

func (m *Manager) invalidate(strategyID, symbol string) {
	m.mu.Lock()
	delete(m.cache, cacheKey(strategyID, symbol))
	m.mu.Unlock()
}

// Health reports the manager's health snapshot for heartbeat and admin.
func (m *Manager) Health() map[string]any {
	m.mu.RLock()
	entries := len(m.cache)
	m.mu.RUnlock()
	return map[string]any{
		"store_connected": m.store != nil && m.store.Connected(),
		"cache_entries":   entries,
		"cache_ttl":       m.ttl.String(),
	}
}

// ParseRollbackTarget interprets an admin-supplied rollback target string:
// digits select a version, anything else is an audit id.
func ParseRollbackTarget(target string) (version int, auditID string) {
	if n, err := strconv.Atoi(target); err == nil && n > 0 {
		return n, ""
	}
	return 0, target
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
