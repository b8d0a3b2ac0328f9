package strategyconfig

import (
	"fmt"
	"math"
	"sort"
)

// Validation error codes returned to callers.
const (
	CodeUnknownParameter = "UNKNOWN_PARAMETER"
	CodeInvalidType      = "INVALID_TYPE"
	CodeOutOfRange       = "OUT_OF_RANGE"
	CodeValidationError  = "VALIDATION_ERROR"
)

// ParamSpec declares one configurable parameter: its type, optional numeric
// range, optional allowed values, and the built-in default.
type ParamSpec struct {
	Type        string  `json:"type"` // int, float, bool, string, list
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Allowed     []any   `json:"allowed_values,omitempty"`
	Default     any     `json:"default"`
	Description string  `json:"description"`
}

// ValidationError is one human-readable validation failure with a machine
// code and an optional suggested value.
type ValidationError struct {
	Field     string `json:"field"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Suggested any    `json:"suggested_value,omitempty"`
}

type strategyMeta struct {
	name        string
	description string
	schema      map[string]ParamSpec
}

func fp(v float64) *float64 { return &v }

// schemas declares every strategy's parameter surface. Built-in defaults
// come from the Default field.
var schemas = map[string]strategyMeta{
	"orderbook_skew": {
		name:        "Order Book Skew",
		description: "Signals on top-of-book bid/ask volume imbalance",
		schema: map[string]ParamSpec{
			"top_levels":          {Type: "int", Min: fp(1), Max: fp(20), Default: 5, Description: "Depth levels summed per side"},
			"buy_threshold":       {Type: "float", Min: fp(1.0), Max: fp(10.0), Default: 1.2, Description: "Bid/ask ratio that triggers a buy"},
			"sell_threshold":      {Type: "float", Min: fp(0.1), Max: fp(1.0), Default: 0.8, Description: "Bid/ask ratio that triggers a sell"},
			"min_spread_percent":  {Type: "float", Min: fp(0.0), Max: fp(5.0), Default: 0.1, Description: "Minimum spread percent to consider the book"},
			"min_signal_interval": {Type: "float", Min: fp(0), Max: fp(86400), Default: 60.0, Description: "Seconds between signals per symbol"},
		},
	},
	"trade_momentum": {
		name:        "Trade Momentum",
		description: "Scores rolling trade flow per symbol",
		schema: map[string]ParamSpec{
			"window_size":         {Type: "int", Min: fp(2), Max: fp(500), Default: 50, Description: "Trades kept in the rolling window"},
			"price_weight":        {Type: "float", Min: fp(0), Max: fp(1), Default: 0.4, Description: "Weight of the price-change component"},
			"quantity_weight":     {Type: "float", Min: fp(0), Max: fp(1), Default: 0.3, Description: "Weight of the volume-share component"},
			"maker_weight":        {Type: "float", Min: fp(0), Max: fp(1), Default: 0.3, Description: "Weight of the maker-flow component"},
			"buy_threshold":       {Type: "float", Min: fp(0), Max: fp(1), Default: 0.7, Description: "Score that triggers a buy"},
			"sell_threshold":      {Type: "float", Min: fp(-1), Max: fp(0), Default: -0.7, Description: "Score that triggers a sell"},
			"min_quantity":        {Type: "float", Min: fp(0), Max: fp(1000), Default: 0.001, Description: "Minimum trade quantity to score"},
			"min_signal_interval": {Type: "float", Min: fp(0), Max: fp(86400), Default: 60.0, Description: "Seconds between signals per symbol"},
		},
	},
	"ticker_velocity": {
		name:        "Ticker Velocity",
		description: "Signals on fast last-price moves inside a time window",
		schema: map[string]ParamSpec{
			"time_window":         {Type: "float", Min: fp(5), Max: fp(3600), Default: 60.0, Description: "Sample window in seconds"},
			"buy_threshold":       {Type: "float", Min: fp(0), Max: fp(100), Default: 0.5, Description: "Percent change that triggers a buy"},
			"sell_threshold":      {Type: "float", Min: fp(-100), Max: fp(0), Default: -0.5, Description: "Percent change that triggers a sell"},
			"min_price_change":    {Type: "float", Min: fp(0), Max: fp(100), Default: 0.1, Description: "Minimum absolute percent change to consider"},
			"min_signal_interval": {Type: "float", Min: fp(0), Max: fp(86400), Default: 60.0, Description: "Seconds between signals per symbol"},
		},
	},
	"btc_dominance": {
		name:        "Bitcoin Dominance",
		description: "Rotation signals from the BTC-dominance momentum proxy",
		schema: map[string]ParamSpec{
			"high_threshold":      {Type: "float", Min: fp(50), Max: fp(95), Default: 70.0, Description: "Dominance percent above which rotation to BTC triggers"},
			"low_threshold":       {Type: "float", Min: fp(5), Max: fp(50), Default: 40.0, Description: "Dominance percent below which alt season triggers"},
			"change_threshold":    {Type: "float", Min: fp(0.5), Max: fp(50), Default: 5.0, Description: "24h dominance change that triggers momentum signals"},
			"window_hours":        {Type: "float", Min: fp(1), Max: fp(48), Default: 24.0, Description: "Momentum window in hours"},
			"min_signal_interval": {Type: "float", Min: fp(0), Max: fp(604800), Default: 14400.0, Description: "Seconds between signals"},
		},
	},
	"cross_exchange_spread": {
		name:        "Cross-Exchange Spread",
		description: "Paired arbitrage signals across venues",
		schema: map[string]ParamSpec{
			"spread_threshold_percent": {Type: "float", Min: fp(0.05), Max: fp(10), Default: 0.5, Description: "Minimum venue spread percent"},
			"refresh_interval":         {Type: "float", Min: fp(1), Max: fp(600), Default: 10.0, Description: "Seconds between external venue polls"},
			"min_signal_interval":      {Type: "float", Min: fp(0), Max: fp(86400), Default: 300.0, Description: "Seconds between signals per venue pair"},
			"exchanges":                {Type: "list", Default: []any{"binance", "coinbase"}, Description: "Venues to compare"},
		},
	},
	"onchain_metrics": {
		name:        "On-Chain Metrics",
		description: "Fundamental signals from network activity and flows",
		schema: map[string]ParamSpec{
			"network_growth_threshold": {Type: "float", Min: fp(1), Max: fp(100), Default: 10.0, Description: "24h active-address growth percent for a buy"},
			"volume_threshold":         {Type: "float", Min: fp(1), Max: fp(100), Default: 15.0, Description: "24h exchange net-inflow growth percent for a sell"},
			"refresh_interval":         {Type: "float", Min: fp(60), Max: fp(86400), Default: 3600.0, Description: "Seconds between metric snapshots"},
			"min_signal_interval":      {Type: "float", Min: fp(0), Max: fp(604800), Default: 86400.0, Description: "Seconds between signals per asset"},
		},
	},
	"iceberg_detector": {
		name:        "Iceberg Order Detector",
		description: "Detects hidden institutional orders from level history",
		schema: map[string]ParamSpec{
			"min_refill_count":              {Type: "int", Min: fp(1), Max: fp(20), Default: 2, Description: "Depletion-refill cycles required"},
			"fast_refill_seconds":           {Type: "float", Min: fp(0.5), Max: fp(60), Default: 5.0, Description: "Maximum mean refill latency"},
			"depletion_ratio":               {Type: "float", Min: fp(0.01), Max: fp(0.9), Default: 0.3, Description: "Fraction of peak that counts as depleted"},
			"refill_ratio":                  {Type: "float", Min: fp(0.1), Max: fp(1.0), Default: 0.8, Description: "Fraction of peak that counts as refilled"},
			"consistency_threshold":         {Type: "float", Min: fp(0.1), Max: fp(1.0), Default: 0.9, Description: "Volume-consistency score required"},
			"persistence_threshold_seconds": {Type: "float", Min: fp(10), Max: fp(3600), Default: 120.0, Description: "Level lifetime that counts as anchored"},
			"level_proximity_pct":           {Type: "float", Min: fp(0.05), Max: fp(10), Default: 1.0, Description: "Max distance from mid price, percent"},
			"min_signal_interval":           {Type: "float", Min: fp(0), Max: fp(86400), Default: 120.0, Description: "Seconds between signals per level"},
		},
	},
	"spread_liquidity": {
		name:        "Spread / Liquidity",
		description: "Defensive signals when spreads widen and depth drains",
		schema: map[string]ParamSpec{
			"top_levels":           {Type: "int", Min: fp(1), Max: fp(20), Default: 5, Description: "Depth levels summed per side"},
			"window_seconds":       {Type: "float", Min: fp(5), Max: fp(600), Default: 30.0, Description: "Rolling comparison window"},
			"spread_widen_percent": {Type: "float", Min: fp(5), Max: fp(1000), Default: 50.0, Description: "Relative spread widening that triggers"},
			"depth_drop_percent":   {Type: "float", Min: fp(5), Max: fp(100), Default: 30.0, Description: "Relative depth drop that triggers"},
			"min_signal_interval":  {Type: "float", Min: fp(0), Max: fp(86400), Default: 60.0, Description: "Seconds between signals per symbol"},
		},
	},
}

// ListStrategies returns all known strategy ids, sorted.
func ListStrategies() []string {
	out := make([]string, 0, len(schemas))
	for id := range schemas {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// KnownStrategy reports whether a strategy id has a schema.
func KnownStrategy(id string) bool {
	_, ok := schemas[id]
	return ok
}

// Schema returns the parameter schema for a strategy (nil if unknown).
func Schema(id string) map[string]ParamSpec {
	meta, ok := schemas[id]
	if !ok {
		return nil
	}
	return meta.schema
}

// Metadata returns the display name and description for a strategy.
func Metadata(id string) (name, description string) {
	meta, ok := schemas[id]
	if !ok {
		return id, ""
	}
	return meta.name, meta.description
}

// Defaults returns a fresh copy of the built-in defaults for a strategy.
func Defaults(id string) map[string]any {
	meta, ok := schemas[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(meta.schema))
	for key, spec := range meta.schema {
		out[key] = spec.Default
	}
	return out
}

// Validate checks a parameter map against a strategy's schema. It returns an
// empty slice when everything passes; it never mutates anything.
func Validate(strategyID string, params map[string]any) []ValidationError {
	meta, ok := schemas[strategyID]
	if !ok {
		return []ValidationError{{
			Field:   "strategy_id",
			Message: fmt.Sprintf("unknown strategy: %s", strategyID),
			Code:    CodeValidationError,
		}}
	}

	var errs []ValidationError
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		spec, declared := meta.schema[key]
		if !declared {
			errs = append(errs, ValidationError{
				Field:   key,
				Message: fmt.Sprintf("unknown parameter %q for strategy %s", key, strategyID),
				Code:    CodeUnknownParameter,
			})
			continue
		}
		errs = append(errs, checkValue(key, value, spec)...)
	}
	return errs
}

func checkValue(key string, value any, spec ParamSpec) []ValidationError {
	switch spec.Type {
	case "int":
		n, ok := asInt(value)
		if !ok {
			return []ValidationError{{
				Field:     key,
				Message:   fmt.Sprintf("parameter %q must be an integer", key),
				Code:      CodeInvalidType,
				Suggested: spec.Default,
			}}
		}
		return checkRange(key, float64(n), spec)
	case "float":
		f, ok := asFloat(value)
		if !ok {
			return []ValidationError{{
				Field:     key,
				Message:   fmt.Sprintf("parameter %q must be a number", key),
				Code:      CodeInvalidType,
				Suggested: spec.Default,
			}}
		}
		return checkRange(key, f, spec)
	case "bool":
		if _, ok := value.(bool); !ok {
			return []ValidationError{{
				Field:     key,
				Message:   fmt.Sprintf("parameter %q must be a boolean", key),
				Code:      CodeInvalidType,
				Suggested: spec.Default,
			}}
		}
	case "string":
		s, ok := value.(string)
		if !ok {
			return []ValidationError{{
				Field:     key,
				Message:   fmt.Sprintf("parameter %q must be a string", key),
				Code:      CodeInvalidType,
				Suggested: spec.Default,
			}}
		}
		return checkAllowed(key, s, spec)
	case "list":
		switch value.(type) {
		case []any, []string:
		default:
			return []ValidationError{{
				Field:     key,
				Message:   fmt.Sprintf("parameter %q must be a list", key),
				Code:      CodeInvalidType,
				Suggested: spec.Default,
			}}
		}
	default:
		return []ValidationError{{
			Field:   key,
			Message: fmt.Sprintf("parameter %q has unsupported schema type %q", key, spec.Type),
			Code:    CodeValidationError,
		}}
	}
	return nil
}

func checkRange(key string, v float64, spec ParamSpec) []ValidationError {
	if spec.Min != nil && v < *spec.Min {
		return []ValidationError{{
			Field:     key,
			Message:   fmt.Sprintf("parameter %q value %v below minimum %v", key, v, *spec.Min),
			Code:      CodeOutOfRange,
			Suggested: *spec.Min,
		}}
	}
	if spec.Max != nil && v > *spec.Max {
		return []ValidationError{{
			Field:     key,
			Message:   fmt.Sprintf("parameter %q value %v above maximum %v", key, v, *spec.Max),
			Code:      CodeOutOfRange,
			Suggested: *spec.Max,
		}}
	}
	return nil
}

func checkAllowed(key string, v any, spec ParamSpec) []ValidationError {
	if len(spec.Allowed) == 0 {
		return nil
	}
	for _, allowed := range spec.Allowed {
		if allowed == v {
			return nil
		}
	}
	return []ValidationError{{
		Field:     key,
		Message:   fmt.Sprintf("parameter %q value %v not in allowed values", key, v),
		Code:      CodeOutOfRange,
		Suggested: spec.Allowed[0],
	}}
}

func asInt(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
