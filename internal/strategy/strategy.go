// Package strategy defines the strategy contract and the analyzers that
// turn market events into trading signals.
package strategy

import (
	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// Params is a read-only snapshot of a strategy's resolved parameters for the
// event being processed. Strategies look values up with the typed helpers
// below and fall back to their own defaults on missing or mistyped entries.
type Params map[string]any

// Strategy is the contract every analyzer implements. OnEvent is pure in its
// input but may mutate strategy-private rolling state; it returns zero or
// more signals for the event. Implementations enforce their own per-key
// rate limiting.
type Strategy interface {
	ID() string
	Wants(ev market.Event) bool
	OnEvent(ev market.Event, p Params) []signal.Signal
}

// FloatParam reads a numeric parameter, tolerating the int/float64 blurring
// that JSON and BSON decoding introduce.
func FloatParam(p Params, key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

// IntParam reads an integer parameter.
func IntParam(p Params, key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// BoolParam reads a boolean parameter.
func BoolParam(p Params, key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// StringsParam reads a list-of-strings parameter.
func StringsParam(p Params, key string, def []string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	default:
		return def
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
