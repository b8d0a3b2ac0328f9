// Package adapter maps internal signals to the downstream trade engine's
// wire format.
package adapter

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantfeed/strategyd/internal/signal"
)

// Source identifies this service in outbound messages.
const Source = "realtime-strategies"

// Transform renders a signal as the trade engine's wire dictionary. Every
// call mints a fresh envelope id; signal_id is carried over when the signal
// has one.
func Transform(sig *signal.Signal) map[string]any {
	signalID := sig.ID
	if signalID == "" {
		signalID = uuid.NewString()
	}

	metadata := make(map[string]any, len(sig.Metadata)+3)
	for k, v := range sig.Metadata {
		metadata[k] = v
	}
	metadata["original_signal_type"] = string(sig.Type)
	metadata["original_signal_action"] = string(sig.Action)
	metadata["original_confidence"] = string(sig.Confidence)

	timeframe := "tick"
	if tf, ok := sig.Metadata["timeframe"].(string); ok && tf != "" {
		timeframe = tf
	}

	stopLoss, takeProfit := riskFor(sig.Confidence)

	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return map[string]any{
		"id":              uuid.NewString(),
		"signal_id":       signalID,
		"symbol":          sig.Symbol,
		"action":          ActionString(sig.Action),
		"signal_type":     lower(string(sig.Type)),
		"confidence":      sig.Score,
		"strength":        StrengthFor(sig.Score),
		"price":           sig.Price,
		"current_price":   sig.Price,
		"source":          Source,
		"strategy":        sig.Strategy,
		"strategy_id":     sig.Strategy + "_" + sig.Symbol,
		"timeframe":       timeframe,
		"order_type":      "market",
		"time_in_force":   "GTC",
		"quantity":        QuantityFor(sig.Price),
		"stop_loss_pct":   stopLoss,
		"take_profit_pct": takeProfit,
		"timestamp":       ts.UTC().Format(time.RFC3339),
		"metadata":        metadata,
	}
}

// ActionString maps a signal action onto the engine's four action verbs.
// The mapping is total and idempotent in effect: each action maps to
// exactly one string, always.
func ActionString(a signal.Action) string {
	switch a {
	case signal.ActionOpenLong:
		return "buy"
	case signal.ActionOpenShort:
		return "sell"
	case signal.ActionCloseLong, signal.ActionCloseShort:
		return "close"
	default:
		return "hold"
	}
}

// StrengthFor buckets a confidence score into the engine's strength bands.
func StrengthFor(score float64) string {
	switch {
	case score >= 0.9:
		return "extreme"
	case score >= 0.7:
		return "strong"
	case score >= 0.5:
		return "medium"
	default:
		return "weak"
	}
}

// QuantityFor sizes the order from the price magnitude so notional stays in
// the same ballpark across assets.
func QuantityFor(price float64) float64 {
	switch {
	case price >= 10000:
		return 0.001
	case price >= 1000:
		return 0.01
	case price >= 100:
		return 0.1
	case price >= 1:
		return 1.0
	default:
		return 10.0
	}
}

// riskFor buckets stop-loss and take-profit percentages by confidence:
// tighter stops and wider targets when confidence is high.
func riskFor(c signal.Confidence) (stopLoss, takeProfit float64) {
	switch c {
	case signal.ConfidenceHigh:
		return 0.02, 0.05
	case signal.ConfidenceMedium:
		return 0.03, 0.04
	default:
		return 0.05, 0.03
	}
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
