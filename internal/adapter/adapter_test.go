package adapter

import (
	"testing"
	"time"

	"github.com/quantfeed/strategyd/internal/signal"
)

func sample() *signal.Signal {
	return &signal.Signal{
		ID:         "sig-1234567890",
		Symbol:     "BTCUSDT",
		Type:       signal.TypeBuy,
		Action:     signal.ActionOpenLong,
		Confidence: signal.ConfidenceHigh,
		Score:      0.85,
		Price:      50000,
		Strategy:   "orderbook_skew",
		Metadata:   map[string]any{"imbalance": 1.5},
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransformFields(t *testing.T) {
	wire := Transform(sample())

	if wire["symbol"] != "BTCUSDT" {
		t.Fatalf("symbol = %v", wire["symbol"])
	}
	if wire["action"] != "buy" {
		t.Fatalf("action = %v, want buy", wire["action"])
	}
	if wire["signal_type"] != "buy" {
		t.Fatalf("signal_type = %v, want buy", wire["signal_type"])
	}
	if wire["signal_id"] != "sig-1234567890" {
		t.Fatalf("signal_id = %v, want carried over", wire["signal_id"])
	}
	if wire["id"] == "" || wire["id"] == wire["signal_id"] {
		t.Fatalf("id should be a fresh uuid, got %v", wire["id"])
	}
	if wire["confidence"] != 0.85 {
		t.Fatalf("confidence = %v", wire["confidence"])
	}
	if wire["strength"] != "strong" {
		t.Fatalf("strength = %v, want strong", wire["strength"])
	}
	if wire["price"] != 50000.0 || wire["current_price"] != 50000.0 {
		t.Fatalf("prices = %v/%v", wire["price"], wire["current_price"])
	}
	if wire["source"] != Source {
		t.Fatalf("source = %v", wire["source"])
	}
	if wire["strategy_id"] != "orderbook_skew_BTCUSDT" {
		t.Fatalf("strategy_id = %v", wire["strategy_id"])
	}
	if wire["timeframe"] != "tick" {
		t.Fatalf("timeframe = %v, want tick default", wire["timeframe"])
	}
	if wire["order_type"] != "market" || wire["time_in_force"] != "GTC" {
		t.Fatalf("order fields = %v/%v", wire["order_type"], wire["time_in_force"])
	}
	if wire["quantity"] != 0.001 {
		t.Fatalf("quantity = %v, want 0.001 for a 5-figure price", wire["quantity"])
	}
	if wire["stop_loss_pct"] != 0.02 || wire["take_profit_pct"] != 0.05 {
		t.Fatalf("risk = %v/%v, want 0.02/0.05 for HIGH", wire["stop_loss_pct"], wire["take_profit_pct"])
	}
	if wire["timestamp"] != "2025-06-01T12:00:00Z" {
		t.Fatalf("timestamp = %v", wire["timestamp"])
	}

	meta := wire["metadata"].(map[string]any)
	if meta["imbalance"] != 1.5 {
		t.Fatalf("metadata lost: %v", meta)
	}
	if meta["original_signal_type"] != "BUY" || meta["original_signal_action"] != "OPEN_LONG" || meta["original_confidence"] != "HIGH" {
		t.Fatalf("original fields wrong: %v", meta)
	}
}

func TestActionMappingTotalAndIdempotent(t *testing.T) {
	cases := map[signal.Action]string{
		signal.ActionOpenLong:   "buy",
		signal.ActionOpenShort:  "sell",
		signal.ActionCloseLong:  "close",
		signal.ActionCloseShort: "close",
		signal.ActionHold:       "hold",
	}
	for action, want := range cases {
		if got := ActionString(action); got != want {
			t.Fatalf("ActionString(%s) = %q, want %q", action, got, want)
		}
		// Repeated application maps to the same string.
		if again := ActionString(action); again != want {
			t.Fatalf("ActionString not stable for %s", action)
		}
	}
}

func TestStrengthBands(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "extreme"},
		{0.9, "extreme"},
		{0.75, "strong"},
		{0.7, "strong"},
		{0.55, "medium"},
		{0.5, "medium"},
		{0.3, "weak"},
	}
	for _, c := range cases {
		if got := StrengthFor(c.score); got != c.want {
			t.Fatalf("StrengthFor(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestQuantitySizeTable(t *testing.T) {
	cases := []struct {
		price float64
		want  float64
	}{
		{50000, 0.001},
		{3000, 0.01},
		{250, 0.1},
		{2.5, 1.0},
		{0.5, 10.0},
	}
	for _, c := range cases {
		if got := QuantityFor(c.price); got != c.want {
			t.Fatalf("QuantityFor(%v) = %v, want %v", c.price, got, c.want)
		}
	}
}

func TestRiskBuckets(t *testing.T) {
	for _, c := range []struct {
		conf signal.Confidence
		sl   float64
		tp   float64
	}{
		{signal.ConfidenceHigh, 0.02, 0.05},
		{signal.ConfidenceMedium, 0.03, 0.04},
		{signal.ConfidenceLow, 0.05, 0.03},
	} {
		sl, tp := riskFor(c.conf)
		if sl != c.sl || tp != c.tp {
			t.Fatalf("riskFor(%s) = %v/%v, want %v/%v", c.conf, sl, tp, c.sl, c.tp)
		}
	}
}

func TestTransformMintsSignalIDWhenMissing(t *testing.T) {
	sig := sample()
	sig.ID = ""
	wire := Transform(sig)
	if wire["signal_id"] == "" {
		t.Fatal("missing signal id should be minted")
	}
}
