package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
	"github.com/quantfeed/strategyd/internal/tracker"
)

// icebergDepth builds one depth update of the refill scenario: the bid at
// 50000 cycles between full and depleted while the background levels carry
// ordinary quote noise.
func icebergDepth(i int, qty50000 float64) *market.DepthUpdate {
	noise := []string{"1.0", "1.4", "0.7", "1.2", "0.9"}
	return &market.DepthUpdate{
		Sym:       "BTCUSDT",
		EventTime: 1700000000000 + int64(i)*2000,
		Bids: []market.Level{
			{Price: "50000", Quantity: fmt.Sprintf("%.1f", qty50000)},
			{Price: "49999", Quantity: noise[i]},
		},
		Asks: []market.Level{
			{Price: "50002", Quantity: noise[(i+1)%5]},
			{Price: "50003", Quantity: noise[(i+2)%5]},
		},
	}
}

func TestIcebergRefillScenario(t *testing.T) {
	tr := tracker.New(5*time.Minute, 100, 200)
	s := NewIceberg(testLog, tr)

	quantities := []float64{2.0, 0.2, 2.0, 0.2, 2.0}
	var all []signal.Signal
	for i, q := range quantities {
		all = append(all, s.OnEvent(icebergDepth(i, q), Params{})...)
	}

	if len(all) != 1 {
		t.Fatalf("got %d signals over the stream, want 1: %+v", len(all), all)
	}
	sig := all[0]
	if sig.Type != signal.TypeBuy || sig.Action != signal.ActionOpenLong {
		t.Fatalf("signal = %s/%s, want BUY/OPEN_LONG", sig.Type, sig.Action)
	}
	if sig.Strategy != "iceberg_detector" {
		t.Fatalf("strategy = %q, want iceberg_detector", sig.Strategy)
	}
	if sig.Metadata["pattern_type"] != tracker.PatternRefill {
		t.Fatalf("pattern_type = %v, want refill", sig.Metadata["pattern_type"])
	}
	if sig.Metadata["iceberg_price"].(float64) != 50000 {
		t.Fatalf("iceberg_price = %v, want 50000", sig.Metadata["iceberg_price"])
	}
	if sig.Metadata["iceberg_side"] != "bid" {
		t.Fatalf("iceberg_side = %v, want bid", sig.Metadata["iceberg_side"])
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("signal invalid: %v", err)
	}
}

func TestIcebergAskSideSell(t *testing.T) {
	tr := tracker.New(5*time.Minute, 100, 200)
	s := NewIceberg(testLog, tr)

	noise := []string{"1.0", "1.4", "0.7", "1.2", "0.9"}
	quantities := []float64{3.0, 0.3, 3.0, 0.3, 3.0}
	var all []signal.Signal
	for i, q := range quantities {
		d := &market.DepthUpdate{
			Sym:       "BTCUSDT",
			EventTime: 1700000000000 + int64(i)*2000,
			Bids: []market.Level{
				{Price: "49999", Quantity: noise[i]},
			},
			Asks: []market.Level{
				{Price: "50002", Quantity: fmt.Sprintf("%.1f", q)},
				{Price: "50003", Quantity: noise[(i+1)%5]},
			},
		}
		all = append(all, s.OnEvent(d, Params{})...)
	}
	if len(all) != 1 {
		t.Fatalf("got %d signals, want 1", len(all))
	}
	if all[0].Type != signal.TypeSell || all[0].Action != signal.ActionOpenShort {
		t.Fatalf("signal = %s/%s, want SELL/OPEN_SHORT", all[0].Type, all[0].Action)
	}
	if all[0].Metadata["iceberg_side"] != "ask" {
		t.Fatalf("iceberg_side = %v, want ask", all[0].Metadata["iceberg_side"])
	}
}

func TestIcebergEmptyBookNoSignal(t *testing.T) {
	tr := tracker.New(5*time.Minute, 100, 200)
	s := NewIceberg(testLog, tr)
	d := &market.DepthUpdate{Sym: "BTCUSDT", EventTime: 1, Bids: nil, Asks: []market.Level{{Price: "50000", Quantity: "1"}}}
	if sigs := s.OnEvent(d, Params{}); sigs != nil {
		t.Fatal("one-sided book must not signal")
	}
}

func TestIcebergRateLimitPerLevel(t *testing.T) {
	tr := tracker.New(5*time.Minute, 100, 200)
	s := NewIceberg(testLog, tr)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	quantities := []float64{2.0, 0.2, 2.0, 0.2, 2.0, 0.2, 2.0}
	var all []signal.Signal
	for i, q := range quantities {
		all = append(all, s.OnEvent(icebergDepth(i%5, q), Params{})...)
	}
	// The 6th and 7th updates re-qualify the same level immediately; the
	// per-(symbol, price, side) limiter suppresses the duplicates.
	if len(all) != 1 {
		t.Fatalf("got %d signals, want 1 after rate limiting", len(all))
	}
}
