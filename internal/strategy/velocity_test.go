package strategy

import (
	"fmt"
	"testing"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

func tickerEvent(sym, last string, ts int64) *market.Ticker {
	return &market.Ticker{Sym: sym, EventTime: ts, LastPrice: last}
}

func TestVelocityBuySignal(t *testing.T) {
	v := NewVelocity(testLog)

	// +1% over 30 seconds, well past the 0.5% buy threshold.
	base := int64(1700000000000)
	var sigs []signal.Signal
	for i := 0; i <= 3; i++ {
		price := 50000 + float64(i)*166.67
		k := tickerEvent("BTCUSDT", fmt.Sprintf("%.2f", price), base+int64(i)*10000)
		sigs = append(sigs, v.OnEvent(k, Params{})...)
	}
	if len(sigs) == 0 {
		t.Fatal("expected a velocity signal")
	}
	sig := sigs[0]
	if sig.Type != signal.TypeBuy || sig.Action != signal.ActionOpenLong {
		t.Fatalf("signal = %s/%s, want BUY/OPEN_LONG", sig.Type, sig.Action)
	}
	if sig.Strategy != "ticker_velocity" {
		t.Fatalf("strategy = %q", sig.Strategy)
	}
}

func TestVelocitySellSignal(t *testing.T) {
	v := NewVelocity(testLog)
	base := int64(1700000000000)
	var sigs []signal.Signal
	for i := 0; i <= 3; i++ {
		price := 50000 - float64(i)*200
		k := tickerEvent("BTCUSDT", fmt.Sprintf("%.2f", price), base+int64(i)*10000)
		sigs = append(sigs, v.OnEvent(k, Params{})...)
	}
	if len(sigs) == 0 {
		t.Fatal("expected a sell signal")
	}
	if sigs[0].Type != signal.TypeSell || sigs[0].Action != signal.ActionOpenShort {
		t.Fatalf("signal = %s/%s, want SELL/OPEN_SHORT", sigs[0].Type, sigs[0].Action)
	}
}

func TestVelocitySlowDriftNoSignal(t *testing.T) {
	v := NewVelocity(testLog)
	base := int64(1700000000000)
	for i := 0; i <= 5; i++ {
		price := 50000 + float64(i)*10 // ~0.1% total, under threshold
		k := tickerEvent("BTCUSDT", fmt.Sprintf("%.2f", price), base+int64(i)*10000)
		if sigs := v.OnEvent(k, Params{}); sigs != nil {
			t.Fatalf("slow drift should not signal, got %v", sigs)
		}
	}
}

func TestVelocityWindowTrimsOldSamples(t *testing.T) {
	v := NewVelocity(testLog)
	base := int64(1700000000000)

	// A big old move followed by a long quiet gap: the old sample leaves the
	// window, so no signal fires on the next tick.
	v.OnEvent(tickerEvent("BTCUSDT", "40000", base), Params{})
	k := tickerEvent("BTCUSDT", "50000", base+120000) // 2 minutes later
	if sigs := v.OnEvent(k, Params{}); sigs != nil {
		t.Fatalf("stale sample outside window must not contribute, got %v", sigs)
	}
}
