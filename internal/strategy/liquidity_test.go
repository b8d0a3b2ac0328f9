package strategy

import (
	"testing"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

func bookUpdate(ts int64, bidQty, askQty, askPrice string) *market.DepthUpdate {
	return &market.DepthUpdate{
		Sym:       "BTCUSDT",
		EventTime: ts,
		Bids:      []market.Level{{Price: "50000", Quantity: bidQty}},
		Asks:      []market.Level{{Price: askPrice, Quantity: askQty}},
	}
}

func TestLiquidityDefensiveSignalOnWithdrawal(t *testing.T) {
	l := NewLiquidity(testLog)
	base := int64(1700000000000)

	// Healthy bid-heavy book, then the spread triples while depth drops by
	// more than half.
	if sigs := l.OnEvent(bookUpdate(base, "6.0", "2.0", "50050"), Params{}); sigs != nil {
		t.Fatal("baseline update should not signal")
	}
	sigs := l.OnEvent(bookUpdate(base+5000, "2.0", "1.0", "50150"), Params{})
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	sig := sigs[0]
	// Book leaned bid-heavy before the event: longs get defended.
	if sig.Type != signal.TypeSell || sig.Action != signal.ActionCloseLong {
		t.Fatalf("signal = %s/%s, want SELL/CLOSE_LONG", sig.Type, sig.Action)
	}
	if sig.Strategy != "spread_liquidity" {
		t.Fatalf("strategy = %q", sig.Strategy)
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("signal invalid: %v", err)
	}
}

func TestLiquidityAskHeavyDefendsShorts(t *testing.T) {
	l := NewLiquidity(testLog)
	base := int64(1700000000000)

	l.OnEvent(bookUpdate(base, "2.0", "6.0", "50050"), Params{})
	sigs := l.OnEvent(bookUpdate(base+5000, "1.0", "2.0", "50150"), Params{})
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	if sigs[0].Type != signal.TypeBuy || sigs[0].Action != signal.ActionCloseShort {
		t.Fatalf("signal = %s/%s, want BUY/CLOSE_SHORT", sigs[0].Type, sigs[0].Action)
	}
}

func TestLiquidityStableBookNoSignal(t *testing.T) {
	l := NewLiquidity(testLog)
	base := int64(1700000000000)
	for i := 0; i < 5; i++ {
		if sigs := l.OnEvent(bookUpdate(base+int64(i)*1000, "4.0", "4.0", "50050"), Params{}); sigs != nil {
			t.Fatalf("stable book should not signal, got %v", sigs)
		}
	}
}

func TestDominanceZeroTotalMomentumNoSignal(t *testing.T) {
	d := NewDominance(testLog)
	base := int64(1700000000000)
	// Everything falling: each momentum clamps to zero, dominance is not
	// computable, nothing fires.
	prices := []string{"50000", "45000", "40000"}
	for i, p := range prices {
		if sigs := d.OnEvent(tickerEvent("BTCUSDT", p, base+int64(i)*60000), Params{}); sigs != nil {
			t.Fatalf("zero total momentum should not signal, got %v", sigs)
		}
	}
}
