package market

import (
	"math"
	"testing"
)

func TestMidPriceEmptySides(t *testing.T) {
	d := &DepthUpdate{Sym: "BTCUSDT"}
	if d.MidPrice() != 0 {
		t.Fatal("empty book MidPrice should be 0")
	}
	d.Bids = []Level{{Price: "50000", Quantity: "1"}}
	if d.MidPrice() != 0 {
		t.Fatal("one-sided book MidPrice should be 0")
	}
	if d.SpreadPercent() != 0 {
		t.Fatal("one-sided book SpreadPercent should be 0")
	}
}

func TestSpreadPercent(t *testing.T) {
	d := &DepthUpdate{
		Sym:  "BTCUSDT",
		Bids: []Level{{Price: "50000", Quantity: "1"}},
		Asks: []Level{{Price: "50075", Quantity: "1"}},
	}
	if got := d.SpreadPercent(); math.Abs(got-0.15) > 1e-9 {
		t.Fatalf("SpreadPercent = %v, want 0.15", got)
	}
}

func TestBestBidBestAsk(t *testing.T) {
	d := &DepthUpdate{
		Sym:  "BTCUSDT",
		Bids: []Level{{Price: "50000", Quantity: "1"}, {Price: "49999", Quantity: "2"}},
		Asks: []Level{{Price: "50001", Quantity: "1"}},
	}
	if d.BestBid() != 50000 || d.BestAsk() != 50001 {
		t.Fatalf("best bid/ask = %v/%v", d.BestBid(), d.BestAsk())
	}
}

func TestTradeNotional(t *testing.T) {
	tr := &Trade{Price: "100.5", Quantity: "2"}
	if tr.Notional() != 201 {
		t.Fatalf("Notional = %v, want 201", tr.Notional())
	}
}

func TestAccessorsOnGarbageStrings(t *testing.T) {
	tr := &Trade{Price: "x", Quantity: "y"}
	if tr.PriceFloat() != 0 || tr.QuantityFloat() != 0 || tr.Notional() != 0 {
		t.Fatal("garbage strings should read as 0")
	}
}
