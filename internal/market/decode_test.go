package market

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeDepth(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@depth20@100ms","data":{
		"s":"BTCUSDT","E":1700000000000,"U":100,"u":105,
		"b":[["50000.00","1.5"],["49999.00","2.0"]],
		"a":[["50001.00","0.8"],["50002.00","1.1"]]}}`)

	ev, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d, ok := ev.(*DepthUpdate)
	if !ok {
		t.Fatalf("Decode returned %T, want *DepthUpdate", ev)
	}
	if d.Sym != "BTCUSDT" {
		t.Fatalf("symbol = %q, want BTCUSDT", d.Sym)
	}
	if d.FirstUpdateID != 100 || d.FinalUpdateID != 105 {
		t.Fatalf("update ids = %d/%d, want 100/105", d.FirstUpdateID, d.FinalUpdateID)
	}
	if len(d.Bids) != 2 || len(d.Asks) != 2 {
		t.Fatalf("levels = %d/%d, want 2/2", len(d.Bids), len(d.Asks))
	}
	if d.MidPrice() != 50000.5 {
		t.Fatalf("MidPrice = %v, want 50000.5", d.MidPrice())
	}
}

func TestDecodeTrade(t *testing.T) {
	payload := []byte(`{"stream":"ethusdt@trade","data":{
		"s":"ETHUSDT","t":42,"p":"3000.50","q":"0.25","T":1700000000100,"m":true,"E":1700000000101}}`)

	ev, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tr, ok := ev.(*Trade)
	if !ok {
		t.Fatalf("Decode returned %T, want *Trade", ev)
	}
	if tr.TradeID != 42 || !tr.BuyerIsMaker {
		t.Fatalf("trade = %+v", tr)
	}
	if tr.PriceFloat() != 3000.5 {
		t.Fatalf("PriceFloat = %v, want 3000.5", tr.PriceFloat())
	}
}

func TestDecodeTicker(t *testing.T) {
	payload := []byte(`{"stream":"bnbusdt@ticker","data":{
		"s":"BNBUSDT","E":1700000000200,"c":"600.1","o":"590.0","h":"610.0","l":"585.0",
		"v":"12345.6","q":"7400000.0","p":"10.1","P":"1.71","w":"598.3",
		"O":1699913600200,"C":1700000000200,"F":1,"L":900,"n":900}}`)

	ev, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	k, ok := ev.(*Ticker)
	if !ok {
		t.Fatalf("Decode returned %T, want *Ticker", ev)
	}
	if k.LastPriceFloat() != 600.1 {
		t.Fatalf("LastPriceFloat = %v, want 600.1", k.LastPriceFloat())
	}
	if k.TradeCount != 900 {
		t.Fatalf("TradeCount = %d, want 900", k.TradeCount)
	}
}

func TestDecodeUnknownStreamSuffix(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@kline_1m","data":{"s":"BTCUSDT"}}`)
	_, err := Decode(payload)
	if !errors.Is(err, ErrUnknownStream) {
		t.Fatalf("err = %v, want ErrUnknownStream", err)
	}
}

func TestDecodeRejectsShortSymbol(t *testing.T) {
	payload := []byte(`{"stream":"btc@trade","data":{"s":"BTC","t":1,"p":"1.0","q":"1.0","T":1,"m":false,"E":1}}`)
	if _, err := Decode(payload); err == nil {
		t.Fatal("short symbol should be rejected")
	}
}

func TestDecodeRejectsMissingEnvelope(t *testing.T) {
	if _, err := Decode([]byte(`{"data":{}}`)); !errors.Is(err, ErrBadEnvelope) {
		t.Fatal("missing stream should be a bad envelope")
	}
	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrBadEnvelope) {
		t.Fatal("bad json should be a bad envelope")
	}
}

func TestDecodeRejectsBadOrdering(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@depth","data":{
		"s":"BTCUSDT","E":1,"U":1,"u":1,
		"b":[["49999.00","1.0"],["50000.00","1.0"]],
		"a":[["50001.00","1.0"]]}}`)
	if _, err := Decode(payload); err == nil {
		t.Fatal("ascending bids should be rejected")
	}
}

func TestDecodeRejectsNegativeQuantity(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@depth","data":{
		"s":"BTCUSDT","E":1,"U":1,"u":1,
		"b":[["50000.00","-1.0"]],"a":[["50001.00","1.0"]]}}`)
	if _, err := Decode(payload); err == nil {
		t.Fatal("negative quantity should be rejected")
	}
}

func TestDecodeKeepsZeroQuantityLevels(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@depth","data":{
		"s":"BTCUSDT","E":1,"U":1,"u":1,
		"b":[["50000.00","0"]],"a":[["50001.00","1.0"]]}}`)
	ev, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d := ev.(*DepthUpdate)
	if len(d.Bids) != 1 || d.Bids[0].QuantityFloat() != 0 {
		t.Fatal("zero-quantity level should be retained")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		&DepthUpdate{
			Sym: "BTCUSDT", EventTime: 1700000000000, FirstUpdateID: 7, FinalUpdateID: 9,
			Bids: []Level{{Price: "50000.00", Quantity: "1.5"}},
			Asks: []Level{{Price: "50001.00", Quantity: "0.5"}},
		},
		&Trade{
			Sym: "ETHUSDT", EventTime: 5, TradeID: 11, Price: "3000.1",
			Quantity: "0.2", TradeTime: 4, BuyerIsMaker: true,
		},
		&Ticker{
			Sym: "BNBUSDT", EventTime: 6, LastPrice: "600.0", OpenPrice: "590.0",
			HighPrice: "610.0", LowPrice: "580.0", Volume: "10.0", QuoteVolume: "6000.0",
			PriceChange: "10.0", PriceChangePercent: "1.7", WeightedAvgPrice: "595.0",
			OpenTime: 1, CloseTime: 2, FirstTradeID: 3, LastTradeID: 4, TradeCount: 2,
		},
	}
	for _, want := range events {
		raw, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%T): %v", want, err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(Encode(%T)): %v", want, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	}
}
