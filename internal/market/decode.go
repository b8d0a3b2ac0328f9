package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/strategyd/internal/symbol"
)

// Decode errors. Dispatchers drop the message and bump a counter; there is
// no retry path.
var (
	ErrUnknownStream = errors.New("unknown stream type")
	ErrBadEnvelope   = errors.New("malformed message envelope")
)

// envelope is the bus payload: {"stream": "<symbol>@<type>", "data": {...}}.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Decode parses a raw bus payload into a typed market event. Field names in
// data follow the exchange shorthand convention (s, E, U, u, b/a for depth;
// s, t, p, q, T, m, E for trade; the standard 24h-ticker set).
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Stream == "" || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing stream or data", ErrBadEnvelope)
	}

	at := strings.Index(env.Stream, "@")
	if at < 0 {
		return nil, fmt.Errorf("%w: stream %q has no type suffix", ErrBadEnvelope, env.Stream)
	}
	suffix := env.Stream[at+1:]

	switch {
	case strings.HasPrefix(suffix, "depth"):
		return decodeDepth(env.Data)
	case strings.HasPrefix(suffix, "trade"):
		return decodeTrade(env.Data)
	case strings.HasPrefix(suffix, "ticker"):
		return decodeTicker(env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, suffix)
	}
}

type rawDepth struct {
	Symbol    string      `json:"s"`
	EventTime int64       `json:"E"`
	FirstID   int64       `json:"U"`
	FinalID   int64       `json:"u"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

func decodeDepth(data []byte) (*DepthUpdate, error) {
	var raw rawDepth
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	sym := symbol.Normalize(raw.Symbol)
	if err := symbol.Validate(sym); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}

	bids, err := decodeLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("decode depth bids: %w", err)
	}
	asks, err := decodeLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("decode depth asks: %w", err)
	}
	if err := checkOrdering(bids, true); err != nil {
		return nil, fmt.Errorf("decode depth bids: %w", err)
	}
	if err := checkOrdering(asks, false); err != nil {
		return nil, fmt.Errorf("decode depth asks: %w", err)
	}

	return &DepthUpdate{
		Sym:           sym,
		EventTime:     raw.EventTime,
		FirstUpdateID: raw.FirstID,
		FinalUpdateID: raw.FinalID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

// decodeLevels validates each (price, quantity) pair: price must be a finite
// positive decimal, quantity a finite non-negative decimal (zero quantities
// mark level removal and are kept for refill anchoring downstream).
func decodeLevels(raw [][2]string) ([]Level, error) {
	levels := make([]Level, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("invalid price %q", pair[0])
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("non-positive price %q", pair[0])
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q", pair[1])
		}
		if qty.IsNegative() {
			return nil, fmt.Errorf("negative quantity %q", pair[1])
		}
		levels = append(levels, Level{Price: pair[0], Quantity: pair[1]})
	}
	return levels, nil
}

func checkOrdering(levels []Level, descending bool) error {
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1].PriceFloat(), levels[i].PriceFloat()
		if descending && cur > prev {
			return fmt.Errorf("levels not descending at index %d", i)
		}
		if !descending && cur < prev {
			return fmt.Errorf("levels not ascending at index %d", i)
		}
	}
	return nil
}

type rawTrade struct {
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
	EventTime    int64  `json:"E"`
}

func decodeTrade(data []byte) (*Trade, error) {
	var raw rawTrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	sym := symbol.Normalize(raw.Symbol)
	if err := symbol.Validate(sym); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	if err := requirePositive("price", raw.Price); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	if err := requirePositive("quantity", raw.Quantity); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	return &Trade{
		Sym:          sym,
		EventTime:    raw.EventTime,
		TradeID:      raw.TradeID,
		Price:        raw.Price,
		Quantity:     raw.Quantity,
		TradeTime:    raw.TradeTime,
		BuyerIsMaker: raw.BuyerIsMaker,
	}, nil
}

type rawTicker struct {
	Symbol             string `json:"s"`
	EventTime          int64  `json:"E"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	LastPrice          string `json:"c"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           int64  `json:"O"`
	CloseTime          int64  `json:"C"`
	FirstTradeID       int64  `json:"F"`
	LastTradeID        int64  `json:"L"`
	TradeCount         int64  `json:"n"`
}

func decodeTicker(data []byte) (*Ticker, error) {
	var raw rawTicker
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	sym := symbol.Normalize(raw.Symbol)
	if err := symbol.Validate(sym); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	if err := requirePositive("last price", raw.LastPrice); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	return &Ticker{
		Sym:                sym,
		EventTime:          raw.EventTime,
		LastPrice:          raw.LastPrice,
		OpenPrice:          raw.OpenPrice,
		HighPrice:          raw.HighPrice,
		LowPrice:           raw.LowPrice,
		Volume:             raw.Volume,
		QuoteVolume:        raw.QuoteVolume,
		PriceChange:        raw.PriceChange,
		PriceChangePercent: raw.PriceChangePercent,
		WeightedAvgPrice:   raw.WeightedAvgPrice,
		OpenTime:           raw.OpenTime,
		CloseTime:          raw.CloseTime,
		FirstTradeID:       raw.FirstTradeID,
		LastTradeID:        raw.LastTradeID,
		TradeCount:         raw.TradeCount,
	}, nil
}

func requirePositive(field, value string) error {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q", field, value)
	}
	if !d.IsPositive() {
		return fmt.Errorf("non-positive %s %q", field, value)
	}
	return nil
}
