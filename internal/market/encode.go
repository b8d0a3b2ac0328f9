package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Encode renders an event back into its bus envelope form. It is the exact
// inverse of Decode for well-formed events and exists mainly for tools and
// tests that need to synthesize feed traffic.
func Encode(ev Event) ([]byte, error) {
	var (
		suffix string
		data   any
	)

	switch e := ev.(type) {
	case *DepthUpdate:
		suffix = "depth20"
		data = rawDepth{
			Symbol:    e.Sym,
			EventTime: e.EventTime,
			FirstID:   e.FirstUpdateID,
			FinalID:   e.FinalUpdateID,
			Bids:      encodeLevels(e.Bids),
			Asks:      encodeLevels(e.Asks),
		}
	case *Trade:
		suffix = "trade"
		data = rawTrade{
			Symbol:       e.Sym,
			TradeID:      e.TradeID,
			Price:        e.Price,
			Quantity:     e.Quantity,
			TradeTime:    e.TradeTime,
			BuyerIsMaker: e.BuyerIsMaker,
			EventTime:    e.EventTime,
		}
	case *Ticker:
		suffix = "ticker"
		data = rawTicker{
			Symbol:             e.Sym,
			EventTime:          e.EventTime,
			PriceChange:        e.PriceChange,
			PriceChangePercent: e.PriceChangePercent,
			WeightedAvgPrice:   e.WeightedAvgPrice,
			LastPrice:          e.LastPrice,
			OpenPrice:          e.OpenPrice,
			HighPrice:          e.HighPrice,
			LowPrice:           e.LowPrice,
			Volume:             e.Volume,
			QuoteVolume:        e.QuoteVolume,
			OpenTime:           e.OpenTime,
			CloseTime:          e.CloseTime,
			FirstTradeID:       e.FirstTradeID,
			LastTradeID:        e.LastTradeID,
			TradeCount:         e.TradeCount,
		}
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", suffix, err)
	}
	return json.Marshal(envelope{
		Stream: strings.ToLower(ev.Symbol()) + "@" + suffix,
		Data:   raw,
	})
}

func encodeLevels(levels []Level) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string{l.Price, l.Quantity}
	}
	return out
}
