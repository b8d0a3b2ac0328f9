package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is the closed sum of market-data variants delivered by the bus.
// Concrete types are DepthUpdate, Trade and Ticker; consumers type-switch.
type Event interface {
	Symbol() string
	Time() time.Time
	marketEvent()
}

// Level is a single order-book price level. Price and quantity stay as
// decimal strings until a consumer needs them numerically.
type Level struct {
	Price    string
	Quantity string
}

// PriceFloat returns the level price as a float64 (0 on parse failure).
func (l Level) PriceFloat() float64 { return decString(l.Price) }

// QuantityFloat returns the level quantity as a float64 (0 on parse failure).
func (l Level) QuantityFloat() float64 { return decString(l.Quantity) }

// DepthUpdate is an order-book depth snapshot or delta.
type DepthUpdate struct {
	Sym           string
	EventTime     int64 // ms since epoch
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []Level // descending by price
	Asks          []Level // ascending by price
}

func (d *DepthUpdate) Symbol() string  { return d.Sym }
func (d *DepthUpdate) Time() time.Time { return msTime(d.EventTime) }
func (d *DepthUpdate) marketEvent()    {}

// BestBid returns the top bid price, or 0 if the bid side is empty.
func (d *DepthUpdate) BestBid() float64 {
	if len(d.Bids) == 0 {
		return 0
	}
	return d.Bids[0].PriceFloat()
}

// BestAsk returns the top ask price, or 0 if the ask side is empty.
func (d *DepthUpdate) BestAsk() float64 {
	if len(d.Asks) == 0 {
		return 0
	}
	return d.Asks[0].PriceFloat()
}

// MidPrice returns the midpoint between best bid and best ask.
// Returns 0 if either side is empty.
func (d *DepthUpdate) MidPrice() float64 {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0
	}
	bid, err1 := decimal.NewFromString(d.Bids[0].Price)
	ask, err2 := decimal.NewFromString(d.Asks[0].Price)
	if err1 != nil || err2 != nil {
		return 0
	}
	mid, _ := bid.Add(ask).Div(decimal.NewFromInt(2)).Float64()
	return mid
}

// SpreadPercent returns (best ask - best bid) / best bid * 100,
// or 0 if either side is empty.
func (d *DepthUpdate) SpreadPercent() float64 {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0
	}
	bid, err1 := decimal.NewFromString(d.Bids[0].Price)
	ask, err2 := decimal.NewFromString(d.Asks[0].Price)
	if err1 != nil || err2 != nil || bid.IsZero() {
		return 0
	}
	pct, _ := ask.Sub(bid).Div(bid).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// Trade is a single trade print.
type Trade struct {
	Sym          string
	EventTime    int64
	TradeID      int64
	Price        string
	Quantity     string
	TradeTime    int64
	BuyerIsMaker bool // true iff the buyer was the resting order
}

func (t *Trade) Symbol() string  { return t.Sym }
func (t *Trade) Time() time.Time { return msTime(t.EventTime) }
func (t *Trade) marketEvent()    {}

// PriceFloat returns the trade price as a float64.
func (t *Trade) PriceFloat() float64 { return decString(t.Price) }

// QuantityFloat returns the trade quantity as a float64.
func (t *Trade) QuantityFloat() float64 { return decString(t.Quantity) }

// Notional returns price * quantity in quote currency.
func (t *Trade) Notional() float64 {
	p, err1 := decimal.NewFromString(t.Price)
	q, err2 := decimal.NewFromString(t.Quantity)
	if err1 != nil || err2 != nil {
		return 0
	}
	n, _ := p.Mul(q).Float64()
	return n
}

// Ticker is a 24-hour rolling ticker.
type Ticker struct {
	Sym                string
	EventTime          int64
	LastPrice          string
	OpenPrice          string
	HighPrice          string
	LowPrice           string
	Volume             string
	QuoteVolume        string
	PriceChange        string
	PriceChangePercent string
	WeightedAvgPrice   string
	OpenTime           int64
	CloseTime          int64
	FirstTradeID       int64
	LastTradeID        int64
	TradeCount         int64
}

func (k *Ticker) Symbol() string  { return k.Sym }
func (k *Ticker) Time() time.Time { return msTime(k.EventTime) }
func (k *Ticker) marketEvent()    {}

// LastPriceFloat returns the last price as a float64.
func (k *Ticker) LastPriceFloat() float64 { return decString(k.LastPrice) }

// PriceChangePercentFloat returns the 24h change percent as a float64.
func (k *Ticker) PriceChangePercentFloat() float64 { return decString(k.PriceChangePercent) }

// VolumeFloat returns the 24h base volume as a float64.
func (k *Ticker) VolumeFloat() float64 { return decString(k.Volume) }

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func decString(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
