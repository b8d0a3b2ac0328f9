package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// PriceFetcher retrieves a venue's latest price for a symbol. The production
// implementation polls venue REST APIs with a short timeout; tests inject a
// fake. Failures stay inside the strategy.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, venue, symbol string) (float64, error)
}

// CrossExchange compares the primary-stream price against other venues and
// emits a paired BUY (at the cheap venue) and SELL (at the rich venue) when
// the spread clears the threshold.
type CrossExchange struct {
	log     zerolog.Logger
	rl      *limiter
	now     func() time.Time
	fetcher PriceFetcher

	mu          sync.Mutex
	prices      map[string]map[string]venuePrice // venue -> symbol -> price
	lastRefresh map[string]time.Time             // symbol -> last external poll
}

type venuePrice struct {
	price float64
	ts    time.Time
}

// NewCrossExchange creates the cross-exchange spread strategy. fetcher may be
// nil, in which case only cached venue prices are consulted.
func NewCrossExchange(log zerolog.Logger, fetcher PriceFetcher) *CrossExchange {
	return &CrossExchange{
		log:         log.With().Str("strategy", "cross_exchange_spread").Logger(),
		rl:          newLimiter(),
		now:         time.Now,
		fetcher:     fetcher,
		prices:      make(map[string]map[string]venuePrice),
		lastRefresh: make(map[string]time.Time),
	}
}

func (c *CrossExchange) ID() string { return "cross_exchange_spread" }

func (c *CrossExchange) Wants(ev market.Event) bool {
	switch ev.(type) {
	case *market.Trade, *market.Ticker:
		return true
	}
	return false
}

func (c *CrossExchange) OnEvent(ev market.Event, p Params) []signal.Signal {
	price := eventPrice(ev)
	if price <= 0 {
		return nil
	}
	sym := ev.Symbol()
	now := c.now()

	c.SetPrice("binance", sym, price, now)
	c.refreshExternal(sym, p, now)

	threshold := FloatParam(p, "spread_threshold_percent", 0.5)
	minInterval := FloatParam(p, "min_signal_interval", 300)

	low, lowVenue, high, highVenue, ok := c.extremes(sym)
	if !ok || lowVenue == highVenue {
		return nil
	}
	spreadPct := (high - low) / low * 100
	if spreadPct < threshold {
		return nil
	}

	key := fmt.Sprintf("%s|%s|%s", sym, highVenue, lowVenue)
	if !c.rl.allow(key, secs(minInterval), now) {
		return nil
	}

	score := clamp(spreadPct/(2*threshold), 0, 1)
	meta := map[string]any{
		"buy_exchange":   lowVenue,
		"buy_price":      low,
		"sell_exchange":  highVenue,
		"sell_price":     high,
		"spread_percent": spreadPct,
	}

	c.log.Info().
		Str("symbol", sym).
		Str("buy_exchange", lowVenue).
		Str("sell_exchange", highVenue).
		Float64("spread_percent", spreadPct).
		Msg("cross-exchange spread detected")

	ts := ev.Time()
	return []signal.Signal{
		{
			ID:         uuid.NewString(),
			Symbol:     sym,
			Type:       signal.TypeBuy,
			Action:     signal.ActionOpenLong,
			Confidence: signal.ConfidenceFor(score),
			Score:      score,
			Price:      low,
			Strategy:   c.ID(),
			Metadata:   meta,
			Timestamp:  ts,
		},
		{
			ID:         uuid.NewString(),
			Symbol:     sym,
			Type:       signal.TypeSell,
			Action:     signal.ActionOpenShort,
			Confidence: signal.ConfidenceFor(score),
			Score:      score,
			Price:      high,
			Strategy:   c.ID(),
			Metadata:   meta,
			Timestamp:  ts,
		},
	}
}

// SetPrice records a venue price in the cache. Exported so tests and the
// venue poller can seed external quotes.
func (c *CrossExchange) SetPrice(venue, sym string, price float64, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bySymbol, ok := c.prices[venue]
	if !ok {
		bySymbol = make(map[string]venuePrice)
		c.prices[venue] = bySymbol
	}
	bySymbol[sym] = venuePrice{price: price, ts: ts}
}

// refreshExternal polls configured venues for the symbol, throttled so the
// hot path does not hammer venue APIs. Fetch failures are logged and counted
// against nothing: they never escalate past the strategy.
func (c *CrossExchange) refreshExternal(sym string, p Params, now time.Time) {
	if c.fetcher == nil {
		return
	}
	refreshEvery := secs(FloatParam(p, "refresh_interval", 10))

	c.mu.Lock()
	if last, ok := c.lastRefresh[sym]; ok && now.Sub(last) < refreshEvery {
		c.mu.Unlock()
		return
	}
	c.lastRefresh[sym] = now
	c.mu.Unlock()

	venues := StringsParam(p, "exchanges", []string{"binance", "coinbase"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, venue := range venues {
		if venue == "binance" {
			continue
		}
		price, err := c.fetcher.FetchPrice(ctx, venue, sym)
		if err != nil {
			c.log.Warn().Err(err).Str("venue", venue).Str("symbol", sym).Msg("venue price fetch failed")
			continue
		}
		if price > 0 {
			c.SetPrice(venue, sym, price, now)
		}
	}
}

// extremes returns the lowest and highest cached venue prices for a symbol.
func (c *CrossExchange) extremes(sym string) (low float64, lowVenue string, high float64, highVenue string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for venue, bySymbol := range c.prices {
		vp, exists := bySymbol[sym]
		if !exists || vp.price <= 0 {
			continue
		}
		if !ok {
			low, lowVenue, high, highVenue, ok = vp.price, venue, vp.price, venue, true
			continue
		}
		if vp.price < low {
			low, lowVenue = vp.price, venue
		}
		if vp.price > high {
			high, highVenue = vp.price, venue
		}
	}
	return
}

func eventPrice(ev market.Event) float64 {
	switch e := ev.(type) {
	case *market.Trade:
		return e.PriceFloat()
	case *market.Ticker:
		return e.LastPriceFloat()
	}
	return 0
}
