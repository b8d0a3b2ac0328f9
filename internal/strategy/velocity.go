package strategy

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// Velocity watches the last-price series from 24h tickers and signals when
// price moves faster than a threshold percentage inside a short window.
type Velocity struct {
	log zerolog.Logger
	rl  *limiter
	now func() time.Time

	mu      sync.Mutex
	history map[string][]pricePoint
}

type pricePoint struct {
	ts    time.Time
	price float64
}

// NewVelocity creates the ticker-velocity strategy.
func NewVelocity(log zerolog.Logger) *Velocity {
	return &Velocity{
		log:     log.With().Str("strategy", "ticker_velocity").Logger(),
		rl:      newLimiter(),
		now:     time.Now,
		history: make(map[string][]pricePoint),
	}
}

func (v *Velocity) ID() string { return "ticker_velocity" }

func (v *Velocity) Wants(ev market.Event) bool {
	_, ok := ev.(*market.Ticker)
	return ok
}

func (v *Velocity) OnEvent(ev market.Event, p Params) []signal.Signal {
	k, ok := ev.(*market.Ticker)
	if !ok {
		return nil
	}

	window := secs(FloatParam(p, "time_window", 60))
	buyThreshold := FloatParam(p, "buy_threshold", 0.5)
	sellThreshold := FloatParam(p, "sell_threshold", -0.5)
	minChange := FloatParam(p, "min_price_change", 0.1)
	minInterval := FloatParam(p, "min_signal_interval", 60)

	price := k.LastPriceFloat()
	if price <= 0 {
		return nil
	}

	samples := v.push(k.Sym, pricePoint{ts: ev.Time(), price: price}, window)
	if len(samples) < 2 {
		return nil
	}

	oldest := samples[0].price
	if oldest <= 0 {
		return nil
	}
	velocity := (price - oldest) / oldest * 100
	if abs(velocity) < minChange {
		return nil
	}

	var (
		typ    signal.Type
		action signal.Action
		mag    float64
	)
	switch {
	case velocity >= buyThreshold:
		typ, action, mag = signal.TypeBuy, signal.ActionOpenLong, buyThreshold
	case velocity <= sellThreshold:
		typ, action, mag = signal.TypeSell, signal.ActionOpenShort, -sellThreshold
	default:
		return nil
	}

	if !v.rl.allow(k.Sym, secs(minInterval), v.now()) {
		return nil
	}

	if mag <= 0 {
		mag = 1
	}
	score := clamp(abs(velocity)/(2*mag), 0, 1)
	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     k.Sym,
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(score),
		Score:      score,
		Price:      price,
		Strategy:   v.ID(),
		Metadata: map[string]any{
			"velocity_percent": velocity,
			"window_samples":   len(samples),
		},
		Timestamp: ev.Time(),
	}}
}

// push appends a sample and trims the series to the time window.
func (v *Velocity) push(sym string, pt pricePoint, window time.Duration) []pricePoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	series := append(v.history[sym], pt)
	cutoff := pt.ts.Add(-window)
	i := 0
	for i < len(series) && series[i].ts.Before(cutoff) {
		i++
	}
	series = series[i:]
	v.history[sym] = series
	out := make([]pricePoint, len(series))
	copy(out, series)
	return out
}
