package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// dominanceSymbols are the assets whose momentum approximates the
// BTC-dominance proxy.
var dominanceSymbols = map[string]bool{
	"BTCUSDT": true,
	"ETHUSDT": true,
	"BNBUSDT": true,
}

// Dominance approximates Bitcoin market dominance from the relative price
// momentum of BTC against the major alts and signals rotation into or out of
// BTC. Signals always target BTCUSDT.
type Dominance struct {
	log zerolog.Logger
	rl  *limiter
	now func() time.Time

	mu        sync.Mutex
	prices    map[string][]pricePoint
	dominance []dominancePoint
}

type dominancePoint struct {
	ts    time.Time
	value float64
}

// NewDominance creates the Bitcoin-dominance strategy.
func NewDominance(log zerolog.Logger) *Dominance {
	return &Dominance{
		log:    log.With().Str("strategy", "btc_dominance").Logger(),
		rl:     newLimiter(),
		now:    time.Now,
		prices: make(map[string][]pricePoint),
	}
}

func (d *Dominance) ID() string { return "btc_dominance" }

func (d *Dominance) Wants(ev market.Event) bool {
	if !dominanceSymbols[ev.Symbol()] {
		return false
	}
	switch ev.(type) {
	case *market.Trade, *market.Ticker:
		return true
	}
	return false
}

func (d *Dominance) OnEvent(ev market.Event, p Params) []signal.Signal {
	price := eventPrice(ev)
	if price <= 0 {
		return nil
	}

	windowHours := FloatParam(p, "window_hours", 24)
	highThreshold := FloatParam(p, "high_threshold", 70)
	lowThreshold := FloatParam(p, "low_threshold", 40)
	changeThreshold := FloatParam(p, "change_threshold", 5)
	minInterval := FloatParam(p, "min_signal_interval", 14400)

	ts := ev.Time()
	window := time.Duration(windowHours * float64(time.Hour))
	d.record(ev.Symbol(), price, ts, window+time.Hour)

	dominance, ok := d.compute(ts, window)
	if !ok {
		// No dominance computable (no BTC history or zero total momentum).
		return nil
	}
	d.recordDominance(dominance, ts)

	trend := d.trend()
	change24h := d.change24h(ts)

	var (
		typ    signal.Type
		action signal.Action
		score  float64
		kind   string
	)
	switch {
	case dominance > highThreshold && (trend == "rising" || change24h > changeThreshold):
		typ, action, score, kind = signal.TypeBuy, signal.ActionOpenLong, 0.8, "dominance_rotation"
	case dominance < lowThreshold && (trend == "falling" || change24h < -changeThreshold):
		typ, action, score, kind = signal.TypeSell, signal.ActionOpenShort, 0.75, "dominance_rotation"
	case math.Abs(change24h) > changeThreshold:
		score = math.Min(0.7, math.Abs(change24h)/10)
		kind = "dominance_momentum"
		if change24h > 0 {
			typ, action = signal.TypeBuy, signal.ActionOpenLong
		} else {
			typ, action = signal.TypeSell, signal.ActionOpenShort
		}
	default:
		return nil
	}

	if !d.rl.allow("BTCUSDT", secs(minInterval), d.now()) {
		return nil
	}

	btcPrice := d.latestPrice("BTCUSDT")
	if btcPrice <= 0 {
		return nil
	}

	d.log.Info().
		Float64("dominance", dominance).
		Str("trend", trend).
		Float64("change_24h", change24h).
		Str("type", string(typ)).
		Msg("dominance signal")

	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     "BTCUSDT",
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(score),
		Score:      score,
		Price:      btcPrice,
		Strategy:   d.ID(),
		Metadata: map[string]any{
			"dominance":     dominance,
			"trend":         trend,
			"change_24h":    change24h,
			"strategy_type": kind,
		},
		Timestamp: ts,
	}}
}

func (d *Dominance) record(sym string, price float64, ts time.Time, keep time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	series := append(d.prices[sym], pricePoint{ts: ts, price: price})
	cutoff := ts.Add(-keep)
	i := 0
	for i < len(series) && series[i].ts.Before(cutoff) {
		i++
	}
	d.prices[sym] = series[i:]
}

// compute derives the dominance proxy: BTC momentum over total momentum of
// BTC+ETH+BNB, normalized into the 30-80% band. Returns false when it is not
// computable.
func (d *Dominance) compute(now time.Time, window time.Duration) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	btc := momentumOf(d.prices["BTCUSDT"], now, window)
	if len(d.prices["BTCUSDT"]) < 2 {
		return 0, false
	}
	eth := momentumOf(d.prices["ETHUSDT"], now, window)
	bnb := momentumOf(d.prices["BNBUSDT"], now, window)

	total := btc + eth + bnb
	if total <= 0 {
		return 0, false
	}
	return 30 + (btc/total)*50, true
}

// momentumOf is the window's percentage change shifted positive so flat
// series still carry weight.
func momentumOf(series []pricePoint, now time.Time, window time.Duration) float64 {
	start := now.Add(-window)
	var recent []pricePoint
	for _, pt := range series {
		if !pt.ts.Before(start) {
			recent = append(recent, pt)
		}
	}
	if len(recent) < 2 {
		return 0
	}
	first, last := recent[0].price, recent[len(recent)-1].price
	if first <= 0 {
		return 0
	}
	momentum := (last - first) / first * 100
	return math.Max(0, momentum+10)
}

func (d *Dominance) recordDominance(value float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dominance = append(d.dominance, dominancePoint{ts: ts, value: value})
	cutoff := ts.Add(-48 * time.Hour)
	i := 0
	for i < len(d.dominance) && d.dominance[i].ts.Before(cutoff) {
		i++
	}
	d.dominance = d.dominance[i:]
}

// trend compares the most recent dominance reading against the start of the
// recent tail: "rising", "falling" or "flat".
func (d *Dominance) trend() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.dominance)
	if n < 2 {
		return "flat"
	}
	tail := d.dominance
	if n > 6 {
		tail = d.dominance[n-6:]
	}
	delta := tail[len(tail)-1].value - tail[0].value
	switch {
	case delta > 0.5:
		return "rising"
	case delta < -0.5:
		return "falling"
	default:
		return "flat"
	}
}

// change24h is the dominance delta against the closest reading at least 24h
// old; 0 when history is too short.
func (d *Dominance) change24h(now time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dominance) == 0 {
		return 0
	}
	target := now.Add(-24 * time.Hour)
	var ref *dominancePoint
	for i := range d.dominance {
		if !d.dominance[i].ts.After(target) {
			ref = &d.dominance[i]
		}
	}
	if ref == nil {
		return 0
	}
	return d.dominance[len(d.dominance)-1].value - ref.value
}

func (d *Dominance) latestPrice(sym string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	series := d.prices[sym]
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].price
}
