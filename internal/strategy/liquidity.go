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

// Liquidity raises a defensive signal when the top-of-book spread widens
// while depth evaporates inside a short rolling window — the classic shape
// of liquidity being pulled. The action side depends on how the book leaned
// before the event: a bid-heavy book puts longs at risk, an ask-heavy book
// puts shorts at risk.
type Liquidity struct {
	log zerolog.Logger
	rl  *limiter
	now func() time.Time

	mu      sync.Mutex
	history map[string][]bookState
}

type bookState struct {
	ts        time.Time
	spreadPct float64
	topDepth  float64
	imbalance float64
}

// NewLiquidity creates the spread/liquidity strategy.
func NewLiquidity(log zerolog.Logger) *Liquidity {
	return &Liquidity{
		log:     log.With().Str("strategy", "spread_liquidity").Logger(),
		rl:      newLimiter(),
		now:     time.Now,
		history: make(map[string][]bookState),
	}
}

func (l *Liquidity) ID() string { return "spread_liquidity" }

func (l *Liquidity) Wants(ev market.Event) bool {
	_, ok := ev.(*market.DepthUpdate)
	return ok
}

func (l *Liquidity) OnEvent(ev market.Event, p Params) []signal.Signal {
	d, ok := ev.(*market.DepthUpdate)
	if !ok {
		return nil
	}
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return nil
	}

	topLevels := IntParam(p, "top_levels", 5)
	window := secs(FloatParam(p, "window_seconds", 30))
	spreadWidenPct := FloatParam(p, "spread_widen_percent", 50)
	depthDropPct := FloatParam(p, "depth_drop_percent", 30)
	minInterval := FloatParam(p, "min_signal_interval", 60)

	bidVol := topVolume(d.Bids, topLevels)
	askVol := topVolume(d.Asks, topLevels)
	depth := bidVol + askVol
	imbalance := 1.0
	if askVol > 0 {
		imbalance = bidVol / askVol
	}
	cur := bookState{ts: ev.Time(), spreadPct: d.SpreadPercent(), topDepth: depth, imbalance: imbalance}

	baseline, ok := l.push(d.Sym, cur, window)
	if !ok {
		return nil
	}
	if baseline.spreadPct <= 0 || baseline.topDepth <= 0 {
		return nil
	}

	widen := (cur.spreadPct - baseline.spreadPct) / baseline.spreadPct * 100
	drop := (baseline.topDepth - cur.topDepth) / baseline.topDepth * 100
	if widen < spreadWidenPct || drop < depthDropPct {
		return nil
	}

	if !l.rl.allow(d.Sym, secs(minInterval), l.now()) {
		return nil
	}

	// Pre-event lean decides who gets defended.
	var (
		typ    signal.Type
		action signal.Action
	)
	if baseline.imbalance >= 1 {
		typ, action = signal.TypeSell, signal.ActionCloseLong
	} else {
		typ, action = signal.TypeBuy, signal.ActionCloseShort
	}

	score := clamp(math.Max(widen/(2*spreadWidenPct), drop/(2*depthDropPct)), 0, 1)

	l.log.Info().
		Str("symbol", d.Sym).
		Float64("spread_widen_percent", widen).
		Float64("depth_drop_percent", drop).
		Msg("liquidity withdrawal detected")

	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     d.Sym,
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(score),
		Score:      score,
		Price:      d.MidPrice(),
		Strategy:   l.ID(),
		Metadata: map[string]any{
			"spread_widen_percent": widen,
			"depth_drop_percent":   drop,
			"baseline_imbalance":   baseline.imbalance,
		},
		Timestamp: ev.Time(),
	}}
}

// push records the current book state and returns the oldest state still in
// the window (the comparison baseline). ok is false until at least one
// earlier state exists.
func (l *Liquidity) push(sym string, cur bookState, window time.Duration) (bookState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	series := append(l.history[sym], cur)
	cutoff := cur.ts.Add(-window)
	i := 0
	for i < len(series) && series[i].ts.Before(cutoff) {
		i++
	}
	series = series[i:]
	l.history[sym] = series
	if len(series) < 2 {
		return bookState{}, false
	}
	return series[0], true
}
