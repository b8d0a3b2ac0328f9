package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// Skew detects order-book imbalance: when top-of-book bid volume outweighs
// ask volume (or vice versa) past a threshold, the book is leaning and a
// directional signal is emitted.
type Skew struct {
	log   zerolog.Logger
	rl    *limiter
	now   func() time.Time
}

// NewSkew creates the order-book skew strategy.
func NewSkew(log zerolog.Logger) *Skew {
	return &Skew{log: log.With().Str("strategy", "orderbook_skew").Logger(), rl: newLimiter(), now: time.Now}
}

func (s *Skew) ID() string { return "orderbook_skew" }

func (s *Skew) Wants(ev market.Event) bool {
	_, ok := ev.(*market.DepthUpdate)
	return ok
}

func (s *Skew) OnEvent(ev market.Event, p Params) []signal.Signal {
	d, ok := ev.(*market.DepthUpdate)
	if !ok {
		return nil
	}
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return nil
	}

	topLevels := IntParam(p, "top_levels", 5)
	buyThreshold := FloatParam(p, "buy_threshold", 1.2)
	sellThreshold := FloatParam(p, "sell_threshold", 0.8)
	minSpread := FloatParam(p, "min_spread_percent", 0.1)
	minInterval := FloatParam(p, "min_signal_interval", 60)

	spread := d.SpreadPercent()
	if spread < minSpread {
		return nil
	}

	bidVol := topVolume(d.Bids, topLevels)
	askVol := topVolume(d.Asks, topLevels)
	if bidVol == 0 || askVol == 0 {
		return nil
	}
	imbalance := bidVol / askVol

	var (
		typ    signal.Type
		action signal.Action
	)
	switch {
	case imbalance >= buyThreshold:
		typ, action = signal.TypeBuy, signal.ActionOpenLong
	case imbalance <= sellThreshold:
		typ, action = signal.TypeSell, signal.ActionOpenShort
	default:
		return nil
	}

	if !s.rl.allow(d.Sym, secs(minInterval), s.now()) {
		return nil
	}

	denom := buyThreshold - 1
	if denom <= 0 {
		denom = 1
	}
	score := clamp(abs(imbalance-1)/denom, 0, 1)

	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     d.Sym,
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(score),
		Score:      score,
		Price:      d.MidPrice(),
		Strategy:   s.ID(),
		Metadata: map[string]any{
			"imbalance":      imbalance,
			"bid_volume":     bidVol,
			"ask_volume":     askVol,
			"spread_percent": spread,
			"top_levels":     topLevels,
		},
		Timestamp: ev.Time(),
	}}
}

func topVolume(levels []market.Level, n int) float64 {
	if n < 1 {
		n = 1
	}
	if n > len(levels) {
		n = len(levels)
	}
	sum := 0.0
	for _, l := range levels[:n] {
		sum += l.QuantityFloat()
	}
	return sum
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
