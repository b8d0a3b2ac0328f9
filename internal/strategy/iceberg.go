package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
	"github.com/quantfeed/strategyd/internal/tracker"
)

// Iceberg feeds depth updates into the order-book tracker and signals on the
// strongest detected hidden-order pattern near the mid price: a hidden bid is
// support (BUY), a hidden ask is resistance (SELL).
type Iceberg struct {
	log     zerolog.Logger
	rl      *limiter
	now     func() time.Time
	tracker *tracker.Tracker
}

// NewIceberg creates the iceberg-detector strategy around an existing tracker.
func NewIceberg(log zerolog.Logger, tr *tracker.Tracker) *Iceberg {
	return &Iceberg{
		log:     log.With().Str("strategy", "iceberg_detector").Logger(),
		rl:      newLimiter(),
		now:     time.Now,
		tracker: tr,
	}
}

func (i *Iceberg) ID() string { return "iceberg_detector" }

func (i *Iceberg) Wants(ev market.Event) bool {
	_, ok := ev.(*market.DepthUpdate)
	return ok
}

func (i *Iceberg) OnEvent(ev market.Event, p Params) []signal.Signal {
	d, ok := ev.(*market.DepthUpdate)
	if !ok {
		return nil
	}
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return nil
	}

	i.tracker.Update(d.Sym, quotes(d.Bids), quotes(d.Asks), ev.Time())

	mid := d.MidPrice()
	if mid <= 0 {
		return nil
	}

	cfg := tracker.DetectConfig{
		ProximityPct:         FloatParam(p, "level_proximity_pct", 1.0),
		DepletionRatio:       FloatParam(p, "depletion_ratio", 0.3),
		RefillRatio:          FloatParam(p, "refill_ratio", 0.8),
		MinRefillCount:       IntParam(p, "min_refill_count", 2),
		FastRefillSeconds:    FloatParam(p, "fast_refill_seconds", 5.0),
		ConsistencyThreshold: FloatParam(p, "consistency_threshold", 0.9),
		PersistenceSeconds:   FloatParam(p, "persistence_threshold_seconds", 120.0),
	}
	patterns := i.tracker.Detect(d.Sym, mid, cfg)
	if len(patterns) == 0 {
		return nil
	}
	strongest := patterns[0]

	var (
		typ    signal.Type
		action signal.Action
	)
	switch strongest.Side {
	case "bid":
		typ, action = signal.TypeBuy, signal.ActionOpenLong
	case "ask":
		typ, action = signal.TypeSell, signal.ActionOpenShort
	default:
		return nil
	}

	minInterval := FloatParam(p, "min_signal_interval", 120)
	key := fmt.Sprintf("%s|%.2f|%s", strongest.Symbol, strongest.Price, strongest.Side)
	if !i.rl.allow(key, secs(minInterval), i.now()) {
		return nil
	}

	i.log.Debug().
		Str("symbol", d.Sym).
		Str("pattern", strongest.PatternType).
		Float64("price", strongest.Price).
		Str("side", strongest.Side).
		Msg("iceberg detected")

	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     d.Sym,
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(strongest.Confidence),
		Score:      strongest.Confidence,
		Price:      mid,
		Strategy:   i.ID(),
		Metadata: map[string]any{
			"pattern_type":        strongest.PatternType,
			"iceberg_price":       strongest.Price,
			"iceberg_side":        strongest.Side,
			"refill_count":        strongest.RefillCount,
			"avg_refill_seconds":  strongest.AvgRefillSeconds,
			"volume_consistency":  strongest.ConsistencyScore,
			"persistence_seconds": strongest.PersistenceSeconds,
		},
		Timestamp: ev.Time(),
	}}
}

func quotes(levels []market.Level) []tracker.Quote {
	out := make([]tracker.Quote, len(levels))
	for i, l := range levels {
		out[i] = tracker.Quote{Price: l.PriceFloat(), Quantity: l.QuantityFloat()}
	}
	return out
}
