package strategy

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// Momentum scores short-term trade flow per symbol from three components:
// normalized price change, signed quantity share and signed maker flow,
// each in [-1, 1].
type Momentum struct {
	log zerolog.Logger
	rl  *limiter
	now func() time.Time

	mu      sync.Mutex
	windows map[string][]tradeSample
}

type tradeSample struct {
	price    float64
	quantity float64
	takerBuy bool // aggressor bought (buyer was NOT the resting order)
}

// NewMomentum creates the trade-momentum strategy.
func NewMomentum(log zerolog.Logger) *Momentum {
	return &Momentum{
		log:     log.With().Str("strategy", "trade_momentum").Logger(),
		rl:      newLimiter(),
		now:     time.Now,
		windows: make(map[string][]tradeSample),
	}
}

func (m *Momentum) ID() string { return "trade_momentum" }

func (m *Momentum) Wants(ev market.Event) bool {
	_, ok := ev.(*market.Trade)
	return ok
}

func (m *Momentum) OnEvent(ev market.Event, p Params) []signal.Signal {
	t, ok := ev.(*market.Trade)
	if !ok {
		return nil
	}

	windowSize := IntParam(p, "window_size", 50)
	priceWeight := FloatParam(p, "price_weight", 0.4)
	quantityWeight := FloatParam(p, "quantity_weight", 0.3)
	makerWeight := FloatParam(p, "maker_weight", 0.3)
	buyThreshold := FloatParam(p, "buy_threshold", 0.7)
	sellThreshold := FloatParam(p, "sell_threshold", -0.7)
	minQuantity := FloatParam(p, "min_quantity", 0.001)
	minInterval := FloatParam(p, "min_signal_interval", 60)

	price := t.PriceFloat()
	qty := t.QuantityFloat()
	if price <= 0 || qty <= 0 {
		return nil
	}

	window := m.push(t.Sym, tradeSample{price: price, quantity: qty, takerBuy: !t.BuyerIsMaker}, windowSize)
	if qty < minQuantity || len(window) < 2 {
		return nil
	}

	score := priceWeight*priceComponent(window) +
		quantityWeight*quantityComponent(window) +
		makerWeight*makerComponent(window)

	var (
		typ    signal.Type
		action signal.Action
	)
	switch {
	case score >= buyThreshold:
		typ, action = signal.TypeBuy, signal.ActionOpenLong
	case score <= sellThreshold:
		typ, action = signal.TypeSell, signal.ActionOpenShort
	default:
		return nil
	}

	if !m.rl.allow(t.Sym, secs(minInterval), m.now()) {
		return nil
	}

	conf := clamp(abs(score), 0, 1)
	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     t.Sym,
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(conf),
		Score:      conf,
		Price:      price,
		Strategy:   m.ID(),
		Metadata: map[string]any{
			"momentum_score": score,
			"window_trades":  len(window),
		},
		Timestamp: ev.Time(),
	}}
}

func (m *Momentum) push(sym string, s tradeSample, max int) []tradeSample {
	if max < 2 {
		max = 2
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := append(m.windows[sym], s)
	if len(w) > max {
		w = w[len(w)-max:]
	}
	m.windows[sym] = w
	out := make([]tradeSample, len(w))
	copy(out, w)
	return out
}

// priceComponent saturates at a 1% move across the window.
func priceComponent(w []tradeSample) float64 {
	first, last := w[0].price, w[len(w)-1].price
	if first <= 0 {
		return 0
	}
	changePct := (last - first) / first * 100
	return clamp(changePct, -1, 1)
}

// quantityComponent is (taker-buy volume - taker-sell volume) / total volume.
func quantityComponent(w []tradeSample) float64 {
	var buy, total float64
	for _, s := range w {
		total += s.quantity
		if s.takerBuy {
			buy += s.quantity
		}
	}
	if total == 0 {
		return 0
	}
	return (2*buy - total) / total
}

// makerComponent is (taker-buy count - taker-sell count) / count.
func makerComponent(w []tradeSample) float64 {
	buys := 0
	for _, s := range w {
		if s.takerBuy {
			buys++
		}
	}
	return (2*float64(buys) - float64(len(w))) / float64(len(w))
}
