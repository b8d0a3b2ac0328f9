package strategy

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

// MetricsProvider supplies a point-in-time on-chain metrics snapshot for an
// asset ("BTC" or "ETH"). Keys depend on the asset: active_addresses,
// transaction_volume, exchange_net_flow, and hashrate (BTC) or tvl (ETH).
type MetricsProvider interface {
	Snapshot(ctx context.Context, asset string) (map[string]float64, error)
}

// onchainAssets maps trading symbols to the asset key used by the provider.
var onchainAssets = map[string]string{
	"BTCUSDT": "BTC",
	"ETHUSDT": "ETH",
}

// OnChain watches fundamental network metrics and signals on sustained
// growth (BUY) or heavy net inflow to exchanges (SELL).
type OnChain struct {
	log      zerolog.Logger
	rl       *limiter
	now      func() time.Time
	provider MetricsProvider

	mu          sync.Mutex
	history     map[string][]metricsPoint
	lastRefresh map[string]time.Time
}

type metricsPoint struct {
	ts     time.Time
	values map[string]float64
}

// NewOnChain creates the on-chain metrics strategy. provider may be nil, in
// which case the strategy never signals.
func NewOnChain(log zerolog.Logger, provider MetricsProvider) *OnChain {
	return &OnChain{
		log:         log.With().Str("strategy", "onchain_metrics").Logger(),
		rl:          newLimiter(),
		now:         time.Now,
		provider:    provider,
		history:     make(map[string][]metricsPoint),
		lastRefresh: make(map[string]time.Time),
	}
}

func (o *OnChain) ID() string { return "onchain_metrics" }

func (o *OnChain) Wants(ev market.Event) bool {
	if _, ok := onchainAssets[ev.Symbol()]; !ok {
		return false
	}
	switch ev.(type) {
	case *market.Trade, *market.Ticker:
		return true
	}
	return false
}

func (o *OnChain) OnEvent(ev market.Event, p Params) []signal.Signal {
	if o.provider == nil {
		return nil
	}
	asset := onchainAssets[ev.Symbol()]
	price := eventPrice(ev)
	if price <= 0 {
		return nil
	}

	networkThreshold := FloatParam(p, "network_growth_threshold", 10)
	volumeThreshold := FloatParam(p, "volume_threshold", 15)
	refreshSeconds := FloatParam(p, "refresh_interval", 3600)
	minInterval := FloatParam(p, "min_signal_interval", 86400)

	o.refresh(asset, secs(refreshSeconds))

	growth, ok := o.growth24h(asset)
	if !ok {
		return nil
	}

	var (
		typ    signal.Type
		action signal.Action
		score  float64
		reason string
	)
	switch {
	case growth["active_addresses"] >= networkThreshold && growth["transaction_volume"] >= 0:
		typ, action, score = signal.TypeBuy, signal.ActionOpenLong, 0.7
		reason = "network_growth"
	case growth["exchange_net_flow"] >= volumeThreshold:
		typ, action, score = signal.TypeSell, signal.ActionOpenShort, 0.65
		reason = "exchange_inflow"
	default:
		return nil
	}

	if !o.rl.allow(asset, secs(minInterval), o.now()) {
		return nil
	}

	o.log.Info().
		Str("asset", asset).
		Str("reason", reason).
		Float64("active_addresses_growth", growth["active_addresses"]).
		Float64("exchange_net_flow_growth", growth["exchange_net_flow"]).
		Msg("on-chain signal")

	return []signal.Signal{{
		ID:         uuid.NewString(),
		Symbol:     ev.Symbol(),
		Type:       typ,
		Action:     action,
		Confidence: signal.ConfidenceFor(score),
		Score:      score,
		Price:      price,
		Strategy:   o.ID(),
		Metadata: map[string]any{
			"asset":  asset,
			"reason": reason,
			"growth": growth,
		},
		Timestamp: ev.Time(),
	}}
}

// refresh pulls a fresh snapshot at most once per interval per asset.
func (o *OnChain) refresh(asset string, interval time.Duration) {
	now := o.now()
	o.mu.Lock()
	if last, ok := o.lastRefresh[asset]; ok && now.Sub(last) < interval {
		o.mu.Unlock()
		return
	}
	o.lastRefresh[asset] = now
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	values, err := o.provider.Snapshot(ctx, asset)
	if err != nil {
		o.log.Warn().Err(err).Str("asset", asset).Msg("metrics snapshot failed")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	series := append(o.history[asset], metricsPoint{ts: now, values: values})
	cutoff := now.Add(-48 * time.Hour)
	i := 0
	for i < len(series) && series[i].ts.Before(cutoff) {
		i++
	}
	o.history[asset] = series[i:]
}

// growth24h computes the percent change of each metric against the closest
// snapshot at least 24h old, falling back to the oldest available snapshot.
func (o *OnChain) growth24h(asset string) (map[string]float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	series := o.history[asset]
	if len(series) < 2 {
		return nil, false
	}
	latest := series[len(series)-1]
	target := latest.ts.Add(-24 * time.Hour)
	ref := series[0]
	for _, pt := range series {
		if !pt.ts.After(target) {
			ref = pt
		}
	}

	growth := make(map[string]float64, len(latest.values))
	for key, cur := range latest.values {
		old, ok := ref.values[key]
		if !ok || old == 0 {
			growth[key] = 0
			continue
		}
		growth[key] = (cur - old) / math.Abs(old) * 100
	}
	return growth, true
}
