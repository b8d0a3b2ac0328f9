package tracker

import (
	"math"
	"sort"
)

// Pattern tags, in tie-break priority order.
const (
	PatternRefill     = "refill"
	PatternConsistent = "consistent"
	PatternPersistent = "persistent"
)

// Pattern describes one detected iceberg candidate at a price bucket.
type Pattern struct {
	Symbol             string
	Side               string // "bid" or "ask"
	Price              float64
	RefillCount        int
	AvgRefillSeconds   float64
	ConsistencyScore   float64 // in [0,1]
	PersistenceSeconds float64
	PatternType        string
	Confidence         float64 // in [0,1]
}

// DetectConfig carries the detection thresholds, normally sourced from the
// iceberg strategy's parameter snapshot.
type DetectConfig struct {
	ProximityPct         float64 // consider buckets within this % of the reference price
	DepletionRatio       float64 // qty <= ratio*peak counts as depleted
	RefillRatio          float64 // qty >= ratio*peak counts as refilled
	MinRefillCount       int
	FastRefillSeconds    float64
	ConsistencyThreshold float64
	PersistenceSeconds   float64
}

// Detect returns all iceberg patterns for a symbol whose price bucket lies
// within cfg.ProximityPct of refPrice, strongest first.
func (t *Tracker) Detect(sym string, refPrice float64, cfg DetectConfig) []Pattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.books[sym]
	if !ok || refPrice <= 0 {
		return nil
	}
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return nil
	}

	maxDist := cfg.ProximityPct * refPrice / 100

	var out []Pattern
	for _, side := range []string{"bid", "ask"} {
		for price, lv := range b.side(side) {
			if math.Abs(price-refPrice) > maxDist {
				continue
			}
			if p, ok := analyzeLevel(sym, side, lv, cfg); ok {
				out = append(out, p)
			}
		}
	}

	// Strongest first; equal confidence falls back to pattern priority so a
	// refill beats a merely consistent level, then to price for determinism.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if ri, rj := typeRank(out[i].PatternType), typeRank(out[j].PatternType); ri != rj {
			return ri < rj
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func typeRank(t string) int {
	switch t {
	case PatternRefill:
		return 0
	case PatternConsistent:
		return 1
	default:
		return 2
	}
}

// analyzeLevel computes the refill, consistency and persistence scores for a
// bucket and qualifies it against the thresholds.
func analyzeLevel(sym, side string, lv *level, cfg DetectConfig) (Pattern, bool) {
	if len(lv.samples) == 0 {
		return Pattern{}, false
	}

	refills, avgRefill := refillStats(lv.samples, cfg.DepletionRatio, cfg.RefillRatio)
	consistency := consistencyScore(lv.samples)
	persistence := persistenceSeconds(lv.samples)

	p := Pattern{
		Symbol:             sym,
		Side:               side,
		Price:              lv.price,
		RefillCount:        refills,
		AvgRefillSeconds:   avgRefill,
		ConsistencyScore:   consistency,
		PersistenceSeconds: persistence,
	}

	// Qualification, in tie-break order: refill beats consistent beats
	// persistent when a bucket matches more than one.
	switch {
	case refills >= cfg.MinRefillCount && avgRefill <= cfg.FastRefillSeconds:
		p.PatternType = PatternRefill
	case consistency >= cfg.ConsistencyThreshold && nonZeroCount(lv.samples) >= 3:
		p.PatternType = PatternConsistent
	case cfg.PersistenceSeconds > 0 && persistence >= cfg.PersistenceSeconds:
		p.PatternType = PatternPersistent
	default:
		return Pattern{}, false
	}

	refillScore := 0.0
	if cfg.MinRefillCount > 0 {
		refillScore = math.Min(1, float64(refills)/float64(cfg.MinRefillCount))
	}
	persistScore := 0.0
	if cfg.PersistenceSeconds > 0 {
		persistScore = math.Min(1, persistence/cfg.PersistenceSeconds)
	}
	p.Confidence = math.Max(refillScore, math.Max(consistency, persistScore))

	return p, true
}

// refillStats counts depletion→refill transitions relative to the peak
// quantity in the ring and averages the depletion-to-refill latency.
func refillStats(samples []sample, depletionRatio, refillRatio float64) (int, float64) {
	peak := 0.0
	for _, s := range samples {
		if s.qty > peak {
			peak = s.qty
		}
	}
	if peak <= 0 {
		return 0, 0
	}

	var (
		refills      int
		latencySum   float64
		depleted     bool
		depletedAt   sample
		haveDepleted bool
	)
	for _, s := range samples {
		switch {
		case s.qty <= depletionRatio*peak:
			depleted = true
			depletedAt = s
			haveDepleted = true
		case depleted && s.qty >= refillRatio*peak:
			refills++
			if haveDepleted {
				latencySum += s.ts.Sub(depletedAt.ts).Seconds()
			}
			depleted = false
		}
	}
	if refills == 0 {
		return 0, 0
	}
	return refills, latencySum / float64(refills)
}

// consistencyScore is 1 - clamp(stdev/mean, 0, 1) over non-zero samples;
// fewer than 3 non-zero samples score 0.
func consistencyScore(samples []sample) float64 {
	var qtys []float64
	for _, s := range samples {
		if s.qty > 0 {
			qtys = append(qtys, s.qty)
		}
	}
	if len(qtys) < 3 {
		return 0
	}
	mean := 0.0
	for _, q := range qtys {
		mean += q
	}
	mean /= float64(len(qtys))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, q := range qtys {
		variance += (q - mean) * (q - mean)
	}
	variance /= float64(len(qtys))
	ratio := math.Sqrt(variance) / mean
	if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio
}

// persistenceSeconds is the span between the first and last sample with
// positive quantity.
func persistenceSeconds(samples []sample) float64 {
	var first, last sample
	found := false
	for _, s := range samples {
		if s.qty <= 0 {
			continue
		}
		if !found {
			first, found = s, true
		}
		last = s
	}
	if !found {
		return 0
	}
	return last.ts.Sub(first.ts).Seconds()
}

func nonZeroCount(samples []sample) int {
	n := 0
	for _, s := range samples {
		if s.qty > 0 {
			n++
		}
	}
	return n
}
