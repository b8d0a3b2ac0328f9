// Package tracker maintains per-symbol order-book level history and derives
// iceberg patterns (refill, consistency, persistence) from it.
package tracker

import (
	"sync"
	"time"

	"github.com/quantfeed/strategyd/internal/symbol"
)

// Quote is one observed (price, quantity) level on a book side.
type Quote struct {
	Price    float64
	Quantity float64
}

// sample is a single quantity observation for a price bucket.
type sample struct {
	ts  time.Time
	qty float64
}

// level holds the rolling sample history for one price bucket.
type level struct {
	price     float64
	samples   []sample
	lastTouch time.Time
}

// book holds both sides of a symbol's tracked history.
type book struct {
	bids      map[float64]*level
	asks      map[float64]*level
	lastTouch time.Time
}

func (b *book) side(name string) map[float64]*level {
	if name == "bid" {
		return b.bids
	}
	return b.asks
}

// Tracker tracks bounded level history across symbols. All methods are safe
// for concurrent use; state is partitioned per symbol internally.
type Tracker struct {
	mu         sync.Mutex
	window     time.Duration
	maxSymbols int
	maxLevels  int // live buckets per symbol, both sides combined
	books      map[string]*book
}

// New creates a tracker with the given history window and resource ceilings.
func New(window time.Duration, maxSymbols, maxLevelsPerSymbol int) *Tracker {
	return &Tracker{
		window:     window,
		maxSymbols: maxSymbols,
		maxLevels:  maxLevelsPerSymbol,
		books:      make(map[string]*book),
	}
}

// Update ingests a depth snapshot for a symbol. Each observed level appends a
// (timestamp, quantity) sample to its price bucket, samples older than the
// history window are dropped, and idle levels and least-recently-touched
// symbols are evicted against the configured ceilings.
func (t *Tracker) Update(sym string, bids, asks []Quote, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.books[sym]
	if !ok {
		if len(t.books) >= t.maxSymbols {
			t.evictOldestSymbol()
		}
		b = &book{bids: make(map[float64]*level), asks: make(map[float64]*level)}
		t.books[sym] = b
	}
	b.lastTouch = ts

	for _, q := range bids {
		t.touch(sym, b.bids, q, ts)
	}
	for _, q := range asks {
		t.touch(sym, b.asks, q, ts)
	}

	t.evictIdleLevels(b, ts)
	t.enforceLevelCap(b)
}

func (t *Tracker) touch(sym string, side map[float64]*level, q Quote, ts time.Time) {
	bucket := symbol.Bucket(sym, q.Price)
	lv, ok := side[bucket]
	if !ok {
		lv = &level{price: bucket}
		side[bucket] = lv
	}
	lv.samples = append(lv.samples, sample{ts: ts, qty: q.Quantity})
	lv.lastTouch = ts
	lv.trim(ts.Add(-t.window))
}

// trim drops samples strictly older than cutoff. A sample exactly at the
// window boundary is retained.
func (lv *level) trim(cutoff time.Time) {
	i := 0
	for i < len(lv.samples) && lv.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		lv.samples = append(lv.samples[:0], lv.samples[i:]...)
	}
}

// evictIdleLevels removes buckets idle past the window and trims the
// remaining ones so no retained sample predates (now - window).
func (t *Tracker) evictIdleLevels(b *book, now time.Time) {
	cutoff := now.Add(-t.window)
	for _, side := range []map[float64]*level{b.bids, b.asks} {
		for price, lv := range side {
			if lv.lastTouch.Before(cutoff) {
				delete(side, price)
				continue
			}
			lv.trim(cutoff)
		}
	}
}

func (t *Tracker) enforceLevelCap(b *book) {
	for len(b.bids)+len(b.asks) > t.maxLevels {
		var (
			oldestSide  map[float64]*level
			oldestPrice float64
			oldest      time.Time
			found       bool
		)
		for _, side := range []map[float64]*level{b.bids, b.asks} {
			for price, lv := range side {
				if !found || lv.lastTouch.Before(oldest) {
					oldestSide, oldestPrice, oldest, found = side, price, lv.lastTouch, true
				}
			}
		}
		if !found {
			return
		}
		delete(oldestSide, oldestPrice)
	}
}

func (t *Tracker) evictOldestSymbol() {
	var (
		oldestSym string
		oldest    time.Time
		found     bool
	)
	for sym, b := range t.books {
		if !found || b.lastTouch.Before(oldest) {
			oldestSym, oldest, found = sym, b.lastTouch, true
		}
	}
	if found {
		delete(t.books, oldestSym)
	}
}

// SymbolCount returns the number of symbols currently tracked.
func (t *Tracker) SymbolCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.books)
}

// LevelCount returns the number of live price buckets tracked for a symbol.
func (t *Tracker) LevelCount(sym string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.books[sym]
	if !ok {
		return 0
	}
	return len(b.bids) + len(b.asks)
}

// OldestSample returns the timestamp of the oldest retained sample for a
// symbol, or the zero time when nothing is tracked. Used by invariant tests.
func (t *Tracker) OldestSample(sym string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.books[sym]
	if !ok {
		return time.Time{}
	}
	var oldest time.Time
	for _, side := range []map[float64]*level{b.bids, b.asks} {
		for _, lv := range side {
			for _, s := range lv.samples {
				if oldest.IsZero() || s.ts.Before(oldest) {
					oldest = s.ts
				}
			}
		}
	}
	return oldest
}
