package tracker

import (
	"fmt"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestWindowEvictionBoundary(t *testing.T) {
	tr := New(5*time.Minute, 10, 100)

	// One sample at t0, another exactly window later: the first sample sits
	// exactly at (now - window) and must be retained.
	tr.Update("BTCUSDT", []Quote{{50000, 1.0}}, []Quote{{50001, 1.0}}, t0)
	tr.Update("BTCUSDT", []Quote{{50000, 1.0}}, []Quote{{50001, 1.0}}, t0.Add(5*time.Minute))

	if got := tr.OldestSample("BTCUSDT"); !got.Equal(t0) {
		t.Fatalf("oldest sample = %v, want %v (boundary sample retained)", got, t0)
	}

	// One second past the window, the t0 sample must be gone.
	tr.Update("BTCUSDT", []Quote{{50000, 1.0}}, []Quote{{50001, 1.0}}, t0.Add(5*time.Minute+time.Second))
	if got := tr.OldestSample("BTCUSDT"); got.Equal(t0) {
		t.Fatal("sample older than window was not evicted")
	}
}

func TestSymbolLRUEviction(t *testing.T) {
	tr := New(5*time.Minute, 2, 100)

	tr.Update("BTCUSDT", []Quote{{50000, 1}}, nil, t0)
	tr.Update("ETHUSDT", []Quote{{3000, 1}}, nil, t0.Add(time.Second))
	tr.Update("BNBUSDT", []Quote{{600, 1}}, nil, t0.Add(2*time.Second))

	if n := tr.SymbolCount(); n != 2 {
		t.Fatalf("SymbolCount = %d, want 2", n)
	}
	if tr.LevelCount("BTCUSDT") != 0 {
		t.Fatal("BTCUSDT (oldest touch) should have been evicted")
	}
	if tr.LevelCount("ETHUSDT") == 0 || tr.LevelCount("BNBUSDT") == 0 {
		t.Fatal("recently touched symbols should survive")
	}
}

func TestPerSymbolLevelCap(t *testing.T) {
	tr := New(5*time.Minute, 10, 3)

	for i := 0; i < 5; i++ {
		price := 50000 + float64(i)
		tr.Update("BTCUSDT", []Quote{{price, 1}}, nil, t0.Add(time.Duration(i)*time.Second))
	}
	if n := tr.LevelCount("BTCUSDT"); n != 3 {
		t.Fatalf("LevelCount = %d, want 3 (cap)", n)
	}
}

func TestIdleLevelEviction(t *testing.T) {
	tr := New(time.Minute, 10, 100)

	tr.Update("BTCUSDT", []Quote{{50000, 1}}, nil, t0)
	// Touch a different level well past the window; the idle one goes.
	tr.Update("BTCUSDT", []Quote{{50010, 1}}, nil, t0.Add(2*time.Minute))

	if n := tr.LevelCount("BTCUSDT"); n != 1 {
		t.Fatalf("LevelCount = %d, want 1 after idle eviction", n)
	}
}

func TestNoBucketOlderThanWindowAfterUpdates(t *testing.T) {
	tr := New(time.Minute, 5, 20)

	ts := t0
	lastUpdate := make(map[string]time.Time)
	for i := 0; i < 200; i++ {
		sym := fmt.Sprintf("SYM%03dUSDT", i%7)
		tr.Update(sym, []Quote{{100 + float64(i%11), float64(i % 3)}}, []Quote{{120 + float64(i%5), 1}}, ts)
		lastUpdate[sym] = ts
		ts = ts.Add(3 * time.Second)
	}
	for sym, last := range lastUpdate {
		cutoff := last.Add(-time.Minute)
		oldest := tr.OldestSample(sym)
		if !oldest.IsZero() && oldest.Before(cutoff) {
			t.Fatalf("%s holds sample %v older than window cutoff %v", sym, oldest, cutoff)
		}
	}
}
