package strategy

import (
	"testing"
	"time"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
)

type stubStrategy struct {
	id string
}

func (s *stubStrategy) ID() string                                    { return s.id }
func (s *stubStrategy) Wants(market.Event) bool                       { return true }
func (s *stubStrategy) OnEvent(market.Event, Params) []signal.Signal  { return nil }

func TestRegistryOrderAndToggle(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{id: "a"}, true)
	r.Register(&stubStrategy{id: "b"}, false)
	r.Register(&stubStrategy{id: "c"}, true)

	enabled := r.Enabled()
	if len(enabled) != 2 || enabled[0].ID() != "a" || enabled[1].ID() != "c" {
		t.Fatalf("Enabled order wrong: %v", ids(enabled))
	}

	if !r.SetEnabled("b", true) {
		t.Fatal("SetEnabled on known id should succeed")
	}
	if r.SetEnabled("missing", true) {
		t.Fatal("SetEnabled on unknown id should fail")
	}
	if len(r.Enabled()) != 3 {
		t.Fatal("b should now be enabled")
	}
	if !r.IsEnabled("b") || r.IsEnabled("missing") {
		t.Fatal("IsEnabled inconsistent")
	}
}

func ids(ss []Strategy) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID()
	}
	return out
}

func TestLimiterEnforcesMinimumGap(t *testing.T) {
	l := newLimiter()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 10 * time.Second

	if !l.allow("k", interval, base) {
		t.Fatal("first emission must be allowed")
	}
	if l.allow("k", interval, base.Add(9*time.Second)) {
		t.Fatal("emission inside the interval must be suppressed")
	}
	if !l.allow("k", interval, base.Add(10*time.Second)) {
		t.Fatal("emission at exactly the interval must be allowed")
	}
	// Distinct keys do not interfere.
	if !l.allow("other", interval, base) {
		t.Fatal("distinct key must be independent")
	}
}

func TestLimiterZeroIntervalAlwaysAllows(t *testing.T) {
	l := newLimiter()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if !l.allow("k", 0, now) {
			t.Fatal("zero interval must always allow")
		}
	}
}
