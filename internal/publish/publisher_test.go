package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/signal"
)

var testLog = zerolog.Nop()

// fakeBus fails while failing is set and records every delivered payload.
type fakeBus struct {
	mu       sync.Mutex
	failing  bool
	attempts int
	payloads [][]byte
}

func (b *fakeBus) Publish(_ string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.failing {
		return errors.New("bus down")
	}
	b.payloads = append(b.payloads, data)
	return nil
}

func (b *fakeBus) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *fakeBus) Delivered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func (b *fakeBus) SetFailing(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = v
}

func testSignal() *signal.Signal {
	return &signal.Signal{
		ID: "sig-1234567890", Symbol: "BTCUSDT",
		Type: signal.TypeBuy, Action: signal.ActionOpenLong,
		Confidence: signal.ConfidenceHigh, Score: 0.9, Price: 50000,
		Strategy: "orderbook_skew", Timestamp: time.Now(),
	}
}

func newTestPublisher(bus Bus, threshold uint32, recovery time.Duration) *Publisher {
	return New(bus, Options{
		Subject:          "signals.trading",
		QueueCapacity:    16,
		Workers:          1,
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
	}, testLog)
}

func TestPublishHappyPath(t *testing.T) {
	bus := &fakeBus{}
	p := newTestPublisher(bus, 3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx, time.Second); close(done) }()

	if err := p.Enqueue(testSignal(), time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return bus.Delivered() == 1 })

	cancel()
	<-done

	m := p.Metrics()
	if m["signal_count"].(int64) != 1 || m["order_count"].(int64) != 1 {
		t.Fatalf("counters = %v", m)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	bus := &fakeBus{failing: true}
	p := newTestPublisher(bus, 3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx, time.Second); close(done) }()

	// Three consecutive failures trip the breaker.
	for i := 0; i < 3; i++ {
		if err := p.Enqueue(testSignal(), time.Second); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitFor(t, func() bool { return p.Errors() == 3 })
	if bus.Attempts() != 3 {
		t.Fatalf("bus attempts = %d, want 3", bus.Attempts())
	}
	if p.BreakerState() != "open" {
		t.Fatalf("breaker state = %q, want open", p.BreakerState())
	}

	// The fourth signal is dropped without touching the bus.
	if err := p.Enqueue(testSignal(), time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return p.Metrics()["breaker_drops"].(int64) == 1 })
	if bus.Attempts() != 3 {
		t.Fatalf("bus attempts = %d, want still 3 (fail fast)", bus.Attempts())
	}

	cancel()
	<-done
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	bus := &fakeBus{failing: true}
	p := newTestPublisher(bus, 2, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx, time.Second); close(done) }()

	for i := 0; i < 2; i++ {
		p.Enqueue(testSignal(), time.Second)
	}
	waitFor(t, func() bool { return p.BreakerState() == "open" })

	// After the recovery timeout the breaker allows exactly one trial; it
	// succeeds, so the breaker closes and publishing resumes.
	bus.SetFailing(false)
	time.Sleep(80 * time.Millisecond)

	p.Enqueue(testSignal(), time.Second)
	waitFor(t, func() bool { return bus.Delivered() == 1 })
	waitFor(t, func() bool { return p.BreakerState() == "closed" })

	p.Enqueue(testSignal(), time.Second)
	waitFor(t, func() bool { return bus.Delivered() == 2 })

	cancel()
	<-done
}

func TestEnqueueTimesOutWhenFull(t *testing.T) {
	bus := &fakeBus{}
	p := New(bus, Options{
		Subject:          "signals.trading",
		QueueCapacity:    1,
		Workers:          1,
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	}, testLog)
	// Workers never started: the queue fills and stays full.

	if err := p.Enqueue(testSignal(), 10*time.Millisecond); err != nil {
		t.Fatalf("first Enqueue should fit: %v", err)
	}
	err := p.Enqueue(testSignal(), 10*time.Millisecond)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if p.Metrics()["dropped_count"].(int64) != 1 {
		t.Fatal("back-pressure drop not counted")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
