// Package publish drains signals from a bounded queue and publishes them to
// the outbound bus subject behind a circuit breaker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/quantfeed/strategyd/internal/adapter"
	"github.com/quantfeed/strategyd/internal/rolling"
	"github.com/quantfeed/strategyd/internal/signal"
)

// ErrQueueFull is returned by Enqueue when the queue stays full past the
// caller's deadline. These drops are deliberate shedding, counted apart from
// publish errors.
var ErrQueueFull = errors.New("egress queue full")

// Bus is the outbound publish surface; *nats.Conn satisfies it.
type Bus interface {
	Publish(subject string, data []byte) error
}

// Options configures a Publisher.
type Options struct {
	Subject          string
	QueueCapacity    int
	Workers          int
	FailureThreshold uint32        // consecutive failures before the breaker opens
	RecoveryTimeout  time.Duration // open -> half-open delay
}

// Publisher owns the egress queue, the publish workers and the breaker.
type Publisher struct {
	bus     Bus
	subject string
	queue   chan *signal.Signal
	workers int
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
	wg      sync.WaitGroup

	signalCount  atomic.Int64 // accepted into the queue
	orderCount   atomic.Int64 // published
	errorCount   atomic.Int64 // publish failures
	droppedCount atomic.Int64 // back-pressure drops
	breakerDrops atomic.Int64 // dropped while the breaker was open
	latency      *rolling.Window
}

// New creates a publisher. Run must be called to start the workers.
func New(bus Bus, opts Options, log zerolog.Logger) *Publisher {
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = 1000
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 5
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = 60 * time.Second
	}

	plog := log.With().Str("component", "publisher").Logger()
	p := &Publisher{
		bus:     bus,
		subject: opts.Subject,
		queue:   make(chan *signal.Signal, opts.QueueCapacity),
		workers: opts.Workers,
		log:     plog,
		latency: rolling.NewWindow(1000),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bus-publish",
		MaxRequests: 1, // one trial call in half-open
		Timeout:     opts.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			plog.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return p
}

// Enqueue hands a signal to the publisher, blocking up to timeout when the
// queue is full. A timeout returns ErrQueueFull and the signal is dropped.
func (p *Publisher) Enqueue(sig *signal.Signal, timeout time.Duration) error {
	select {
	case p.queue <- sig:
		p.signalCount.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p.queue <- sig:
		p.signalCount.Add(1)
		return nil
	case <-timer.C:
		p.droppedCount.Add(1)
		return ErrQueueFull
	}
}

// Run starts the publish workers and blocks until ctx is cancelled and the
// queue has drained (or the drain deadline passes).
func (p *Publisher) Run(ctx context.Context, drainDeadline time.Duration) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.log.Info().Int("workers", p.workers).Int("capacity", cap(p.queue)).Msg("publisher started")

	<-ctx.Done()

	// Drain: close the queue so workers exit once it empties, but stop
	// waiting after the deadline. Signals still queued at that point are not
	// added to any drop counter.
	close(p.queue)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainDeadline):
		p.log.Warn().Msg("publisher drain deadline exceeded")
	}
	p.log.Info().Msg("publisher stopped")
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for sig := range p.queue {
		p.publishOne(sig)
	}
}

func (p *Publisher) publishOne(sig *signal.Signal) {
	wire := adapter.Transform(sig)
	data, err := json.Marshal(wire)
	if err != nil {
		p.errorCount.Add(1)
		p.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("signal marshal failed")
		return
	}

	start := time.Now()
	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.bus.Publish(p.subject, data)
	})
	switch {
	case err == nil:
		p.orderCount.Add(1)
		p.latency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		p.breakerDrops.Add(1)
		p.log.Debug().Str("symbol", sig.Symbol).Msg("signal dropped: breaker open")
	default:
		p.errorCount.Add(1)
		p.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("publish failed")
	}
}

// BreakerState returns the current breaker state string.
func (p *Publisher) BreakerState() string {
	return p.breaker.State().String()
}

// Metrics returns the publisher counters and rolling latency stats.
func (p *Publisher) Metrics() map[string]any {
	return map[string]any{
		"signal_count":       p.signalCount.Load(),
		"order_count":        p.orderCount.Load(),
		"error_count":        p.errorCount.Load(),
		"dropped_count":      p.droppedCount.Load(),
		"breaker_drops":      p.breakerDrops.Load(),
		"breaker_state":      p.BreakerState(),
		"queue_depth":        len(p.queue),
		"avg_publish_ms":     p.latency.Average(),
		"max_publish_ms":     p.latency.Max(),
	}
}

// Published returns the cumulative publish count (heartbeat helper).
func (p *Publisher) Published() int64 { return p.orderCount.Load() }

// Errors returns the cumulative publish error count (heartbeat helper).
func (p *Publisher) Errors() int64 { return p.errorCount.Load() }

// Health reports the publisher health snapshot.
func (p *Publisher) Health() map[string]any {
	return map[string]any{
		"running":       true,
		"breaker_state": p.BreakerState(),
		"queue_depth":   len(p.queue),
		"queue_cap":     cap(p.queue),
	}
}
