// Package dispatch consumes market data from the bus, decodes it and routes
// events through the enabled strategies.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/market"
	"github.com/quantfeed/strategyd/internal/signal"
	"github.com/quantfeed/strategyd/internal/strategy"
	"github.com/quantfeed/strategyd/internal/strategyconfig"
)

// State is the dispatcher lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateRunning      State = "running"
	StateDraining     State = "draining"
	StateStopped      State = "stopped"
)

// Egress accepts signals for publication; *publish.Publisher satisfies it.
type Egress interface {
	Enqueue(sig *signal.Signal, timeout time.Duration) error
}

// Options configures a Consumer.
type Options struct {
	Subject        string
	QueueGroup     string
	Workers        int
	EnqueueTimeout time.Duration
}

// Consumer subscribes to the inbound subject with a queue group, decodes
// messages and dispatches events to strategies. Strategies run sequentially
// within a message; concurrency is per message via the worker pool.
type Consumer struct {
	opts     Options
	registry *strategy.Registry
	params   *strategyconfig.Manager
	egress   Egress
	metrics  *Metrics
	log      zerolog.Logger

	nc    *nats.Conn
	sub   *nats.Subscription
	msgCh chan *nats.Msg
	wg    sync.WaitGroup

	mu    sync.Mutex
	state State
}

// New creates a consumer over an established bus connection. The caller
// owns the connection's lifetime; Stop leaves it open for other users
// (the publisher shares it).
func New(nc *nats.Conn, opts Options, registry *strategy.Registry, params *strategyconfig.Manager, egress Egress, metrics *Metrics, log zerolog.Logger) *Consumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = time.Second
	}
	return &Consumer{
		opts:     opts,
		nc:       nc,
		registry: registry,
		params:   params,
		egress:   egress,
		metrics:  metrics,
		log:      log.With().Str("component", "consumer").Logger(),
		state:    StateInitializing,
	}
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.log.Info().Str("from", string(prev)).Str("to", string(s)).Msg("dispatcher state")
	}
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start subscribes with the queue group and launches the worker pool. It
// returns once the subscription is live.
func (c *Consumer) Start(ctx context.Context) error {
	c.setState(StateConnecting)

	c.nc.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		c.setState(StateConnecting)
		c.log.Warn().Err(err).Msg("bus disconnected")
	})
	c.nc.SetReconnectHandler(func(_ *nats.Conn) {
		c.setState(StateRunning)
		c.log.Info().Msg("bus reconnected")
	})

	c.msgCh = make(chan *nats.Msg, c.opts.Workers*64)
	sub, err := c.nc.ChanQueueSubscribe(c.opts.Subject, c.opts.QueueGroup, c.msgCh)
	if err != nil {
		c.setState(StateStopped)
		return fmt.Errorf("subscribe %s: %w", c.opts.Subject, err)
	}
	c.sub = sub
	c.setState(StateSubscribed)

	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}

	c.setState(StateRunning)
	c.log.Info().
		Str("subject", c.opts.Subject).
		Str("queue_group", c.opts.QueueGroup).
		Int("workers", c.opts.Workers).
		Msg("consumer started")
	return nil
}

// Stop removes the subscription and waits for in-flight messages up to the
// deadline. The bus connection is left open for its owner to close.
func (c *Consumer) Stop(deadline time.Duration) {
	c.setState(StateDraining)

	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.log.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
	if c.msgCh != nil {
		close(c.msgCh)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
		c.log.Warn().Msg("drain deadline exceeded")
	}

	c.setState(StateStopped)
	c.log.Info().Msg("consumer stopped")
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()
	for msg := range c.msgCh {
		c.Process(ctx, msg.Data)
	}
}

// Process decodes one bus payload and dispatches the event. Exported for
// tests; the worker pool is the production caller.
func (c *Consumer) Process(ctx context.Context, payload []byte) {
	start := time.Now()

	ev, err := market.Decode(payload)
	if err != nil {
		c.metrics.DecodeError()
		c.log.Debug().Err(err).Msg("message dropped: decode error")
		return
	}

	c.dispatch(ctx, ev)
	c.metrics.ObserveMessage(time.Since(start))
}

// dispatch runs every enabled strategy whose filter matches the event.
// A strategy failure is contained: it is counted and its siblings continue.
func (c *Consumer) dispatch(ctx context.Context, ev market.Event) {
	for _, s := range c.registry.Enabled() {
		if !s.Wants(ev) {
			continue
		}

		snap := c.params.Resolve(ctx, s.ID(), ev.Symbol())
		started := time.Now()
		sigs, err := c.invoke(s, ev, snap.Parameters)
		elapsed := time.Since(started)

		switch {
		case err != nil:
			c.metrics.ObserveStrategy(s.ID(), elapsed, ResultFailure)
			c.log.Error().Err(err).Str("strategy", s.ID()).Str("symbol", ev.Symbol()).Msg("strategy failed")
		case len(sigs) == 0:
			c.metrics.ObserveStrategy(s.ID(), elapsed, ResultNoSignal)
		default:
			c.metrics.ObserveStrategy(s.ID(), elapsed, ResultSuccess)
			for i := range sigs {
				c.forward(&sigs[i])
			}
		}
	}
}

// invoke runs one strategy with panic containment.
func (c *Consumer) invoke(s strategy.Strategy, ev market.Event, params strategy.Params) (sigs []signal.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return s.OnEvent(ev, params), nil
}

// forward validates a signal and hands it to egress, counting back-pressure
// drops.
func (c *Consumer) forward(sig *signal.Signal) {
	if err := sig.Validate(); err != nil {
		c.log.Error().Err(err).Str("strategy", sig.Strategy).Msg("invalid signal discarded")
		return
	}
	if err := c.egress.Enqueue(sig, c.opts.EnqueueTimeout); err != nil {
		c.metrics.SignalDropped()
		c.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("signal dropped: egress back-pressure")
		return
	}
	c.metrics.SignalEmitted()
}

// Health reports the consumer health snapshot.
func (c *Consumer) Health() map[string]any {
	connected := c.nc != nil && c.nc.IsConnected()
	state := c.State()
	return map[string]any{
		"state":     string(state),
		"connected": connected,
		"running":   state == StateRunning,
	}
}
