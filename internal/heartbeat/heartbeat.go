// Package heartbeat emits a periodic structured log record summarizing
// pipeline throughput. It only reads counters other components already
// maintain, so it never perturbs pipeline latency.
package heartbeat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Counters supplies the four cumulative totals the heartbeat tracks.
type Counters struct {
	MessagesProcessed int64
	ProcessingErrors  int64
	SignalsPublished  int64
	PublishErrors     int64
}

// Options configures a Reporter.
type Options struct {
	Interval time.Duration
	Detailed bool
}

// Reporter logs one heartbeat record every interval with deltas, rates and
// cumulative totals, plus per-component health snapshots in detailed mode.
type Reporter struct {
	opts    Options
	log     zerolog.Logger
	collect func() Counters
	health  func() map[string]map[string]any
	now     func() time.Time

	started time.Time
	prev    Counters
}

// New creates a reporter. collect returns the current cumulative totals;
// health (may be nil) returns per-component snapshots for detailed mode.
func New(opts Options, collect func() Counters, health func() map[string]map[string]any, log zerolog.Logger) *Reporter {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	return &Reporter{
		opts:    opts,
		log:     log.With().Str("component", "heartbeat").Logger(),
		collect: collect,
		health:  health,
		now:     time.Now,
	}
}

// Run emits heartbeats until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.started = r.now()
	r.prev = r.collect()

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick emits one heartbeat record immediately.
func (r *Reporter) Tick() {
	cur := r.collect()
	deltas := Deltas(r.prev, cur)
	r.prev = cur

	secs := r.opts.Interval.Seconds()
	ev := r.log.Info().
		Dur("uptime", r.now().Sub(r.started)).
		Int64("messages_delta", deltas.MessagesProcessed).
		Int64("errors_delta", deltas.ProcessingErrors).
		Int64("published_delta", deltas.SignalsPublished).
		Int64("publish_errors_delta", deltas.PublishErrors).
		Float64("messages_per_sec", float64(deltas.MessagesProcessed)/secs).
		Float64("published_per_sec", float64(deltas.SignalsPublished)/secs).
		Int64("messages_total", cur.MessagesProcessed).
		Int64("errors_total", cur.ProcessingErrors).
		Int64("published_total", cur.SignalsPublished).
		Int64("publish_errors_total", cur.PublishErrors)

	if r.opts.Detailed && r.health != nil {
		for component, snapshot := range r.health() {
			ev = ev.Interface(component, snapshot)
		}
	}
	ev.Msg("heartbeat")
}

// Deltas computes the per-tick deltas without logging; used by tests.
func Deltas(prev, cur Counters) Counters {
	return Counters{
		MessagesProcessed: cur.MessagesProcessed - prev.MessagesProcessed,
		ProcessingErrors:  cur.ProcessingErrors - prev.ProcessingErrors,
		SignalsPublished:  cur.SignalsPublished - prev.SignalsPublished,
		PublishErrors:     cur.PublishErrors - prev.PublishErrors,
	}
}
