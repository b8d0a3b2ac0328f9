package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/quantfeed/strategyd/internal/admin"
	"github.com/quantfeed/strategyd/internal/config"
	"github.com/quantfeed/strategyd/internal/dispatch"
	"github.com/quantfeed/strategyd/internal/heartbeat"
	"github.com/quantfeed/strategyd/internal/publish"
	"github.com/quantfeed/strategyd/internal/store"
	"github.com/quantfeed/strategyd/internal/strategy"
	"github.com/quantfeed/strategyd/internal/strategyconfig"
	"github.com/quantfeed/strategyd/internal/tracker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "strategyd").
		Logger()
	log.Info().Msg("realtime strategies starting")

	// Every strategy's defaults must satisfy its own schema; a mismatch is
	// a programming error worth failing the boot for.
	for _, id := range strategyconfig.ListStrategies() {
		if errs := strategyconfig.Validate(id, strategyconfig.Defaults(id)); len(errs) > 0 {
			log.Error().Str("strategy", id).Interface("errors", errs).Msg("invalid built-in defaults")
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	// Document store (optional unless -mongo-required).
	var cfgStore strategyconfig.Store
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	st, err := store.Connect(connectCtx, cfg.MongoURI, log)
	connectCancel()
	if err != nil {
		if cfg.MongoRequired {
			log.Error().Err(err).Msg("store connection failed")
			return 1
		}
		log.Warn().Err(err).Msg("running without store (environment and defaults only)")
	} else {
		defer st.Close(context.Background())
		if err := st.Migrate(ctx); err != nil {
			log.Error().Err(err).Msg("store migration failed")
			return 1
		}
		cfgStore = st
	}

	// Configuration manager plus its cache sweeper.
	manager := strategyconfig.NewManager(cfgStore, cfg.CacheTTL, config.StrategyEnvParams(), log)
	managerCtx, managerStop := context.WithCancel(context.Background())
	go manager.Run(managerCtx)

	// Strategy registry.
	tr := tracker.New(cfg.TrackerWindow, cfg.TrackerMaxSymbols, cfg.TrackerMaxLevels)
	fetcher := strategy.NewHTTPPriceFetcher(cfg.VenueHTTPTimeout)
	registry := strategy.NewRegistry()
	registry.Register(strategy.NewSkew(log), cfg.Enabled["orderbook_skew"])
	registry.Register(strategy.NewMomentum(log), cfg.Enabled["trade_momentum"])
	registry.Register(strategy.NewVelocity(log), cfg.Enabled["ticker_velocity"])
	registry.Register(strategy.NewDominance(log), cfg.Enabled["btc_dominance"])
	registry.Register(strategy.NewCrossExchange(log, fetcher), cfg.Enabled["cross_exchange_spread"])
	registry.Register(strategy.NewOnChain(log, nil), cfg.Enabled["onchain_metrics"])
	registry.Register(strategy.NewLiquidity(log), cfg.Enabled["spread_liquidity"])
	registry.Register(strategy.NewIceberg(log, tr), cfg.Enabled["iceberg_detector"])
	log.Info().Strs("strategies", registry.IDs()).Msg("strategies registered")

	// Metrics.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metrics := dispatch.NewMetrics(promReg)

	// Bus connection, shared by the consumer and the publisher.
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(cfg.ConsumerName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		log.Error().Err(err).Str("url", cfg.NATSURL).Msg("bus connection failed")
		managerStop()
		return 1
	}
	defer nc.Close()

	// Egress publisher.
	publisher := publish.New(nc, publish.Options{
		Subject:          cfg.PublisherSubject,
		QueueCapacity:    cfg.QueueCapacity,
		Workers:          cfg.PublishWorkers,
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	}, log)

	// Ingest dispatcher.
	consumer := dispatch.New(nc, dispatch.Options{
		Subject:        cfg.ConsumerSubject,
		QueueGroup:     cfg.QueueGroup,
		Workers:        cfg.Workers,
		EnqueueTimeout: cfg.EnqueueTimeout,
	}, registry, manager, publisher, metrics, log)

	if err := consumer.Start(ctx); err != nil {
		log.Error().Err(err).Msg("consumer start failed")
		managerStop()
		return 1
	}

	publisherCtx, publisherStop := context.WithCancel(context.Background())
	publisherDone := make(chan struct{})
	go func() {
		publisher.Run(publisherCtx, cfg.DrainTimeout)
		close(publisherDone)
	}()

	// Heartbeat.
	reporter := heartbeat.New(heartbeat.Options{
		Interval: cfg.HeartbeatInterval,
		Detailed: cfg.HeartbeatDetailed,
	}, func() heartbeat.Counters {
		return heartbeat.Counters{
			MessagesProcessed: metrics.Messages(),
			ProcessingErrors:  metrics.Errors(),
			SignalsPublished:  publisher.Published(),
			PublishErrors:     publisher.Errors(),
		}
	}, func() map[string]map[string]any {
		return map[string]map[string]any{
			"consumer":       consumer.Health(),
			"publisher":      publisher.Health(),
			"config_manager": manager.Health(),
			"dispatch":       metrics.Snapshot(),
			"egress":         publisher.Metrics(),
		}
	}, log)
	heartbeatCtx, heartbeatStop := context.WithCancel(context.Background())
	heartbeatDone := make(chan struct{})
	go func() {
		reporter.Run(heartbeatCtx)
		close(heartbeatDone)
	}()

	// Admin HTTP server.
	adminSrv := admin.NewServer(manager, map[string]admin.HealthSource{
		"consumer":       consumer,
		"publisher":      publisher,
		"config_manager": manager,
	}, promReg, log)
	mux := http.NewServeMux()
	adminSrv.Register(mux)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.AdminHost, cfg.AdminPort),
		Handler: mux,
	}
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("admin server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin server error")
			cancel()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown, reverse of start-up: heartbeat, dispatcher (drain
	// in-flight), publisher (drain queue), config manager, store via defer.
	heartbeatStop()
	<-heartbeatDone

	consumer.Stop(cfg.DrainTimeout)

	publisherStop()
	<-publisherDone

	managerStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpSrv.Shutdown(shutdownCtx)
	shutdownCancel()

	log.Info().Msg("realtime strategies stopped")
	return 0
}
