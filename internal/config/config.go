package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration, loaded once at process start.
type Config struct {
	// Bus
	NATSURL          string
	ConsumerSubject  string
	PublisherSubject string
	QueueGroup       string
	ConsumerName     string

	// Document store
	MongoURI      string
	MongoRequired bool
	MongoTimeout  time.Duration

	// Pipeline
	Workers        int
	PublishWorkers int
	QueueCapacity  int
	EnqueueTimeout time.Duration
	DrainTimeout   time.Duration

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration

	// Configuration manager
	CacheTTL time.Duration

	// Order-book tracker ceilings
	TrackerWindow     time.Duration
	TrackerMaxSymbols int
	TrackerMaxLevels  int

	// Heartbeat
	HeartbeatInterval time.Duration
	HeartbeatDetailed bool

	// Admin HTTP
	AdminHost string
	AdminPort int

	// Cross-exchange poller
	VenueHTTPTimeout time.Duration

	// Strategy enable toggles, keyed by strategy id
	Enabled map[string]bool
}

func Load() *Config {
	c := &Config{}

	flag.StringVar(&c.NATSURL, "nats-url", envStr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	flag.StringVar(&c.ConsumerSubject, "consumer-subject", envStr("NATS_CONSUMER_TOPIC", "binance.websocket.data"), "Inbound market data subject")
	flag.StringVar(&c.PublisherSubject, "publisher-subject", envStr("NATS_PUBLISHER_TOPIC", "signals.trading"), "Outbound signal subject")
	flag.StringVar(&c.QueueGroup, "queue-group", envStr("NATS_CONSUMER_GROUP", "realtime-strategies-group"), "Queue group for competing consumers")
	flag.StringVar(&c.ConsumerName, "consumer-name", envStr("NATS_CONSUMER_NAME", "realtime-strategies-consumer"), "Connection name on the bus")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGODB_URI", "mongodb://localhost:27017/strategies"), "MongoDB connection URI")
	flag.BoolVar(&c.MongoRequired, "mongo-required", envBool("MONGODB_REQUIRED", false), "Fail startup when MongoDB is unreachable")

	flag.IntVar(&c.Workers, "workers", envInt("DISPATCH_WORKERS", 1), "Dispatch worker count")
	flag.IntVar(&c.PublishWorkers, "publish-workers", envInt("PUBLISH_WORKERS", 2), "Publisher worker count")
	flag.IntVar(&c.QueueCapacity, "queue-capacity", envInt("EGRESS_QUEUE_CAPACITY", 1000), "Egress queue depth")

	flag.IntVar(&c.BreakerFailureThreshold, "breaker-failures", envInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5), "Consecutive publish failures before the breaker opens")

	flag.IntVar(&c.TrackerMaxSymbols, "tracker-max-symbols", envInt("TRACKER_MAX_SYMBOLS", 100), "Max symbols tracked for iceberg detection")
	flag.IntVar(&c.TrackerMaxLevels, "tracker-max-levels", envInt("TRACKER_MAX_LEVELS", 200), "Max live price buckets per symbol")

	flag.BoolVar(&c.HeartbeatDetailed, "heartbeat-detailed", envBool("HEARTBEAT_INCLUDE_DETAILED_STATS", true), "Include component health in heartbeats")

	flag.StringVar(&c.AdminHost, "admin-host", envStr("ADMIN_HOST", "0.0.0.0"), "Admin HTTP listen host")
	flag.IntVar(&c.AdminPort, "admin-port", envInt("ADMIN_PORT", 8080), "Admin HTTP listen port")

	flag.Parse()

	c.MongoTimeout = envDuration("MONGODB_TIMEOUT_MS", 5000) * time.Millisecond
	c.EnqueueTimeout = envDuration("ENQUEUE_TIMEOUT_MS", 1000) * time.Millisecond
	c.DrainTimeout = envDuration("DRAIN_TIMEOUT_MS", 10000) * time.Millisecond
	c.BreakerRecoveryTimeout = envDuration("CIRCUIT_BREAKER_RECOVERY_TIMEOUT", 60) * time.Second
	c.CacheTTL = envDuration("CONFIG_CACHE_TTL_SECONDS", 60) * time.Second
	c.TrackerWindow = envDuration("TRACKER_HISTORY_WINDOW_SECONDS", 300) * time.Second
	c.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL_SECONDS", 60) * time.Second
	c.VenueHTTPTimeout = envDuration("VENUE_HTTP_TIMEOUT_MS", 5000) * time.Millisecond

	c.Enabled = map[string]bool{
		"orderbook_skew":        envBool("STRATEGY_ENABLED_ORDERBOOK_SKEW", true),
		"trade_momentum":        envBool("STRATEGY_ENABLED_TRADE_MOMENTUM", true),
		"ticker_velocity":       envBool("STRATEGY_ENABLED_TICKER_VELOCITY", true),
		"btc_dominance":         envBool("STRATEGY_ENABLED_BTC_DOMINANCE", true),
		"cross_exchange_spread": envBool("STRATEGY_ENABLED_CROSS_EXCHANGE_SPREAD", true),
		"onchain_metrics":       envBool("STRATEGY_ENABLED_ONCHAIN_METRICS", false),
		"spread_liquidity":      envBool("STRATEGY_ENABLED_SPREAD_LIQUIDITY", true),
		"iceberg_detector":      envBool("STRATEGY_ENABLED_ICEBERG_DETECTOR", true),
	}

	return c
}

// StrategyEnvParams collects per-strategy parameters that were explicitly
// set in the environment. Unset variables are omitted so built-in defaults
// stay reachable in the resolution order.
func StrategyEnvParams() map[string]map[string]any {
	out := make(map[string]map[string]any)

	collect := func(strategy string, vars map[string]string) {
		params := make(map[string]any)
		for param, envKey := range vars {
			v, ok := os.LookupEnv(envKey)
			if !ok {
				continue
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				params[param] = f
			} else {
				params[param] = v
			}
		}
		if len(params) > 0 {
			out[strategy] = params
		}
	}

	collect("orderbook_skew", map[string]string{
		"top_levels":         "ORDERBOOK_SKEW_TOP_LEVELS",
		"buy_threshold":      "ORDERBOOK_SKEW_BUY_THRESHOLD",
		"sell_threshold":     "ORDERBOOK_SKEW_SELL_THRESHOLD",
		"min_spread_percent": "ORDERBOOK_SKEW_MIN_SPREAD_PERCENT",
	})
	collect("trade_momentum", map[string]string{
		"price_weight":    "TRADE_MOMENTUM_PRICE_WEIGHT",
		"quantity_weight": "TRADE_MOMENTUM_QUANTITY_WEIGHT",
		"maker_weight":    "TRADE_MOMENTUM_MAKER_WEIGHT",
		"buy_threshold":   "TRADE_MOMENTUM_BUY_THRESHOLD",
		"sell_threshold":  "TRADE_MOMENTUM_SELL_THRESHOLD",
		"min_quantity":    "TRADE_MOMENTUM_MIN_QUANTITY",
	})
	collect("ticker_velocity", map[string]string{
		"time_window":      "TICKER_VELOCITY_TIME_WINDOW",
		"buy_threshold":    "TICKER_VELOCITY_BUY_THRESHOLD",
		"sell_threshold":   "TICKER_VELOCITY_SELL_THRESHOLD",
		"min_price_change": "TICKER_VELOCITY_MIN_PRICE_CHANGE",
	})
	collect("btc_dominance", map[string]string{
		"high_threshold":      "BTC_DOMINANCE_HIGH_THRESHOLD",
		"low_threshold":       "BTC_DOMINANCE_LOW_THRESHOLD",
		"change_threshold":    "BTC_DOMINANCE_CHANGE_THRESHOLD",
		"window_hours":        "BTC_DOMINANCE_WINDOW_HOURS",
		"min_signal_interval": "BTC_DOMINANCE_MIN_SIGNAL_INTERVAL",
	})
	collect("cross_exchange_spread", map[string]string{
		"spread_threshold_percent": "SPREAD_THRESHOLD_PERCENT",
		"min_signal_interval":      "SPREAD_MIN_SIGNAL_INTERVAL",
	})
	collect("onchain_metrics", map[string]string{
		"network_growth_threshold": "ONCHAIN_NETWORK_GROWTH_THRESHOLD",
		"volume_threshold":         "ONCHAIN_VOLUME_THRESHOLD",
		"min_signal_interval":      "ONCHAIN_MIN_SIGNAL_INTERVAL",
	})

	return out
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def int) time.Duration {
	return time.Duration(envInt(key, def))
}
