package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all ingestcore process configuration.
type Config struct {
	// Upstream feed
	FeedAPIKey     string
	FeedURL        string
	FeedMaxBackoff time.Duration

	// Persistence
	MongoURI string

	// Ring buffers
	TradeBufferCapacity int
	QuoteBufferCapacity int

	// Ingestion
	TradeQueueCapacity int
	QuoteQueueCapacity int
	TradeWorkers       int
	QuoteWorkers       int

	// State bridge
	ChartTTL      time.Duration
	DebounceDelay time.Duration

	// S3 cold-storage archiver (opt-in: only active when S3Bucket is set)
	S3Bucket        string
	S3Region        string
	S3Prefix        string
	ArchiveInterval time.Duration

	Seed int64
}

// Load parses flags (falling back to environment variables, falling back
// to defaults) into a Config.
func Load() *Config {
	c := &Config{}

	flag.StringVar(&c.FeedAPIKey, "feed-api-key", envStr("FEED_API_KEY", ""), "Upstream feed API key")
	flag.StringVar(&c.FeedURL, "feed-url", envStr("FEED_URL", "wss://socket.polygon.io/stocks"), "Upstream feed WebSocket URL")
	flag.DurationVar(&c.FeedMaxBackoff, "feed-max-backoff", envDuration("FEED_MAX_BACKOFF", 60*time.Second), "Max reconnect backoff")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/ingestcore"), "MongoDB connection URI")

	flag.IntVar(&c.TradeBufferCapacity, "trade-buffer-capacity", envInt("TRADE_BUFFER_CAPACITY", 200_000), "Trade ring buffer capacity per symbol")
	flag.IntVar(&c.QuoteBufferCapacity, "quote-buffer-capacity", envInt("QUOTE_BUFFER_CAPACITY", 300_000), "Quote ring buffer capacity per symbol")

	flag.IntVar(&c.TradeQueueCapacity, "trade-queue-capacity", envInt("TRADE_QUEUE_CAPACITY", 300_000), "Trade ingestion work queue capacity")
	flag.IntVar(&c.QuoteQueueCapacity, "quote-queue-capacity", envInt("QUOTE_QUEUE_CAPACITY", 300_000), "Quote ingestion work queue capacity")
	flag.IntVar(&c.TradeWorkers, "trade-workers", envInt("TRADE_WORKERS", 2), "Trade normalization worker count")
	flag.IntVar(&c.QuoteWorkers, "quote-workers", envInt("QUOTE_WORKERS", 2), "Quote normalization worker count")

	flag.DurationVar(&c.ChartTTL, "chart-ttl", envDuration("CHART_TTL", 45*time.Second), "Chart source assertion TTL")
	flag.DurationVar(&c.DebounceDelay, "debounce-delay", envDuration("DEBOUNCE_DELAY", 150*time.Millisecond), "Bridge push debounce interval")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for cold archival (empty = disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "ingestcore"), "S3 key prefix for archived events")
	flag.DurationVar(&c.ArchiveInterval, "archive-interval", envDuration("ARCHIVE_INTERVAL", 6*time.Hour), "Interval between archive drains")

	flag.Int64Var(&c.Seed, "seed", envInt64("RNG_SEED", 0), "Reconnect-jitter PRNG seed (0 = random)")

	flag.Parse()

	return c
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

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
