package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/reflexcore/ingestcore/internal/archive"
	"github.com/reflexcore/ingestcore/internal/bridge"
	"github.com/reflexcore/ingestcore/internal/bus"
	"github.com/reflexcore/ingestcore/internal/config"
	"github.com/reflexcore/ingestcore/internal/health"
	"github.com/reflexcore/ingestcore/internal/ingestion"
	"github.com/reflexcore/ingestcore/internal/model"
	"github.com/reflexcore/ingestcore/internal/persist"
	"github.com/reflexcore/ingestcore/internal/registry"
	"github.com/reflexcore/ingestcore/internal/ringbuffer"
	"github.com/reflexcore/ingestcore/internal/wsclient"
)

// Bus topics.
const (
	topicTrades    = "bus:trades"
	topicQuotes    = "bus:quotes"
	topicCtlTicks  = "wsctl:ticks"
	topicCtlQuotes = "wsctl:quotes"
	topicEval      = "state:evaluator"
	topicOverride  = "state:override"
	topicChart     = "state:chart"
	topicHealthT   = "health:ingestion:trades"
	topicHealthQ   = "health:ingestion:quotes"
	topicHealthB   = "health:bridge"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("ingestcore starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	msgBus := bus.New(bus.DefaultHistoryCapacity)
	reg := registry.New()
	buffers := ringbuffer.NewSet(cfg.TradeBufferCapacity, cfg.QuoteBufferCapacity)

	// MongoDB: durable symbol state + the bridge's db source.
	store, err := persist.NewStore(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	stateSource := persist.NewStateSource(store)

	// Two WebSocket clients, one per upstream channel, sharing a reconnect
	// jitter seed derived from configuration.
	tradeClient := wsclient.New(wsclient.Options{
		Name:       "trades",
		URL:        cfg.FeedURL,
		APIKey:     cfg.FeedAPIKey,
		MaxBackoff: cfg.FeedMaxBackoff,
		Seed:       cfg.Seed,
	})
	quoteClient := wsclient.New(wsclient.Options{
		Name:       "quotes",
		URL:        cfg.FeedURL,
		APIKey:     cfg.FeedAPIKey,
		MaxBackoff: cfg.FeedMaxBackoff,
		Seed:       cfg.Seed,
	})

	// Wire bus fan-out: normalized trades land in the ring buffer, quotes
	// hydrate both the registry's microstructure snapshot and the buffer.
	msgBus.Subscribe(topicTrades, func(_ string, message any) {
		ev, ok := message.(model.TradeEvent)
		if !ok {
			return
		}
		buffers.AppendTrade(ev.Symbol, ev)
	})
	msgBus.Subscribe(topicQuotes, func(_ string, message any) {
		ev, ok := message.(model.QuoteEvent)
		if !ok {
			return
		}
		buffers.AppendQuote(ev.Symbol, ev)
		reg.Hydrate(ev.Symbol, ev)
	})

	tradeProcess := ingestion.New(ingestion.Config{
		Channel:       model.ChannelTrade,
		Client:        tradeClient,
		Bus:           msgBus,
		EventsTopic:   topicTrades,
		ControlTopic:  topicCtlTicks,
		HealthTopic:   topicHealthT,
		QueueCapacity: cfg.TradeQueueCapacity,
		Workers:       cfg.TradeWorkers,
	})
	quoteProcess := ingestion.New(ingestion.Config{
		Channel:       model.ChannelQuote,
		Client:        quoteClient,
		Bus:           msgBus,
		EventsTopic:   topicQuotes,
		ControlTopic:  topicCtlQuotes,
		HealthTopic:   topicHealthQ,
		QueueCapacity: cfg.QuoteQueueCapacity,
		Workers:       cfg.QuoteWorkers,
	})

	stateBridge := bridge.New(bridge.Config{
		Bus:              msgBus,
		DB:               stateSource,
		EvaluatorTopic:   topicEval,
		OverrideTopic:    topicOverride,
		ChartTopic:       topicChart,
		TicksTopic:       topicCtlTicks,
		QuotesTopic:      topicCtlQuotes,
		HealthTopic:      topicHealthB,
		ChartTTL:         cfg.ChartTTL,
		DebounceInterval: cfg.DebounceDelay,
	})

	tradeClient.Start(ctx)
	quoteClient.Start(ctx)
	tradeProcess.Start(ctx)
	quoteProcess.Start(ctx)

	if err := stateBridge.Start(ctx); err != nil {
		log.Fatalf("bridge bootstrap failed: %v", err)
	}
	log.Println("state bridge started")

	// Cold archival to S3 (opt-in: disabled when S3Bucket is unset).
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			log.Fatalf("aws config load failed: %v", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)
		archiver := archive.New(s3Client, buffers, cfg.S3Bucket, cfg.S3Prefix, cfg.ArchiveInterval)
		go archiver.Run(ctx)
	}

	// Minimal HTTP surface: liveness and the latest aggregated health
	// snapshot from each component.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"symbols": reg.Len(),
			"ingestion": map[string]any{
				"trades": health.Latest(msgBus, topicHealthT),
				"quotes": health.Latest(msgBus, topicHealthQ),
			},
			"bridge": health.Latest(msgBus, topicHealthB),
		})
	})

	addr := ":8090"
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("health endpoint listening on http://%s/health", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("ingestcore stopped")
}
