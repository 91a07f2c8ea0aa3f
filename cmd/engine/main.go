package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/alert"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/config"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/feed"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline/aggregator"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline/normalizer"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/store/mongo"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/store/postgres"
	redisstore "github.com/AdekunleBamz/Monascribe-sub000/internal/store/redis"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/syncer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting smart-money engine",
		"source", cfg.Feed.SourceID,
		"feed_url_set", cfg.Feed.URL != "",
		"redis_dedup", cfg.Redis.URL != "",
		"shards", cfg.Engine.Shards,
		"sync_interval", cfg.Sync.Interval,
	)

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docStore, err := mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := docStore.Close(closeCtx); err != nil {
			logger.Warn("document store close error", "error", err)
		}
	}()
	logger.Info("connected to document store", "database", cfg.Mongo.Database)

	walletRepo := postgres.NewWalletRepo(db)
	checkpointRepo := postgres.NewCheckpointRepo(db)
	writer := postgres.NewBatchWriter(db, walletRepo, checkpointRepo)

	alerter := buildAlerter(cfg, logger)
	outbox := syncer.NewOutbox()

	var aggOpts []aggregator.Option
	if cfg.Redis.URL != "" {
		dedup, err := redisstore.NewDedup(cfg.Redis.URL, cfg.Redis.DedupTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer dedup.Close()
		aggOpts = append(aggOpts, aggregator.WithDedupStore(dedup))
		logger.Info("redis dedup enabled", "ttl", cfg.Redis.DedupTTL)
	}

	agg := aggregator.New(
		writer, outbox, cfg.Thresholds,
		cfg.Engine.Shards, cfg.Engine.DedupWindowSize,
		logger, aggOpts...,
	)

	// Warm start: reload every aggregate so counters keep growing from the
	// durable values instead of restarting at zero.
	states, err := walletRepo.All(ctx)
	if err != nil {
		logger.Error("failed to load wallet state", "error", err)
		os.Exit(1)
	}
	agg.Warm(states)

	syncService := syncer.New(
		agg, docStore, checkpointRepo, outbox,
		cfg.Thresholds, cfg.Feed.SourceID,
		cfg.Sync.Interval, cfg.Sync.ReconcileInterval,
		logger,
		syncer.WithAlerter(alerter),
	)

	rawCh := make(chan event.RawBatch, cfg.Engine.ChannelBufferSize)
	canonicalCh := make(chan event.CanonicalBatch, cfg.Engine.ChannelBufferSize)

	var poller pipeline.Runner
	if cfg.Feed.URL != "" {
		client := feed.NewClient(cfg.Feed.URL, logger)
		poller = feed.NewPoller(
			client, checkpointRepo, rawCh,
			cfg.Feed.SourceID, cfg.Feed.PollInterval, cfg.Feed.BlockRange,
			cfg.Feed.RateLimitRPS, logger,
		)
	}

	engine := pipeline.NewEngine(
		poller,
		normalizer.New(rawCh, canonicalCh, cfg.Engine.NormalizerWorkers, logger),
		agg, syncService, canonicalCh,
		pipeline.NewHealth(cfg.Feed.SourceID),
		alerter, logger,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, engine.Health(), logger)
	})
	g.Go(func() error {
		return engine.Run(gCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("engine shut down gracefully")
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	channels := []alert.Alerter{alert.NewLogAlerter(logger)}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func healthzHandler(health *pipeline.Health, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := health.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap.Status == string(pipeline.HealthStatusUnhealthy) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	}
}

func runHealthServer(ctx context.Context, port int, health *pipeline.Health, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler(health, logger))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
