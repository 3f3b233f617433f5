// Command tgparser runs the directory parsing service: an HTTP API that
// accepts scraping tasks and drives them through headless browsing,
// extraction, and export.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/api"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/clock/system"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/config"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/extract"
	idgen "github.com/korostylevkirill70-stack/tgstat-parser/internal/id/uuid"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/logging"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/progress"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/progress/sinks"
	pubmemory "github.com/korostylevkirill70-stack/tgstat-parser/internal/publisher/memory"
	pubgcp "github.com/korostylevkirill70-stack/tgstat-parser/internal/publisher/pubsub"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/runner"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/session"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/storage/gcs"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/storage/local"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/storage/memory"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/storage/postgres"
)

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env vars apply regardless)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	archiver, archiveClose, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("archiver: %w", err)
	}
	defer archiveClose()

	publisher, publisherClose, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	defer publisherClose()

	var hub *progress.Hub
	var emitter progress.Emitter
	if cfg.Progress.Enabled {
		promSink, err := sinks.NewPrometheusSink(registry)
		if err != nil {
			return fmt.Errorf("prometheus sink: %w", err)
		}
		sinkList := []progress.Sink{promSink}
		if cfg.Progress.LogEnabled {
			sinkList = append(sinkList, sinks.NewLogSink(logger.Named("progress")))
		}
		hub = progress.NewHub(progress.Config{
			BufferSize:  cfg.Progress.BufferSize,
			BaseContext: context.Background(),
			Logger:      logger,
		}, sinkList...)
		emitter = hub
	}

	taskStore := memory.NewTaskStore()
	taskRunner := runner.New(
		runner.Config{
			BaseURL:         cfg.Scraper.BaseURL,
			PageGap:         waitRange(cfg.Scraper.Delays.PageGapMinSec, cfg.Scraper.Delays.PageGapMaxSec),
			ListingGap:      waitRange(cfg.Scraper.Delays.ListingGapMinSec, cfg.Scraper.Delays.ListingGapMaxSec),
			CompletionTopic: cfg.PubSub.TopicName,
		},
		taskStore,
		buildLauncher(cfg, blobStore, logger),
		extract.New(logger.Named("extract")),
		system.New(),
		runner.Options{
			Emitter:   emitter,
			Archiver:  archiver,
			Exports:   blobStore,
			Publisher: publisher,
		},
		logger.Named("runner"),
	)

	server := api.New(
		api.Config{
			MaxPagesDefault: cfg.Scraper.MaxPagesDefault,
			BaseContext:     context.Background(),
		},
		taskStore,
		taskRunner,
		idgen.New(),
		system.New(),
		registry,
		logger.Named("api"),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", zap.Error(err))
	}
	if hub != nil {
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("progress hub close incomplete", zap.Error(err))
		}
	}
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (scrape.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewBlobStore(), nil
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.Bucket})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.Archiver, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Info("no database configured, completed tasks are not archived")
		return nil, func() {}, nil
	}
	store, err := postgres.NewArchiveStore(ctx, postgres.ArchiveStoreConfig{
		DSN:             cfg.Database.DSN,
		Table:           cfg.Database.ArchiveTable,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("no pubsub configured, completion events stay in memory")
		return pubmemory.New(), func() {}, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	closeFn := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return pubgcp.New(topic), closeFn, nil
}

func buildLauncher(cfg config.Config, screenshots scrape.BlobStore, logger *zap.Logger) scrape.SessionLauncher {
	if !cfg.Headless.Enabled {
		logger.Warn("headless browsing disabled, all tasks run in degraded mode")
		return session.DegradedLauncher{}
	}
	sessionCfg := session.Config{
		UserAgent:         cfg.Scraper.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		FirstLoadWait:     waitRange(cfg.Scraper.Delays.FirstLoadMinSec, cfg.Scraper.Delays.FirstLoadMaxSec),
		PageLoadWait:      waitRange(cfg.Scraper.Delays.PageLoadMinSec, cfg.Scraper.Delays.PageLoadMaxSec),
	}
	if cfg.Headless.Screenshots {
		sessionCfg.Screenshots = screenshots
	}
	return session.NewLauncher(sessionCfg, logger.Named("session"))
}

func waitRange(minSec, maxSec int) session.WaitRange {
	return session.WaitRange{
		Min: time.Duration(minSec) * time.Second,
		Max: time.Duration(maxSec) * time.Second,
	}
}
