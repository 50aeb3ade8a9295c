package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/thegirl-crawler/internal/api"
	"github.com/JakeFAU/thegirl-crawler/internal/clock/system"
	"github.com/JakeFAU/thegirl-crawler/internal/config"
	"github.com/JakeFAU/thegirl-crawler/internal/crawler"
	"github.com/JakeFAU/thegirl-crawler/internal/id/uuid"
	crawlpubsub "github.com/JakeFAU/thegirl-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/gcs"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/local"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/memory"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/postgres"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/sqlite"
)

// run wires the configured components, crawls once and releases everything.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("close record store failed", zap.Error(closeErr))
		}
	}()

	opts, cleanup, err := pipelineOptions(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	pipeline, err := crawler.NewPipeline(store, logger.Named("pipeline"), opts...)
	if err != nil {
		return err
	}
	spider, err := crawler.NewSpider(cfg.CrawlerConfig(), pipeline, uuid.New(), logger.Named("spider"))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	serverCtx, stopServer := context.WithCancel(ctx)
	if cfg.Metrics.Addr != "" {
		server := api.NewServer(store, spider, logger.Named("api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if serveErr := server.ListenAndServe(serverCtx, cfg.Metrics.Addr); serveErr != nil {
				logger.Error("http server error", zap.Error(serveErr))
			}
		}()
	}
	defer func() {
		stopServer()
		wg.Wait()
	}()

	stats, err := spider.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("Crawl interrupted", zap.Int64("stored", stats.Stored))
		return nil
	}
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	logger.Info("Record store updated",
		zap.String("driver", cfg.Store.Driver),
		zap.Int64("new_records", stats.Stored),
		zap.Int64("total_records", total),
	)
	return nil
}

// openStore builds the record store selected by store.driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (crawler.RecordStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.NewRecordStore(ctx, sqlite.Config{Path: cfg.Path, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return memory.NewRecordStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// pipelineOptions builds the archive, publisher and clock options. The
// returned cleanup is always safe to call.
func pipelineOptions(ctx context.Context, cfg config.Config) ([]crawler.PipelineOption, func(), error) {
	var (
		opts    []crawler.PipelineOption
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	loc, err := cfg.ArchiveLocation()
	if err != nil {
		return nil, cleanup, err
	}
	opts = append(opts, crawler.WithClock(system.New(loc)))

	switch cfg.Archive.Backend {
	case config.ArchiveLocal:
		archive, err := local.New(local.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, crawler.WithArchive(archive, cfg.Archive.Prefix))
	case config.ArchiveGCS:
		archive, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, archive.Close)
		opts = append(opts, crawler.WithArchive(archive, cfg.Archive.Prefix))
	}

	if cfg.PubSub.TopicName != "" {
		publisher, err := crawlpubsub.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, publisher.Close)
		opts = append(opts, crawler.WithPublisher(publisher, cfg.PubSub.TopicName))
	}
	return opts, cleanup, nil
}
