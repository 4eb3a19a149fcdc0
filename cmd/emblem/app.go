package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	redisv9 "github.com/redis/go-redis/v9"

	"emblem_backend/internal/app/di"
	"emblem_backend/internal/feature/emblem/adapters/scrape"
	"emblem_backend/internal/feature/emblem/adapters/store"
	"emblem_backend/internal/feature/emblem/usecase"
	"emblem_backend/internal/platform/cache"
	platformdb "emblem_backend/internal/platform/db"
	platformredis "emblem_backend/internal/platform/redis"
)

// app holds the components shared by the detection commands.
type app struct {
	cfg       di.Config
	detector  di.DetectorCloser
	labels    *usecase.LabelResolver
	info      usecase.InfoService
	annotator usecase.Annotator
	recorder  usecase.ReportRecorder
	fetcher   *scrape.Client
	rdb       *redisv9.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg := di.LoadConfig()
	a := &app{cfg: cfg, fetcher: scrape.NewClient(nil)}

	if rc := platformredis.LoadConfig(); rc.Enabled() {
		rdb, err := platformredis.NewRedisClient(ctx, rc)
		if err != nil {
			slog.Warn("Redis unavailable. Running without cache.")
		} else {
			a.rdb = rdb
		}
	}

	var err error
	if a.detector, err = di.NewDetector(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.labels, err = di.NewLabelResolver(cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.info, err = di.NewInfoService(ctx, cfg, a.rdb); err != nil {
		a.Close()
		return nil, err
	}
	annotator, err := di.NewAnnotator(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.annotator = annotator

	if os.Getenv("RECORD_SESSIONS") == "true" {
		db, err := platformdb.OpenDB(platformdb.LoadConfigFromEnv(), store.Models()...)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.recorder = store.NewReportRepository(db)
	}
	return a, nil
}

func (a *app) pipeline(forecast bool) *usecase.Pipeline {
	opts := []usecase.PipelineOption{usecase.WithMinConfidence(a.cfg.MinConfidence)}
	if a.recorder != nil {
		opts = append(opts, usecase.WithRecorder(a.recorder))
	}
	return usecase.NewPipeline(
		a.detector,
		a.labels,
		di.NewEnrichmentResolver(a.info, a.cfg, forecast),
		a.annotator,
		opts...,
	)
}

func (a *app) Close() {
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			slog.Warn("failed to close detector", "error", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			slog.Warn("failed to close Redis client", "error", err)
		}
	}
}

// newCache connects to Redis for cache maintenance commands.
func newCache(ctx context.Context) (*cache.CachingInfoService, func(), error) {
	rc := platformredis.LoadConfig()
	if !rc.Enabled() {
		return nil, nil, errors.New("REDIS_HOST is not set")
	}
	rdb, err := platformredis.NewRedisClient(ctx, rc)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("failed to close Redis client", "error", err)
		}
	}
	return cache.NewCachingInfoService(rdb, 0, nil, "enrich"), closeFn, nil
}
