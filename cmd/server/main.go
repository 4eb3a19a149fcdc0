package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"

	"emblem_backend/internal/app/di"
	"emblem_backend/internal/app/router"
	"emblem_backend/internal/feature/emblem/adapters/scrape"
	"emblem_backend/internal/feature/emblem/adapters/store"
	emblemhandler "emblem_backend/internal/feature/emblem/transport/handler"
	"emblem_backend/internal/feature/emblem/usecase"
	infradb "emblem_backend/internal/platform/db"
	platformhandler "emblem_backend/internal/platform/http/handler"
	infraredis "emblem_backend/internal/platform/redis"
	jwtmw "emblem_backend/internal/platform/jwt"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] failed to load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]platformhandler.Check{}

	// db
	db, err := infradb.OpenDB(infradb.LoadConfigFromEnv(), store.Models()...)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		checks["db"] = sqlDB.PingContext
		defer func() {
			if err := sqlDB.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}()
	}

	// Redis
	var rdb *redisv9.Client
	if rc := infraredis.LoadConfig(); rc.Enabled() {
		if tmp, err := infraredis.NewRedisClient(ctx, rc); err != nil {
			slog.Warn("Redis unavailable. Running without cache.")
		} else {
			rdb = tmp
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			defer func() {
				if err := rdb.Close(); err != nil {
					slog.Error("failed to close Redis client", "error", err)
				}
			}()
		}
	}

	cfg := di.LoadConfig()

	// Adapters
	detector, err := di.NewDetector(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			slog.Error("failed to close detector", "error", err)
		}
	}()
	labels, err := di.NewLabelResolver(cfg)
	if err != nil {
		log.Fatalf("failed to load label table: %v", err)
	}
	annotator, err := di.NewAnnotator(cfg)
	if err != nil {
		log.Fatalf("failed to create annotator: %v", err)
	}
	info, err := di.NewInfoService(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("failed to create info service: %v", err)
	}
	reports := store.NewReportRepository(db)

	// Usecase
	pipelineOpts := []usecase.PipelineOption{
		usecase.WithRecorder(reports),
		usecase.WithMinConfidence(cfg.MinConfidence),
	}
	detectUC := usecase.NewPipeline(detector, labels, di.NewEnrichmentResolver(info, cfg, true), annotator, pipelineOpts...)
	scrapeUC := usecase.NewPipeline(detector, labels, di.NewEnrichmentResolver(info, cfg, false), annotator, pipelineOpts...)
	sessionUC := usecase.NewSessionUsecase(reports)

	// Handler
	emblemH := emblemhandler.NewEmblemHandler(detectUC, scrapeUC, scrape.NewClient(nil), sessionUC)

	// JWT_SECRETチェック（開発中の注意喚起）
	secret := os.Getenv(jwtmw.EnvKeyJWTSecret)
	if secret == "" {
		slog.Warn("JWT_SECRET is not set. /v1 is served without authentication.")
	}

	// ルータ生成
	r := router.NewRouter(emblemH, router.Options{
		JWTSecret:   secret,
		ReadyChecks: checks,
		CORSOrigins: router.ParseOrigins(os.Getenv("CORS_ORIGINS")),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
