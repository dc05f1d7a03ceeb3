package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/analytics"
	"github.com/spendlens/spendlens/internal/app"
	"github.com/spendlens/spendlens/internal/ingest"
	"github.com/spendlens/spendlens/internal/masterdata/categories"
	"github.com/spendlens/spendlens/internal/masterdata/suppliers"
	"github.com/spendlens/spendlens/internal/observability"
	"github.com/spendlens/spendlens/internal/platform/cache"
	"github.com/spendlens/spendlens/internal/platform/db"
	"github.com/spendlens/spendlens/internal/tenancy"
	"github.com/spendlens/spendlens/internal/transactions"
	"github.com/spendlens/spendlens/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	var viewCache *analytics.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching and queueing degraded", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		viewCache = analytics.NewCache(redisClient, cfg.AnalyticsTTL)
	}

	tenants := tenancy.NewRepository(pool)
	supplierRepo := suppliers.NewRepository(pool)
	categoryRepo := categories.NewRepository(pool)

	engine := analytics.NewEngine(analytics.EngineConfig{
		TrendMonths:   cfg.TrendMonths,
		TailThreshold: cfg.TailThreshold,
		SavingsRate:   decimal.NewFromFloat(cfg.SavingsRate),
	})
	analyticsSvc := analytics.NewService(analytics.NewRepository(pool), engine, viewCache, logger)

	uploadRepo := ingest.NewRepository(pool)
	var bumper ingest.CacheBumper
	if viewCache != nil {
		bumper = viewCache
	}
	pipeline := ingest.NewPipeline(uploadRepo, ingest.NewDuplicateDetector(uploadRepo), logger, metrics, bumper, cfg.UploadMaxRows)

	var enqueuer ingest.TaskEnqueuer
	if redisClient != nil {
		queueClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		enqueuer = queueClient
	}
	ingestSvc := ingest.NewService(
		uploadRepo,
		pipeline,
		ingest.NewSupplierResolver(supplierRepo),
		ingest.NewCategoryResolver(categoryRepo),
		enqueuer,
		logger,
		ingest.ServiceConfig{
			SpoolDir: cfg.UploadSpoolDir,
			MaxBytes: cfg.UploadMaxBytes,
			MaxRows:  cfg.UploadMaxRows,
			DayFirst: cfg.IngestDayFirst,
			Timeout:  cfg.IngestTimeout,
		},
	)

	txSvc := transactions.NewService(transactions.NewRepository(pool), logger)

	router := app.NewRouter(app.RouterDeps{
		Logger:       logger,
		Config:       cfg,
		Metrics:      metrics,
		Tenants:      tenants,
		Orgs:         tenancy.NewHandler(logger, tenants),
		Suppliers:    suppliers.NewHandler(logger, suppliers.NewService(supplierRepo)),
		Categories:   categories.NewHandler(logger, categories.NewService(categoryRepo)),
		Uploads:      ingest.NewHandler(logger, ingestSvc),
		Transactions: transactions.NewHandler(logger, txSvc),
		Analytics:    analytics.NewHandler(logger, analyticsSvc),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.AppAddr, "env", cfg.AppEnv)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
