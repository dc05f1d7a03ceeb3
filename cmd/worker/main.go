package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/spendlens/spendlens/internal/analytics"
	"github.com/spendlens/spendlens/internal/app"
	"github.com/spendlens/spendlens/internal/ingest"
	jobmetrics "github.com/spendlens/spendlens/internal/jobs"
	"github.com/spendlens/spendlens/internal/masterdata/categories"
	"github.com/spendlens/spendlens/internal/masterdata/suppliers"
	"github.com/spendlens/spendlens/internal/observability"
	"github.com/spendlens/spendlens/internal/platform/cache"
	"github.com/spendlens/spendlens/internal/platform/db"
	"github.com/spendlens/spendlens/internal/tenancy"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	viewCache := analytics.NewCache(redisClient, cfg.AnalyticsTTL)

	tenants := tenancy.NewRepository(pool)
	engine := analytics.NewEngine(analytics.EngineConfig{
		TrendMonths:   cfg.TrendMonths,
		TailThreshold: cfg.TailThreshold,
		SavingsRate:   decimal.NewFromFloat(cfg.SavingsRate),
	})
	analyticsSvc := analytics.NewService(analytics.NewRepository(pool), engine, viewCache, logger)

	uploadRepo := ingest.NewRepository(pool)
	pipeline := ingest.NewPipeline(uploadRepo, ingest.NewDuplicateDetector(uploadRepo), logger, metrics, viewCache, cfg.UploadMaxRows)
	ingestSvc := ingest.NewService(
		uploadRepo,
		pipeline,
		ingest.NewSupplierResolver(suppliers.NewRepository(pool)),
		ingest.NewCategoryResolver(categories.NewRepository(pool)),
		nil, // the worker consumes tasks, it never enqueues uploads
		logger,
		ingest.ServiceConfig{
			SpoolDir: cfg.UploadSpoolDir,
			MaxBytes: cfg.UploadMaxBytes,
			MaxRows:  cfg.UploadMaxRows,
			DayFirst: cfg.IngestDayFirst,
			Timeout:  cfg.IngestTimeout,
		},
	)

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	uploadJob := jobs.NewIngestUploadJob(ingestSvc, logger, jobMetrics, cfg.IngestTimeout)
	warmupJob := jobs.NewAnalyticsWarmupJob(analyticsSvc, tenants, logger, jobMetrics)

	nightlyWarmup, err := jobs.NewAnalyticsWarmupTask(jobs.AnalyticsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIngestUpload, Handler: uploadJob.Handle},
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: nightlyWarmup},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", "redis", cfg.RedisAddr)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
