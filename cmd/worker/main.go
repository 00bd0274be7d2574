package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-retail/meridian-erp/internal/app"
	jobmetrics "github.com/meridian-retail/meridian-erp/internal/jobs"
	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/platform/cache"
	"github.com/meridian-retail/meridian-erp/internal/platform/db"
	"github.com/meridian-retail/meridian-erp/internal/reconcile"
	"github.com/meridian-retail/meridian-erp/internal/shared"
	"github.com/meridian-retail/meridian-erp/internal/stock"
	"github.com/meridian-retail/meridian-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect database", slog.Any("error", err))
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore)

	stockRepo := stock.NewRepository(pool)
	summaryCache := reconcile.NewCache(redisClient, cfg.SummaryCacheTTL)
	reconcileService := reconcile.NewService(ledgerService, stockRepo, summaryCache, cfg.VarianceTolerance)

	metrics := jobmetrics.NewMetrics(nil)
	syncJob := jobs.NewStockSyncJob(ledgerService, logger, metrics)
	warmupJob := jobs.NewSummaryWarmupJob(reconcileService, cfg.WarmupAgencies, logger, metrics)

	warmupTask, err := jobs.NewReconcileWarmupTask(jobs.ReconcileWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockSync, Handler: syncJob.Handle},
			{Type: jobs.TaskReconcileWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
