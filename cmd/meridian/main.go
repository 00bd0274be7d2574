package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-retail/meridian-erp/internal/adjustments"
	"github.com/meridian-retail/meridian-erp/internal/app"
	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/observability"
	"github.com/meridian-retail/meridian-erp/internal/platform/cache"
	"github.com/meridian-retail/meridian-erp/internal/platform/db"
	"github.com/meridian-retail/meridian-erp/internal/reconcile"
	"github.com/meridian-retail/meridian-erp/internal/shared"
	"github.com/meridian-retail/meridian-erp/internal/stock"
	"github.com/meridian-retail/meridian-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	auditLogger := shared.NewAuditLogger(pool)
	reviewRecorder := shared.NewReviewRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore)
	ledgerHandler := ledger.NewHandler(logger, ledgerService).WithMetrics(metrics)

	stockRepo := stock.NewRepository(pool)

	adjustmentsRepo := adjustments.NewRepository(pool)
	adjustmentsService := adjustments.NewService(adjustmentsRepo, stockRepo, auditLogger, reviewRecorder)
	adjustmentsHandler := adjustments.NewHandler(logger, adjustmentsService).WithMetrics(metrics)

	summaryCache := reconcile.NewCache(redisClient, cfg.SummaryCacheTTL)
	if err := summaryCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	reconcileService := reconcile.NewService(ledgerService, stockRepo, summaryCache, cfg.VarianceTolerance)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		AdjustmentsHandler: adjustmentsHandler,
		ReconcileHandler:   reconcileHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
