package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mise-erp/mise-erp/internal/app"
	"github.com/mise-erp/mise-erp/internal/masterdata"
	"github.com/mise-erp/mise-erp/internal/platform/db"
	"github.com/mise-erp/mise-erp/internal/stock"
	"github.com/mise-erp/mise-erp/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	masterService := masterdata.NewService(masterdata.NewRepository(pool))
	stockRepo := stock.NewRepository(pool)
	// Workers read reports straight from the database, no cache, no notifier.
	stockService := stock.NewService(stockRepo, masterService, nil, nil, nil, nil)
	scanner := jobs.NewExpiryScanner(logger, stockService)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeExpiryScan, Handler: scanner.HandleExpiryScan},
			{Type: jobs.TaskTypeCostChanged, Handler: jobs.HandleCostChangedTask(logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpiryScanCron, Task: jobs.NewExpiryScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
