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

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/mise-erp/mise-erp/internal/app"
	"github.com/mise-erp/mise-erp/internal/masterdata"
	"github.com/mise-erp/mise-erp/internal/observability"
	"github.com/mise-erp/mise-erp/internal/platform/cache"
	"github.com/mise-erp/mise-erp/internal/platform/db"
	"github.com/mise-erp/mise-erp/internal/shared"
	"github.com/mise-erp/mise-erp/internal/stock"
	"github.com/mise-erp/mise-erp/jobs"
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
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)

	masterRepo := masterdata.NewRepository(pool)
	masterService := masterdata.NewService(masterRepo)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	var reportCache *stock.ReportCache
	if redisClient != nil {
		reportCache = stock.NewReportCache(redisClient, cfg.ReportCacheTTL)
	}

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, masterService, auditLogger, masterService, jobClient, reportCache)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockHandler:      stock.NewHandler(logger, stockService, validate, metrics),
		MasterDataHandler: masterdata.NewHandler(logger, masterService, validate),
		JobHandler:        jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger),
		Metrics:           metrics,
		Pool:              pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
	logger.Info("server stopped")
}
