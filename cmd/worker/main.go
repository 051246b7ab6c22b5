package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/chambers-pm/chambers/internal/app"
	"github.com/chambers-pm/chambers/internal/auth"
	"github.com/chambers-pm/chambers/internal/identity"
	"github.com/chambers-pm/chambers/internal/observability"
	"github.com/chambers-pm/chambers/internal/platform/db"
	"github.com/chambers-pm/chambers/internal/rbac"
	"github.com/chambers-pm/chambers/internal/shared"
	"github.com/chambers-pm/chambers/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	auditor := shared.NewAuditLogger(pool)
	rbacService := rbac.NewService(rbac.NewRepository(pool), auditor, logger)
	authService := auth.NewService(auth.NewRepository(pool), identity.NewRepository(pool), auditor, logger)

	syncTask, err := jobs.NewSuperadminSyncTask("cron")
	if err != nil {
		logger.Error("build superadmin sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSuperadminSync, Handler: jobs.SuperadminSyncHandler(rbacService, logger, metrics)},
			{Type: jobs.TaskSessionPurge, Handler: jobs.SessionPurgeHandler(authService, nil, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RBACSyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.SessionPurgeCron, Task: jobs.NewSessionPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
