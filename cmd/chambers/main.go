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
	"golang.org/x/sync/errgroup"

	"github.com/chambers-pm/chambers/internal/app"
	"github.com/chambers-pm/chambers/internal/audit"
	audithttp "github.com/chambers-pm/chambers/internal/audit/http"
	"github.com/chambers-pm/chambers/internal/auth"
	"github.com/chambers-pm/chambers/internal/identity"
	"github.com/chambers-pm/chambers/internal/matters"
	"github.com/chambers-pm/chambers/internal/observability"
	"github.com/chambers-pm/chambers/internal/platform/cache"
	"github.com/chambers-pm/chambers/internal/platform/db"
	"github.com/chambers-pm/chambers/internal/rbac"
	"github.com/chambers-pm/chambers/internal/shared"
	"github.com/chambers-pm/chambers/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
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
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditor := shared.NewAuditLogger(pool)

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo, auditor, logger)
	policies := rbac.NewPolicyStore(rbacRepo, logger, metrics)

	accounts := identity.NewRepository(pool)
	resolver := auth.NewResolver(sessionManager, accounts, logger)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Policies: policies, Logger: logger, Metrics: metrics}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewRepository(pool), accounts, auditor, logger)
	authHandler := auth.NewHandler(auth.HandlerOptions{
		Logger:     logger,
		Service:    authService,
		Sessions:   sessionManager,
		CSRF:       csrfManager,
		Policies:   policies,
		RBAC:       rbacMiddleware,
		Metrics:    metrics,
		LoginLimit: cfg.LoginRateLimit,
	})
	identityService := identity.NewService(accounts, sessionManager, auditor, logger)
	matterService := matters.NewService(matters.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		RBACHandler:    rbac.NewHandler(logger, rbacService, policies, jobClient, rbacMiddleware),
		UsersHandler:   identity.NewHandler(logger, identityService, rbacMiddleware),
		MattersHandler: matters.NewHandler(logger, matterService, rbacMiddleware),
		AuditHandler:   audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		AccessLog:      !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
