package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/app"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/dashboard"
	"github.com/wardenhq/warden/internal/observability"
	"github.com/wardenhq/warden/internal/platform/cache"
	"github.com/wardenhq/warden/internal/platform/db"
	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/roles"
	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/internal/view"
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

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "warden_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	rbacCache := rbac.NewCache(redisClient, cfg.RBACCacheTTL)
	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, rbacCache, logger)

	provisioner := rbac.NewProvisioner(dbpool, rbacService, logger)
	if err := provisioner.Run(ctx); err != nil {
		logger.Error("provision rbac", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, rbacService)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, metrics)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, rbacService, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacService, templates, csrfManager)

	rolesHandler := roles.NewHandler(logger, rbacService, templates, csrfManager)
	dashboardHandler := dashboard.NewHandler(logger, usersService, rbacService, templates, csrfManager)

	rbacMiddleware := rbac.Middleware{
		Resolver:   authService,
		Authorizer: rbacService,
		Sessions:   sessionManager,
		Logger:     logger,
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		UsersHandler:     usersHandler,
		RolesHandler:     rolesHandler,
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
		DB:               dbpool,
		Redis:            redisClient,
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
