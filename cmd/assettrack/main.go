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

	"github.com/assettrack/assettrack/internal/app"
	"github.com/assettrack/assettrack/internal/audit"
	audithttp "github.com/assettrack/assettrack/internal/audit/http"
	"github.com/assettrack/assettrack/internal/auth"
	"github.com/assettrack/assettrack/internal/devices"
	"github.com/assettrack/assettrack/internal/issuance"
	"github.com/assettrack/assettrack/internal/observability"
	"github.com/assettrack/assettrack/internal/platform/cache"
	"github.com/assettrack/assettrack/internal/platform/db"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/users"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Without redis each process keeps its own snapshot and relies on the TTL.
	var permissionCache *rbac.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache is process-local", slog.Any("error", err))
	} else if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		permissionCache = rbac.NewCache(redisClient, cfg.PermissionCacheTTL)
	}

	metrics := observability.NewMetrics()

	auditService := audit.NewService(audit.NewRepository(dbpool), logger, metrics, cfg.AuditListLimit)

	rbacRepo := rbac.NewRepository(dbpool)
	resolver := rbac.NewResolver(rbacRepo, rbac.ResolverConfig{
		Policy:   cfg.Policy,
		Fallback: cfg.Fallback,
		TTL:      cfg.PermissionCacheTTL,
		Cache:    permissionCache,
		Logger:   logger,
		Observer: metrics,
	})
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}
	rbacService := rbac.NewService(rbacRepo, resolver, auditService, logger)

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("token signer", slog.Any("error", err))
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, resolver, auditService, logger)
	authService := auth.NewService(usersRepo, tokens, resolver, auditService, logger)

	devicesService := devices.NewService(devices.NewRepository(dbpool), auditService, logger)
	issuanceService := issuance.NewService(issuance.NewRepository(dbpool), resolver, auditService, metrics, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Authenticator:   auth.NewAuthenticator(tokens, usersRepo, logger),
		RBACMiddleware:  rbacMiddleware,
		AuthHandler:     auth.NewHandler(logger, authService),
		UsersHandler:    users.NewHandler(logger, usersService, rbacMiddleware),
		DevicesHandler:  devices.NewHandler(logger, devicesService, rbacMiddleware),
		IssuanceHandler: issuance.NewHandler(logger, issuanceService, rbacMiddleware),
		RolesHandler:    rbac.NewHandler(logger, rbacService, rbacMiddleware),
		AuditHandler:    audithttp.NewHandler(logger, auditService, rbacMiddleware),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("policy", string(cfg.Policy)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
