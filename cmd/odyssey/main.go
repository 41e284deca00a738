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

	"github.com/odyssey-erp/odyssey-quotes/internal/app"
	"github.com/odyssey-erp/odyssey-quotes/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-quotes/internal/audit/http"
	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/permcache"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/roles"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	"github.com/odyssey-erp/odyssey-quotes/internal/snapshots"
	"github.com/odyssey-erp/odyssey-quotes/internal/users"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
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

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, false)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	var cacheStore permcache.Store
	switch cfg.PermissionCacheBackend {
	case app.CacheBackendMemory:
		cacheStore = permcache.NewMemoryStore()
	default:
		cacheStore = permcache.NewRedisStore(redisClient)
	}
	if !cfg.SharedPermissionCache() {
		logger.Warn("memory permission cache is per process; run a single API instance")
	}
	permCache := permcache.New(cacheStore, permcache.WithObserver(metrics), permcache.WithLogger(logger))
	if _, err := permCache.Watch(ctx, func(resource string) {
		metrics.PermissionCacheChanged()
		logger.Debug("permission cache changed", slog.String("resource", resource))
	}); err != nil {
		logger.Warn("permission cache watch", slog.Any("error", err))
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), permCache, jobClient, logger)
	rbacMiddleware := rbac.NewMiddleware(rbacService, logger)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), rbacService, tokens)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, auditLogger)

	rolesService := roles.NewService(roles.NewRepository(dbpool), rbacService, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool), rbacService, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	proposalCache := snapshots.NewCache(redisClient, cfg.PublicCacheTTL)
	if err := proposalCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("proposal cache bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("proposal cache listen", slog.Any("error", err))
	}
	snapshotService := snapshots.NewService(snapshots.NewRepository(dbpool), proposalCache, auditLogger, metrics, logger)
	snapshotHandler := snapshots.NewHandler(logger, snapshotService, rbacMiddleware)
	publicHandler := snapshots.NewPublicHandler(logger, snapshotService)

	quotationService := quotations.NewService(quotations.Deps{
		Repo:         quotations.NewRepository(dbpool),
		Snapshots:    snapshotService,
		Idempotency:  idempotencyStore,
		Approvals:    approvalRecorder,
		Audit:        auditLogger,
		Logger:       logger,
		ValidityDays: cfg.QuoteValidityDays,
	})
	quotationHandler := quotations.NewHandler(logger, quotationService, rbacMiddleware)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, audit.NewExporter(time.UTC), rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Authenticator:      auth.Authenticator(authService, logger),
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		SnapshotsHandler:   snapshotHandler,
		PublicHandler:      publicHandler,
		QuotationsHandler:  quotationHandler,
		AuditHandler:       auditHandler,
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
