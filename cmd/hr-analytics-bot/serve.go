package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/VenGr0/hr-analytics-bot/internal/auth"
	"github.com/VenGr0/hr-analytics-bot/internal/cache"
	"github.com/VenGr0/hr-analytics-bot/internal/config"
	"github.com/VenGr0/hr-analytics-bot/internal/database"
	"github.com/VenGr0/hr-analytics-bot/internal/dataset"
	"github.com/VenGr0/hr-analytics-bot/internal/history"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
	"github.com/VenGr0/hr-analytics-bot/internal/processor"
	"github.com/VenGr0/hr-analytics-bot/internal/session"
	"github.com/VenGr0/hr-analytics-bot/internal/web"
)

const (
	shutdownTimeout = 15 * time.Second
	cleanupInterval = time.Hour
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and web form",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.GinMode)
	logger := newLogger(cfg, "main")
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitTracing(serviceName, cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	healthChecker := observability.NewHealthChecker(serviceName, version)

	registry := dataset.NewRegistry(cfg.Dataset.DataDir, logger.Named("dataset"))
	defer func() { _ = registry.Close() }()
	healthChecker.Register("datasets", observability.DatasetHealthCheck(registry.Count))

	var (
		responseCache *cache.Cache
		sessions      *session.Manager
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		responseCache = cache.New(rdb, cfg.Query.CacheTTL)
		sessions = session.NewManager(rdb, cfg.Auth.SessionExpiry)
		healthChecker.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	store, err := openHistory(ctx, cfg, logger, healthChecker)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	healthChecker.Register("memory", observability.MemoryHealthCheck(
		observability.RuntimeMemoryUsage(uint64(cfg.Server.MemoryLimitMB)<<20)))

	authManager, err := auth.NewAuthManager(auth.AuthConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTExpiry:      cfg.Auth.JWTExpiry,
		SessionExpiry:  cfg.Auth.SessionExpiry,
		RateLimit:      cfg.Auth.RateLimit,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		Users:          cfg.Auth.Users,
	}, sessions)
	if err != nil {
		return err
	}
	authManager.SetLogger(logger.Named("auth"))
	defer authManager.Close()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := authManager.CleanupExpired(); n > 0 {
					logger.Info(ctx, "Removed expired API keys", map[string]interface{}{"count": n})
				}
			}
		}
	}()

	qp := processor.NewQueryProcessor(registry, responseCache, store, processor.ProcessorConfig{
		MaxResultRows:      cfg.Query.MaxResultRows,
		MaxQuestionLength:  cfg.Query.MaxQuestionLength,
		Timeout:            cfg.Query.Timeout,
		DefaultDataset:     cfg.Dataset.DefaultHandle,
		EnableSafetyChecks: cfg.Query.EnableSafetyChecks,
	})
	qp.SetLogger(logger.Named("processor"))
	qp.SetHealthChecker(healthChecker)

	router := qp.SetupRoutes(processor.RouteConfig{
		Datasets:       registry,
		Auth:           authManager,
		AuthRoutes:     auth.NewAuthHandlers(authManager).SetupRoutes,
		IndexHTML:      web.IndexHTML(),
		MaxUploadBytes: int64(cfg.Dataset.MaxUploadMB) << 20,
		HistoryLimit:   cfg.History.ListLimit,
		Logger:         logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HR analytics bot starting", map[string]interface{}{
			"port":            cfg.Server.Port,
			"version":         version,
			"data_dir":        cfg.Dataset.DataDir,
			"redis_enabled":   cfg.Redis.Enabled,
			"history_enabled": cfg.History.Enabled,
			"allow_anonymous": cfg.Auth.AllowAnonymous,
		})
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error(ctx, "Server failed", err, nil)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openHistory connects the Postgres history store, waiting for the database to
// accept connections, applies pending migrations and wraps it in a circuit breaker. History is optional.
func openHistory(ctx context.Context, cfg *config.Config, logger *observability.Logger, hc *observability.HealthChecker) (history.Store, error) {
	if !cfg.History.Enabled {
		return history.NoopStore{}, nil
	}

	pg, err := history.Connect(ctx, cfg.Database.DSN(), history.DefaultRetryConfig)
	if err != nil {
		return nil, err
	}

	if err := database.RunMigrations(database.MigrationConfig{
		DatabaseURL:    cfg.Database.URL(),
		MigrationsPath: cfg.History.MigrationDir,
	}); err != nil {
		_ = pg.Close()
		return nil, err
	}

	hc.Register("database", observability.DatabaseHealthCheck(func(ctx context.Context) error {
		return database.HealthCheck(ctx, pg.DB())
	}))

	breakerConfig := history.DefaultCircuitBreakerConfig
	breakerConfig.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn(ctx, "History circuit breaker changed state", map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
	}

	return history.NewBreakerStore(pg, "query-history", breakerConfig), nil
}
