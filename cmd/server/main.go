package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/cryptopulse/internal/api"
	"github.com/irfndi/cryptopulse/internal/api/handlers"
	"github.com/irfndi/cryptopulse/internal/cache"
	"github.com/irfndi/cryptopulse/internal/config"
	"github.com/irfndi/cryptopulse/internal/database"
	"github.com/irfndi/cryptopulse/internal/logging"
	"github.com/irfndi/cryptopulse/internal/middleware"
	"github.com/irfndi/cryptopulse/internal/models"
	"github.com/irfndi/cryptopulse/internal/services"
	"github.com/irfndi/cryptopulse/internal/telemetry"
	"github.com/irfndi/cryptopulse/pkg/coingecko"
)

const (
	serviceName    = "cryptopulse"
	serviceVersion = "1.0.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment, cfg.Logging)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Environment, logging.WithComponent(logger, "telemetry"))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown telemetry")
		}
	}()

	db, err := database.NewPostgresConnection(ctx, cfg.Database, logging.WithComponent(logger, "postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	traced := database.NewTracedDB(db.Pool, logging.WithComponent(logger, "postgres"))
	if err := database.EnsureSchema(ctx, traced); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// Redis only backs the read-path response cache; the API works without it.
	var responseCache handlers.ResponseCache
	redisClient, err := database.NewRedisConnection(ctx, cfg.Redis, logging.WithComponent(logger, "redis"))
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, serving API without response cache")
	} else {
		defer redisClient.Close()
		responseCache = cache.NewRedisJSONCache(redisClient.Client, config.Duration(cfg.API.ListCacheTTL, 30*time.Minute), logging.WithComponent(logger, "response_cache"))
	}

	provider := coingecko.NewClient(cfg.Provider, logging.WithComponent(logger, "coingecko"))
	repository := database.NewMarketRepository(traced, logging.WithComponent(logger, "repository"))
	reconciler := services.NewReconciler(repository, repository, logger)
	ohlcCache := cache.NewTTLCache[[]models.HistoricalCandle](config.Duration(cfg.Ingestion.CacheTTL, 30*time.Minute))
	notifier := newNotifier(cfg.Telegram, logger)

	ingestion := services.NewIngestionService(provider, reconciler, ohlcCache, notifier, logger)
	params := services.ParamsFromConfig(cfg.Ingestion, cfg.Provider)

	scheduler := services.NewIngestionScheduler(ingestion, params, config.Duration(cfg.Ingestion.Interval, 30*time.Minute), cfg.Ingestion.RunOnStart, logger)
	if cfg.Ingestion.Enabled {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	} else {
		logger.Info("Scheduled ingestion disabled")
	}

	checks := map[string]handlers.HealthChecker{"database": db, "redis": nil}
	if redisClient != nil {
		checks["redis"] = redisClient
	}

	router := newRouter(cfg, logger, api.Dependencies{
		Health: handlers.NewHealthHandler(checks),
		Market: handlers.NewMarketHandler(repository, responseCache, ingestion, params, handlers.MarketOptions{
			ListCacheTTL:  config.Duration(cfg.API.ListCacheTTL, 30*time.Minute),
			ChartCacheTTL: config.Duration(cfg.API.ChartCacheTTL, 30*time.Minute),
			DefaultLimit:  cfg.API.DefaultLimit,
			MaxLimit:      cfg.API.MaxLimit,
			HistoryLimit:  cfg.API.HistoryLimit,
		}, logging.WithComponent(logger, "api")),
		Ingestion: handlers.NewIngestionHandler(ingestion, params, logging.WithComponent(logger, "api")),
		Auth:      middleware.NewAuthMiddleware(cfg.Security.JWTSecret).WithAPIKey(cfg.Security.APIKey),
	})

	srv := newHTTPServer(cfg.Server.Port, router)

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, serviceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
		logging.LogShutdown(logger, serviceName, "signal received")
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// newRouter assembles the gin engine with the global middleware chain.
// deps.RateLimiter is filled from cfg when rate limiting is enabled.
func newRouter(cfg *config.Config, logger *logrus.Logger, deps api.Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logging.WithComponent(logger, "http")))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	if cfg.RateLimit.Enabled && deps.RateLimiter == nil {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, config.Duration(cfg.RateLimit.Window, 15*time.Minute))
	}

	api.SetupRoutes(router, deps)
	return router
}

// newHTTPServer applies the server timeouts. WriteTimeout is left unset because
// the ingestion-backed routes can run for minutes.
func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// newNotifier returns a Telegram notifier when credentials are configured.
func newNotifier(cfg config.TelegramConfig, logger *logrus.Logger) services.Notifier {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return services.NoopNotifier{}
	}
	notifier, err := services.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, logger)
	if err != nil {
		logger.WithError(err).Warn("Telegram notifier disabled")
		return services.NoopNotifier{}
	}
	return notifier
}
