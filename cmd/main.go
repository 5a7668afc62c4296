package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	redisClient "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ad-board/internal/config"
	"ad-board/internal/delivery/middleware"
	"ad-board/internal/delivery/router"
	"ad-board/internal/infrastructure/cache"
	"ad-board/internal/infrastructure/mailer"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/infrastructure/scheduler"
	"ad-board/internal/infrastructure/storage"
	"ad-board/internal/repository"
	"ad-board/internal/service"
	"ad-board/pkg/database"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

func main() {
	cfg := config.MustLoadConfig()

	loggers, err := logger.SetupLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	loggers.InfoLogger.Info("Logger initialized")

	var tracerProvider *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tracerProvider = setupTracer(cfg, loggers)
		defer shutdownTracer(tracerProvider, loggers)
	}

	redisCache, cleanupRedis := setupCache(cfg, loggers)
	defer cleanupRedis()

	handlerMetrics := metrics.NewHandlerMetrics(prometheus.DefaultRegisterer)
	serviceMetrics := metrics.NewServiceMetrics(prometheus.DefaultRegisterer)
	repositoryMetrics := metrics.NewRepositoryMetrics(prometheus.DefaultRegisterer)
	sweeperMetrics := metrics.NewSweeperMetrics(prometheus.DefaultRegisterer)
	loggers.InfoLogger.Info("Prometheus metrics initialized")

	adRepo, cleanupRepo := setupRepository(cfg, redisCache, repositoryMetrics, loggers)
	defer cleanupRepo()

	historyLog := repository.NewJSONHistoryLog(cfg.Storage.HistoryFile)
	profileStore := repository.NewJSONProfileStore(cfg.Storage.AdminFile)

	fileStore, err := storage.NewDiskFileStore(cfg.Storage.UploadsDir)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to set up uploads directory", utils.Err(err))
		os.Exit(1)
	}

	notifier := mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)

	adService := service.NewAdService(adRepo, historyLog, fileStore, serviceMetrics, loggers, cfg.Sweeper.ArchiveEnabled)
	sweeper := service.NewSweeper(adRepo, fileStore, historyLog, notifier, sweeperMetrics, loggers, service.SweeperOptions{
		ArchiveEnabled:   cfg.Sweeper.ArchiveEnabled,
		NotifyEnabled:    cfg.Sweeper.NotifyEnabled,
		NotifyWindowDays: cfg.Sweeper.NotifyWindowDays,
	})
	loggers.InfoLogger.Info("Service layer initialized")

	sessions := middleware.NewSessionManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	r := chi.NewRouter()
	router.SetupRoutes(r, router.Deps{
		AdService:    adService,
		Sweeper:      sweeper,
		Files:        fileStore,
		Profiles:     profileStore,
		Notifier:     notifier,
		Sessions:     sessions,
		SupportEmail: cfg.SMTP.SupportEmail,
		Loggers:      loggers,
		Metrics:      handlerMetrics,
	})
	r.Handle("/metrics", handlerMetrics.HTTPHandler())
	loggers.InfoLogger.Info("Router and routes initialized")

	stopScheduler := startSweeper(cfg, sweeper, loggers)
	defer stopScheduler()

	server := startServer(cfg, r, loggers)

	waitForShutdown(server, loggers)
}

func setupCache(cfg *config.Config, loggers *logger.Loggers) (cache.Cache, func()) {
	if !cfg.Redis.Enabled {
		loggers.InfoLogger.Info("Redis disabled, running without cache")
		return cache.NewNoopCache(), func() {}
	}

	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		loggers.ErrorLogger.Error("Failed to connect to Redis", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to Redis")

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close Redis client", utils.Err(err))
		}
	}

	return cache.NewRedisCache(rdb), cleanup
}

func setupRepository(cfg *config.Config, redisCache cache.Cache, repositoryMetrics *metrics.RepositoryMetrics, loggers *logger.Loggers) (repository.AdRepository, func()) {
	switch cfg.Storage.Backend {
	case "mysql":
		db, cleanup := setupDatabase(cfg, loggers)
		loggers.InfoLogger.Info("Using MySQL ad repository")
		return repository.NewMysqlAdRepository(db, redisCache, repositoryMetrics), cleanup
	default:
		loggers.InfoLogger.Info("Using JSON file ad repository", "path", cfg.Storage.AdsFile)
		return repository.NewJSONAdRepository(cfg.Storage.AdsFile, redisCache, repositoryMetrics, loggers), func() {}
	}
}

func setupDatabase(cfg *config.Config, loggers *logger.Loggers) (*sql.DB, func()) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name)

	db, err := database.NewDatabase(dsn)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to connect to database", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to database")

	cleanup := func() {
		if err := db.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close database connection", utils.Err(err))
		}
	}

	return db, cleanup
}

func setupTracer(cfg *config.Config, loggers *logger.Loggers) *sdktrace.TracerProvider {
	tracerProvider := metrics.InitTracer(
		cfg.Tracing.ServiceName,
		cfg.Tracing.Environment,
		cfg.Tracing.Version,
		cfg.Tracing.Endpoint,
	)
	loggers.InfoLogger.Info("OpenTelemetry Tracer initialized")
	return tracerProvider
}

func shutdownTracer(tp *sdktrace.TracerProvider, loggers *logger.Loggers) {
	if err := tp.Shutdown(context.Background()); err != nil {
		loggers.ErrorLogger.Error("Failed to shut down tracer provider", utils.Err(err))
	}
}

// startSweeper runs the initial cleanup pass and schedules the daily one.
func startSweeper(cfg *config.Config, sweeper *service.Sweeper, loggers *logger.Loggers) func() {
	if !cfg.Sweeper.Enabled {
		loggers.InfoLogger.Info("Expiration sweeper disabled by config")
		return func() {}
	}

	sched := scheduler.New(loggers)
	if err := sched.AddDaily(cfg.Sweeper.Hour, "expired-ads-cleanup", func() {
		if err := sweeper.Sweep(context.Background()); err != nil {
			loggers.ErrorLogger.Error("Scheduled sweep failed", utils.Err(err))
		}
	}); err != nil {
		loggers.ErrorLogger.Error("Failed to schedule sweep", utils.Err(err))
		os.Exit(1)
	}
	sched.Start()

	go func() {
		loggers.InfoLogger.Info("Running initial cleanup of expired ads")
		if err := sweeper.Sweep(context.Background()); err != nil {
			loggers.ErrorLogger.Error("Initial sweep failed", utils.Err(err))
		}
	}()

	return sched.Stop
}

func startServer(cfg *config.Config, handler http.Handler, loggers *logger.Loggers) *http.Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	}

	go func() {
		loggers.InfoLogger.Info("Starting server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggers.ErrorLogger.Error("Failed to start server", utils.Err(err))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, loggers *logger.Loggers) {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	<-shutdownCh
	loggers.InfoLogger.Info("Shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		loggers.ErrorLogger.Error("Server forced to shutdown", utils.Err(err))
	} else {
		loggers.InfoLogger.Info("Server shutdown gracefully")
	}
}
