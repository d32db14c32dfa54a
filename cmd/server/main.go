package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleet/internal/app"
	"fleet/internal/config"
	"fleet/internal/handler"
	"fleet/internal/middleware"
	"fleet/internal/mq"
	internalRedis "fleet/internal/redis"
	"fleet/internal/repository/postgres"
	"fleet/internal/service"
)

const accessTokenTTL = 24 * time.Hour

func main() {
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	// run returns instead of exiting so its deferred closes always happen.
	err = run(cfg, logger)
	_ = logger.Sync()
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// New Relic goes first so the database and Redis clients can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	db, err := app.NewDatabase(startCtx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := app.Migrate(startCtx, db, logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := app.NewRedisClient(startCtx, cfg.Redis, nrApp)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	notifier := service.MultiNotifier{service.NewLogNotifier(logger)}
	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := mq.Connect(startCtx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()
		defer ch.Close()
		notifier = append(notifier, mq.NewNotificationPublisher(ch, cfg.RabbitMQ.Exchange))
		logger.Info("publishing notifications", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	server, sweeper := wireServer(db, redisClient, nrApp, notifier, cfg, logger)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(sweepCtx)
	}()
	// The sweeper must be gone before the database and Redis are closed.
	defer wg.Wait()
	defer stopSweeper()

	return serve(ctx, server, cfg.Server.ShutdownTimeout, logger)
}

// serve runs server until ctx is done or the listener fails, then shuts it
// down gracefully. A listener failure is returned.
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	logger.Info("starting server", zap.String("addr", server.Addr))
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	for range errCh {
	}

	logger.Info("server exited")
	return serveErr
}

// wireServer wires all dependencies and returns the HTTP server and the expiry sweeper.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	notifier service.Notifier,
	cfg *config.Config,
	logger *zap.Logger,
) (*http.Server, *service.Sweeper) {
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)

	store := postgres.NewStore(db)

	notifications := service.NewNotificationService(notifier, logger).WithDeliveryTimeout(cfg.RabbitMQ.PublishTimeout)
	invoices := service.NewInvoiceBuilder(service.InvoiceSettings{
		TaxRate:     cfg.Invoice.TaxRate,
		HandlingFee: cfg.Invoice.HandlingFee,
		DueDays:     cfg.Invoice.DueDays,
		Currency:    cfg.Invoice.Currency,
	}, nil)
	dispatcher := service.NewDispatcher(store, invoices, notifications, locationStore, service.DispatcherConfig{
		RequestTTL:         cfg.Dispatch.RequestTTL,
		CapabilityFallback: cfg.Dispatch.CapabilityFallback,
	}, logger)
	sweeper := service.NewSweeper(dispatcher, lockStore, nrApp, cfg.Dispatch.SweepInterval, logger)
	tracking := service.NewTrackingService(store, locationStore, logger)

	router := app.NewRouter(app.RouterDeps{
		TripHandler:     handler.NewTripHandler(dispatcher, store),
		DriverHandler:   handler.NewDriverHandler(tracking, store),
		DispatchHandler: handler.NewDispatchHandler(sweeper),
		Tokens:          middleware.NewJWTManager(cfg.Auth.JWTSecret, accessTokenTTL),
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
		Logger:          logger,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, sweeper
}
