package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/farebid/dispatch/internal/api/handlers"
	"github.com/farebid/dispatch/internal/api/routes"
	"github.com/farebid/dispatch/internal/archive"
	"github.com/farebid/dispatch/internal/config"
	"github.com/farebid/dispatch/internal/notify"
	"github.com/farebid/dispatch/internal/observability"
	"github.com/farebid/dispatch/internal/payments"
	"github.com/farebid/dispatch/internal/service/bidding"
	chatsvc "github.com/farebid/dispatch/internal/service/chat"
	"github.com/farebid/dispatch/internal/service/dispatch"
	"github.com/farebid/dispatch/internal/service/ledger"
	"github.com/farebid/dispatch/pkg/cache"
	"github.com/farebid/dispatch/pkg/database"
	"github.com/farebid/dispatch/pkg/logger"
	"github.com/farebid/dispatch/pkg/monitoring"
	"github.com/farebid/dispatch/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting FareBid dispatch service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
		LogLevel:   cfg.NewRelic.LogLevel,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp, _ = monitoring.New(monitoring.Config{})
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized",
			logger.String("app_name", cfg.NewRelic.AppName))
	}
	defer nrApp.Shutdown(10 * time.Second)

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	defer cache.Close(redisClient)

	appLogger.Info("Connected to Redis successfully")

	// Initialize PostgreSQL
	postgresDB, err := database.NewPostgresDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MaxIdle:  cfg.Database.MaxIdle,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}
	defer postgresDB.Close()

	appLogger.Info("Connected to PostgreSQL successfully")

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run()
	observability.RegisterLiveConnections(wsHub.ConnectionCount)

	// Wire the event fanout over the hub, with missed events parked in
	// Redis until the recipient reconnects
	offlineQueue := cache.NewOfflineQueue(redisClient, cfg.Dispatch.OfflineQueueTTL, cfg.Dispatch.OfflineQueueMax)
	fanout := notify.NewFanout(wsHub, offlineQueue, appLogger)
	presence := cache.NewDriverPresence(redisClient)

	// Archival pipeline: PostgreSQL rows plus an optional Kafka feed
	store := archive.NewStore(postgresDB)
	var producer *archive.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = archive.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		appLogger.Info("Kafka archive producer enabled",
			logger.String("topic", cfg.Kafka.Topic))
	}
	archiver := archive.New(store, producer, appLogger)

	// Payment settlement via Stripe manual-capture holds
	var settler dispatch.Settler
	if cfg.Stripe.Enabled {
		settler = payments.NewStripeSettler(cfg.Stripe.APIKey, cfg.Stripe.Currency, appLogger)
		appLogger.Info("Stripe settlement enabled")
	}

	// Core dispatch services
	requestLedger := ledger.New(ledger.Config{
		BiddingWindow: cfg.Dispatch.BiddingWindow,
	}, fanout, presence, nrApp, appLogger)
	bidCollector := bidding.New(requestLedger, fanout, appLogger)
	chatService := chatsvc.NewService(fanout, appLogger)
	matcher := dispatch.New(dispatch.Config{
		CodeLength:      cfg.Dispatch.CodeLength,
		CodeMaxAttempts: cfg.Dispatch.CodeMaxAttempts,
	}, requestLedger, bidCollector, chatService, fanout, archiver, settler, nrApp, appLogger)

	// Initialize handlers with dependencies
	h := &handlers.Handlers{
		Ledger:   requestLedger,
		Bids:     bidCollector,
		Matcher:  matcher,
		Chat:     chatService,
		Fanout:   fanout,
		Store:    store,
		Presence: presence,
		Hub:      wsHub,
		Config:   cfg,
		Logger:   appLogger,
	}

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Setup all routes
	var nrApplication *newrelic.Application
	if nrApp.IsEnabled() {
		nrApplication = nrApp.Application
	}
	routes.SetupRoutes(router, h, nrApplication)

	appLogger.Info("Routes configured successfully")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	appLogger.Info("Server stopped gracefully")
}
