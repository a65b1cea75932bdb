package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"musicstore/internal/app/accounts"
	"musicstore/internal/app/catalog"
	"musicstore/internal/app/engagement"
	"musicstore/internal/app/ledger"
	"musicstore/internal/app/purchases"
	"musicstore/internal/config"
	store_http "musicstore/internal/handler/http/store"
	kafka_handler "musicstore/internal/handler/kafka"
	"musicstore/internal/infrastructure/billing"
	"musicstore/internal/infrastructure/database"
	kafka_infra "musicstore/internal/infrastructure/kafka"
	"musicstore/internal/infrastructure/rabbitmq"
	"musicstore/internal/outbox"
	"musicstore/internal/repository/accounts_repo"
	"musicstore/internal/repository/catalog_repo"
	"musicstore/internal/repository/engagement_repo"
	"musicstore/internal/repository/inbox_repo"
	"musicstore/internal/repository/ledger_repo"
	"musicstore/internal/repository/outbox_repo"
	"musicstore/internal/repository/ownership_repo"
	"musicstore/internal/repository/payment_methods_repo"
	"musicstore/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Musicstore service starting...")

	db := connectDB(cfg.Database(), appLogger)
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	if err := migrations.Up(db); err != nil {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaBrokers := cfg.GetKafkaBrokers()
	requiredTopics := []string{cfg.KafkaAccountCreditsTopic}
	if cfg.OutboxBroker == config.OutboxBrokerKafka {
		requiredTopics = append(requiredTopics, cfg.KafkaLedgerEventsTopic)
	}
	topicsCtx, cancelTopics := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers, requiredTopics, appLogger.With(zap.String("component", "KafkaAdmin")))
	cancelTopics()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	accountRepository := accounts_repo.NewAccountRepository(db)
	ledgerRepository := ledger_repo.NewLedgerRepository(db)
	outboxRepository := outbox_repo.NewOutboxRepository(db)
	inboxRepository := inbox_repo.NewInboxRepository(db)
	catalogRepository := catalog_repo.NewCatalogRepository(db)
	ownershipRepository := ownership_repo.NewOwnershipRepository(db)
	paymentMethodRepository := payment_methods_repo.NewPaymentMethodRepository(db)
	engagementRepository := engagement_repo.NewEngagementRepository(db)

	outboxTopic := cfg.KafkaLedgerEventsTopic
	ledgerWriter := ledger.NewWriter(accountRepository, ledgerRepository, outboxRepository, outboxTopic)
	gateway := newGateway(cfg, appLogger)

	purchaseService := purchases.NewPurchaseService(
		db,
		catalogRepository,
		ownershipRepository,
		paymentMethodRepository,
		ledgerWriter,
		gateway,
		cfg.BillingChargeTimeout,
		appLogger.With(zap.String("component", "PurchaseService")),
	)
	accountService := accounts.NewAccountService(
		db,
		accountRepository,
		ledgerRepository,
		paymentMethodRepository,
		inboxRepository,
		ledgerWriter,
		gateway,
		cfg.BillingChargeTimeout,
		appLogger.With(zap.String("component", "AccountService")),
	)
	engagementService := engagement.NewEngagementService(
		db,
		catalogRepository,
		engagementRepository,
		appLogger.With(zap.String("component", "EngagementService")),
	)
	catalogService := catalog.NewCatalogService(
		catalogRepository,
		ownershipRepository,
		appLogger.With(zap.String("component", "CatalogService")),
	)
	appLogger.Info("Services initialized.")

	router := store_http.NewRouter(store_http.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.GetCORSAllowedOrigins(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: 30 * time.Second,
	}, store_http.Services{
		Purchases:  purchaseService,
		Accounts:   accountService,
		Engagement: engagementService,
		Catalog:    catalogService,
	}, appLogger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	producer, err := newOutboxProducer(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create outbox producer", zap.Error(err))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			appLogger.Error("Error closing outbox producer", zap.Error(err))
		} else {
			appLogger.Info("Outbox producer closed.")
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		db,
		outboxRepository,
		producer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		cfg.OutboxBatchSize,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	creditConsumer := kafka_infra.NewConsumer(
		kafkaBrokers,
		cfg.KafkaConsumerGroup,
		cfg.KafkaAccountCreditsTopic,
		appLogger.With(zap.String("component", "AccountCreditsConsumer")),
	)
	creditHandler := kafka_handler.AccountCreditMessageHandler(
		accountService,
		cfg.KafkaConsumerGroup,
		appLogger.With(zap.String("component", "AccountCreditHandler")),
	)

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		appLogger.Info("Starting Outbox Processor...")
		outboxProcessor.Start(ctxMain)
		appLogger.Info("Outbox Processor stopped.")
	}()
	go func() {
		defer workers.Done()
		appLogger.Info("Starting Account Credits Kafka Consumer...")
		if err := creditConsumer.Start(ctxMain, creditHandler); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Account Credits Kafka Consumer failed", zap.Error(err))
		}
		appLogger.Info("Account Credits Kafka Consumer stopped.")
	}()

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLogger.Info("Shutting down application...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("HTTP server failed, shutting down", zap.Error(err))
	}

	cancelMain()
	creditConsumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server stopped.")
	}

	workers.Wait()
	appLogger.Info("Application shut down gracefully.")
}

func connectDB(dbConfig database.DBConfig, logger *zap.Logger) *sql.DB {
	logger.Info("Waiting for database to be available...")

	const maxRetries = 10
	retryDelay := 5 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := database.NewPostgresDB(dbConfig)
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database!")
			return db
		}
		lastErr = err
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_in", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	logger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(lastErr))
	return nil
}

func newGateway(cfg *config.Config, logger *zap.Logger) billing.Gateway {
	if cfg.BillingMode == config.BillingModeHTTP {
		logger.Info("Using billing provider", zap.String("base_url", cfg.BillingBaseURL))
		return billing.NewClient(cfg.BillingBaseURL, cfg.BillingAPIKey, cfg.BillingChargeTimeout)
	}
	logger.Warn("Using sandbox billing gateway; charges are simulated")
	return billing.NewSandbox(logger.With(zap.String("component", "SandboxBilling")))
}

func newOutboxProducer(cfg *config.Config, logger *zap.Logger) (outbox.Producer, error) {
	if cfg.OutboxBroker == config.OutboxBrokerRabbitMQ {
		producer, err := rabbitmq.NewProducer(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger.With(zap.String("component", "RabbitMQProducer")))
		if err != nil {
			return nil, err
		}
		return producer, nil
	}
	return kafka_infra.NewProducer(cfg.GetKafkaBrokers(), logger.With(zap.String("component", "KafkaProducer"))), nil
}
