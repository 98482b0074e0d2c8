package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/avatar"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/config"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/gateway"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/httpapi"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/ingestion"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/jetstream"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/roster"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/storage"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/usecase"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize Metrics conditionally
	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	if cfg.Company.ID == "" {
		cfg.Company.ID = cfg.Company.Default
	}

	logger.Log.Info("Starting WA Inbox Service",
		zap.String("environment", cfg.Environment),
		zap.String("company_id", cfg.Company.ID),
		zap.String("gateway_url", cfg.Gateway.BaseURL),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, cfg.Company.ID)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Initialize JetStream client
	jsClient, err := initJetStreamClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	leadRepo := storage.NewLeadRepoAdapter(postgresRepo)

	// Gateway client
	gwClient := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		Token:          cfg.Gateway.Token,
		ChatsTimeout:   cfg.Gateway.ChatsTimeout,
		PictureTimeout: cfg.Gateway.PictureTimeout,
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		RetryInterval:  cfg.Gateway.RetryInterval,
	})

	// Avatar enrichment. The patch side channel writes into the roster
	// snapshot, so the service pointer is bound after construction.
	var service *usecase.RosterService
	avatarCache := avatar.NewCache(cfg.Company.ID, cfg.Avatar.TTL)
	enricher, err := avatar.NewEnricher(avatarCache, gwClient, func(phone, url string) {
		if service != nil {
			service.PatchAvatar(phone, url)
		}
	}, avatar.EnricherOptions{
		BatchSize:    cfg.Avatar.BatchSize,
		FetchTimeout: cfg.Avatar.FetchTimeout,
		PoolSize:     cfg.Avatar.PoolSize,
	})
	if err != nil {
		logger.Log.Fatal("Failed to initialize avatar enricher", zap.Error(err))
	}

	// Roster service and refresher
	merger := roster.NewMerger(leadRepo)
	service = usecase.NewRosterService(gwClient, messageRepo, leadRepo, merger, enricher, cfg.Company.ID)
	refresher := usecase.NewRefresher(service, cfg.Company.ID, usecase.RefresherOptions{
		SearchDebounce: cfg.Roster.SearchDebounce,
		ChangeDebounce: cfg.Roster.ChangeDebounce,
		PollInterval:   cfg.Roster.PollInterval,
	})

	// Change feed consumer
	router := ingestion.NewRouter()
	feedHandler := ingestion.NewFeedHandler(messageRepo, leadRepo, refresher.NotifyChange)
	feedHandler.RegisterWith(router)
	feedConsumer := ingestion.NewFeedConsumer(jsClient, router, cfg.NATS.Realtime, cfg.Company.ID)
	if err := feedConsumer.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up feed consumer", zap.Error(err))
	}

	// API server
	apiServer := httpapi.NewServer(strconv.Itoa(cfg.Server.Port), service, refresher, logger.Log)
	if metricsEnabled {
		apiServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}
	apiServer.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("conversations", fmt.Sprintf("http://localhost:%d/v1/conversations", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Start the refresh loop and the feed subscription
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	refresher.Start(mainCtx)
	if err := feedConsumer.Start(); err != nil {
		logger.Log.Fatal("Failed to start feed consumer", zap.Error(err))
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Shutdown feed consumer
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping feed consumer")
		start := time.Now()
		feedConsumer.Stop()
		logger.Log.Info("[shutdown] Feed consumer stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping feed consumer",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown refresher and avatar workers
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping refresher")
		start := time.Now()
		refresher.Wait()
		enricher.Close()
		logger.Log.Info("[shutdown] Refresher stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping refresher",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown API server
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping API server")
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping API server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] API server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping API server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and NATS connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("WA Inbox Service shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool, companyID string) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initJetStreamClient initializes the JetStream client
func initJetStreamClient(url string) (*jetstream.Client, error) {
	client, err := jetstream.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}
	return client, nil
}
