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

	"referral-network-indexer/internal/api"
	app_service "referral-network-indexer/internal/application/service"
	"referral-network-indexer/internal/domain/entity"
	domain_service "referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/blockchain"
	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/database"
	"referral-network-indexer/internal/infrastructure/logger"
	"referral-network-indexer/internal/infrastructure/messaging"
	"referral-network-indexer/internal/infrastructure/metrics"
	"referral-network-indexer/internal/infrastructure/storage"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateApp(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Create FX application
	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Neo4J),
		fx.Provide(func() *zap.Logger { return log.Logger }),

		// Infrastructure providers
		fx.Provide(
			provideChainReader,
			provideProfileStore,
			database.NewNeo4JClient,
			database.NewNeo4JReferralRepository,
			messaging.NewNATSConsumer,
			func(consumer *messaging.NATSConsumer, cfg *config.NATSConfig, log *logger.Logger) *messaging.NATSPublisher {
				return messaging.NewNATSPublisher(consumer, cfg, log)
			},
			metrics.NewRecorder,
		),

		// Application providers
		fx.Provide(
			provideProfileService,
		),

		// Lifecycle hooks
		fx.Invoke(startProfileWorker),
		fx.Invoke(startAPIServer),
		fx.Invoke(startMetricsServer),

		// Configure logging
		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	// Stop the application
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

// provideChainReader dials the staking contract, or falls back to an empty
// in-memory chain for development when no RPC endpoint is configured
func provideChainReader(lifecycle fx.Lifecycle, cfg *config.Config, log *logger.Logger) (domain_service.ChainReader, error) {
	if cfg.Chain.RPCURL == "" {
		log.Warn("No RPC endpoint configured, using in-memory chain")
		return blockchain.NewMemoryChain(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := blockchain.DialEthereumChainReader(ctx, cfg.Chain.RPCURL, cfg.Chain.ContractAddress, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain reader: %w", err)
	}

	report, err := reader.ProbeContract(ctx)
	if errors.Is(err, blockchain.ErrNoContractCode) {
		reader.Close()
		return nil, err
	}
	if err != nil {
		log.Warn("Failed to probe staking contract", zap.Error(err))
	} else if !report.HasReferralList && cfg.Traversal.DataSourceMode == string(entity.DataSourcePreferList) {
		log.Warn("Staking contract has no referee list accessor but prefer-list mode is configured")
	}
	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			reader.Close()
			return nil
		},
	})
	return reader, nil
}

// provideProfileStore opens the local profile cache when enabled
func provideProfileStore(lifecycle fx.Lifecycle, cfg *config.Config, log *logger.Logger) (*storage.LevelDBProfileStore, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := storage.NewLevelDBProfileStore(cfg.Storage.Path, log)
	if err != nil {
		return nil, err
	}
	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// provideProfileService wires the traversal bounds, token set and post-commit hooks
func provideProfileService(
	cfg *config.Config,
	store *storage.LevelDBProfileStore,
	referrals *database.Neo4JReferralRepository,
	publisher *messaging.NATSPublisher,
	recorder *metrics.Recorder,
	log *logger.Logger,
) (*app_service.ProfileApplicationService, error) {
	traversal, err := cfg.TraversalConfig()
	if err != nil {
		return nil, err
	}

	tokens := cfg.TokenSet()
	if err := tokens.Validate(); err != nil {
		log.Warn("Token set is incomplete, token splits will stay zero", zap.Error(err))
	}

	profiles := app_service.NewProfileApplicationService(traversal, tokens, log).
		WithObserver(recorder)

	if injector := domain_service.NewStaticEdgeInjector(cfg.Chain.TestReferrer, cfg.Chain.TestReferee); injector != nil {
		log.Warn("Synthetic referral edge enabled",
			zap.String("referrer", injector.Referrer.String()),
			zap.String("referee", injector.Referee.String()))
		profiles.WithEdgeInjector(injector)
	}

	if store != nil {
		profiles.WithHooks(store)
	}
	if cfg.Neo4J.Enabled {
		profiles.WithHooks(referrals)
	}
	if cfg.NATS.Enabled {
		profiles.WithHooks(publisher)
	}
	if cfg.Metrics.Enabled {
		profiles.WithHooks(recorder)
	}

	return profiles, nil
}

// startProfileWorker connects Neo4J and NATS and processes profile requests
func startProfileWorker(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	profiles *app_service.ProfileApplicationService,
	reader domain_service.ChainReader,
	neo4jClient *database.Neo4JClient,
	cfg *config.Config,
	log *logger.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	sessions := app_service.NewSessionManager(runCtx, profiles, reader, app_service.SessionOptions{
		MaxSessions:         cfg.App.MaxSessions,
		IdleTTL:             cfg.App.SessionIdleTTL,
		MaxConcurrentBuilds: cfg.App.WorkerPoolSize,
	}, log)

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting profile worker...")

			if cfg.Neo4J.Enabled {
				if err := neo4jClient.Connect(ctx); err != nil {
					return fmt.Errorf("failed to connect to Neo4J: %w", err)
				}
			}

			log.Info("NATS Configuration",
				zap.String("url", cfg.NATS.URL),
				zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
				zap.Bool("enabled", cfg.NATS.Enabled),
			)

			if err := consumer.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			go sessions.Run(runCtx, consumer.GetMessageChannel())

			log.Info("Profile worker started successfully",
				zap.Int("max_level", profiles.TraversalConfig().MaxLevel),
				zap.Int("max_total_nodes", profiles.TraversalConfig().MaxTotalNodes),
				zap.String("data_source_mode", string(profiles.TraversalConfig().DataSourceMode)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping profile worker...")
			cancel()
			if err := neo4jClient.Close(ctx); err != nil {
				log.Error("Failed to close Neo4J connection", zap.Error(err))
			}
			return consumer.Disconnect()
		},
	})
}

// startAPIServer serves health and profile endpoints
func startAPIServer(
	lifecycle fx.Lifecycle,
	profiles *app_service.ProfileApplicationService,
	reader domain_service.ChainReader,
	store *storage.LevelDBProfileStore,
	cfg *config.Config,
	log *logger.Logger,
) {
	handler := api.NewHandler(profiles, reader, nil, log)
	if store != nil {
		handler = api.NewHandler(profiles, reader, store, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler: api.NewRouter(handler),
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...", zap.Int("port", cfg.App.HTTPPort))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("API server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping API server...")
			return server.Shutdown(ctx)
		},
	})
}

// startMetricsServer exposes Prometheus metrics when enabled
func startMetricsServer(
	lifecycle fx.Lifecycle,
	recorder *metrics.Recorder,
	cfg *config.Config,
	log *logger.Logger,
) {
	if !cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting metrics server...", zap.Int("port", cfg.Metrics.Port))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("Metrics server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
