package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wallet-sentry/monitor/database"
	"wallet-sentry/monitor/internal/bot"
	"wallet-sentry/monitor/internal/chains"
	"wallet-sentry/monitor/internal/dispatcher"
	"wallet-sentry/monitor/internal/handlers"
	"wallet-sentry/monitor/internal/scanner"
	"wallet-sentry/shared/config"
	"wallet-sentry/shared/env"
	"wallet-sentry/shared/logger"
	"wallet-sentry/shared/notifications"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Panicf("FATAL PANIC RECOVERY: %v", r)
		}
	}()

	if err := env.LoadEnv(); err != nil {
		log.Fatalf("FATAL: Failed to load environment variables: %v", err)
	}

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("FATAL: Failed to load config.yaml: %v", err)
	}
	config.SetGlobalConfig(cfg)

	log.Println("INFO: Initializing Telegram notifications...")
	if err := notifications.InitTelegramBot(); err != nil {
		log.Printf("WARN: Failed to initialize Telegram Bot, alerts will be persisted but not delivered: %v", err)
	}

	enableTelegramLogging := env.TelegramBotToken != "" && env.TelegramOpsChatID != 0
	appLogger, err := logger.NewLogger(logger.Config{
		Level:          cfg.Logging.Level,
		Environment:    cfg.App.Environment,
		EnableTelegram: enableTelegramLogging,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info("Application logger initialized.")

	dsn, err := database.ResolveDSN()
	if err != nil {
		appLogger.Fatal("Database connection variables are missing", "error", err)
	}
	db, err := database.ConnectToDatabase(dsn)
	if err != nil {
		appLogger.Fatal("Database connection failed", "error", err)
	}
	appLogger.Info("Database connection established.")

	if err := database.MigrateDatabase(db, dsn); err != nil {
		appLogger.Fatal("Database migration failed", "error", err)
	}

	store := database.NewStore(db)
	registry := buildRegistry(cfg, appLogger)
	if len(registry.Chains()) == 0 {
		appLogger.Warn("No chains are enabled; the scanner will have nothing to do. Check config.yaml and API keys.")
	} else {
		appLogger.Info("Chain data sources registered", "chains", registry.Chains())
	}

	disp := dispatcher.New(store, notifications.NewTelegramNotifier(), cfg.Scanner.WhaleThreshold)
	scan := scanner.New(store, registry, disp, scanner.Options{
		Workers:     cfg.Scanner.Workers,
		ItemTimeout: time.Duration(cfg.Scanner.ItemTimeoutSeconds) * time.Second,
		PassTimeout: time.Duration(cfg.Scanner.PassTimeoutSeconds) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.InitializeBot(appLogger, store, registry); err != nil {
		appLogger.Warn("Telegram bot listener unavailable", "error", err)
	} else {
		go bot.StartListening(ctx)
	}

	startScanLoop(ctx, scan, appLogger, time.Duration(cfg.Scanner.IntervalSeconds)*time.Second)
	startSweepLoop(ctx, disp, time.Duration(cfg.Scanner.SweepSeconds)*time.Second)

	router := gin.Default()
	router.Use(cors.Default())
	handlers.New(store, scan, registry).RegisterRoutes(router)

	addr := fmt.Sprintf(":%s", env.Port)
	appLogger.Info("Starting HTTP server", "addr", addr)
	if err := router.Run(addr); err != nil {
		appLogger.Fatal("HTTP server failed", "error", err)
	}
}

// buildRegistry registers a data source for every enabled chain that has
// the credentials it needs.
func buildRegistry(cfg *config.Config, appLogger *logger.Logger) *chains.Registry {
	registry := chains.NewRegistry()

	evmKeys := map[string]string{
		chains.ChainEthereum: env.EtherscanAPIKey,
		chains.ChainBSC:      env.BscscanAPIKey,
		chains.ChainBase:     env.BasescanAPIKey,
	}
	for chain, apiKey := range evmKeys {
		chainCfg, ok := cfg.Chains[chain]
		if !ok || !chainCfg.Enabled {
			continue
		}
		if apiKey == "" {
			appLogger.Warn("Chain enabled but explorer API key missing, skipping", "chain", chain)
			continue
		}
		registry.Register(chain, chains.NewEVMDataSource(chains.EVMConfig{
			Chain:        chain,
			APIURL:       chainCfg.APIURL,
			APIKey:       apiKey,
			NativeSymbol: chainCfg.NativeSymbol,
		}, appLogger))
	}

	if chainCfg, ok := cfg.Chains[chains.ChainSolana]; ok && chainCfg.Enabled {
		if env.HeliusAPIKey == "" || env.HeliusRPCURL == "" {
			appLogger.Warn("Solana enabled but HELIUS_API_KEY or HELIUS_RPC_URL missing, skipping", "chain", chains.ChainSolana)
		} else {
			registry.Register(chains.ChainSolana, chains.NewSolanaDataSource(chains.SolanaConfig{
				APIURL: chainCfg.APIURL,
				APIKey: env.HeliusAPIKey,
				RPCURL: env.HeliusRPCURL,
			}, appLogger))
		}
	}
	return registry
}

func startScanLoop(ctx context.Context, scan *scanner.Scanner, appLogger *logger.Logger, interval time.Duration) {
	go func() {
		appLogger.Info("Scan loop started", "interval", interval.String())
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := scan.RunPass(ctx); err != nil {
					appLogger.Error("Scheduled monitoring pass failed", "error", err)
				}
			case <-ctx.Done():
				appLogger.Info("Scan loop stopped.")
				return
			}
		}
	}()
}

func startSweepLoop(ctx context.Context, disp *dispatcher.Dispatcher, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				disp.SweepPending(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
