package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xaenox/persona-gateway/internal/agents"
	"github.com/xaenox/persona-gateway/internal/chat"
	"github.com/xaenox/persona-gateway/internal/provider"
	"github.com/xaenox/persona-gateway/internal/provision"
	"github.com/xaenox/persona-gateway/internal/server"
	"github.com/xaenox/persona-gateway/internal/storage"
	"github.com/xaenox/persona-gateway/internal/telegram"
	"github.com/xaenox/persona-gateway/internal/tools"
	"github.com/xaenox/persona-gateway/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Remote execution provider
	client := provider.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	// Tools available to assistant runs
	registry := tools.NewRegistry(logger)
	wallet := tools.NewWalletTracker(tools.WalletTrackerConfig{
		EtherscanKey:   cfg.Explorers.EtherscanKey,
		BscscanKey:     cfg.Explorers.BscscanKey,
		PolygonscanKey: cfg.Explorers.PolygonscanKey,
	}, logger)
	registry.Register(wallet.Definition(), wallet.Handle)

	// Conversation core
	resolver := chat.NewResolver(store, cfg.OpenAI.GeneralAssistantID, logger)
	threads := chat.NewThreadStore(store, client, logger)
	driver := chat.NewDriver(client, registry, chat.DriverConfig{
		PollInterval:       cfg.Run.PollInterval,
		CancelPollInterval: cfg.Run.CancelPollInterval,
		Timeout:            cfg.Run.Timeout,
		FileDir:            cfg.Server.FileDir,
	}, logger)
	orchestrator := chat.NewOrchestrator(resolver, threads, driver, store, logger)

	// Assistant provisioning, with the run tools wired onto every
	// created assistant
	provisioner := provision.NewService(client, store, logger)
	provisioner.FunctionTools = registry.Definitions()

	// Multi-agent router
	router := agents.NewRouter(client, logger,
		agents.NewMarketing(client),
		agents.NewContent(client),
		agents.NewCare(client),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional Telegram surface
	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.Token, orchestrator, logger)
		if err != nil {
			logger.Fatal("Failed to create telegram bot", zap.Error(err))
		}
		go func() {
			if err := bot.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("Telegram bot stopped", zap.Error(err))
			}
		}()
	}

	srv := server.New(orchestrator, provisioner, router, store, logger)
	if err := srv.Start(ctx, cfg.Server.Port); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
