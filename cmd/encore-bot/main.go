package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"encore/internal/bot"
	"encore/internal/catalog"
	"encore/internal/config"
	"encore/internal/db"
	"encore/internal/economy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	cat, err := catalog.LoadOrDefault(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog failed", "path", cfg.CatalogPath, "err", err)
		os.Exit(1)
	}

	core := economy.NewService(pool, cat, logger, economy.Options{
		TradeTimeout:   cfg.TradeTimeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
		LikeInterval:   cfg.LikeInterval,
	})

	gateway, err := bot.New(cfg, logger, core)
	if err != nil {
		logger.Error("bot init failed", "err", err)
		os.Exit(1)
	}

	if err := gateway.Run(ctx); err != nil {
		logger.Error("bot stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("bot shutdown")
}
