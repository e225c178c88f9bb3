package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"encore/internal/api"
	"encore/internal/catalog"
	"encore/internal/config"
	"encore/internal/db"
	"encore/internal/economy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	server := api.New(cfg, logger, core)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("encore api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
