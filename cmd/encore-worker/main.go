package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"encore/internal/catalog"
	"encore/internal/config"
	"encore/internal/db"
	"encore/internal/economy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	core := economy.NewService(pool, cat, logger, economy.Options{})

	if cfg.RunOnce {
		if err := runTick(ctx, logger, core); err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := runTick(ctx, logger, core); err != nil {
				logger.Error("tick failed", "err", err)
				continue
			}
		}
	}
}

// runTick advances every time-driven piece of the economy: event phase
// changes, settlement of ended events, and listing expiry.
func runTick(ctx context.Context, logger *slog.Logger, core *economy.Service) error {
	activated, err := core.ActivateDueEvents(ctx)
	if err != nil {
		return err
	}
	ended, err := core.EndDueEvents(ctx)
	if err != nil {
		return err
	}
	settled, err := core.SettleEndedEvents(ctx)
	if err != nil {
		return err
	}
	expired, err := core.ExpireListings(ctx)
	if err != nil {
		return err
	}
	logger.Info("tick complete",
		"events_activated", activated,
		"events_ended", ended,
		"events_settled", len(settled),
		"listings_expired", expired,
	)
	return nil
}
