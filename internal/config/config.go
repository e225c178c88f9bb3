package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr           string
	DatabaseURL    string
	APIToken       string
	CatalogPath    string
	TradeTimeout   time.Duration
	ConfirmTimeout time.Duration
	LikeInterval   time.Duration
}

type BotConfig struct {
	DiscordToken   string
	CommandPrefix  string
	DatabaseURL    string
	CatalogPath    string
	TradeTimeout   time.Duration
	ConfirmTimeout time.Duration
	LikeInterval   time.Duration
}

type WorkerConfig struct {
	DatabaseURL string
	CatalogPath string
	TickEvery   time.Duration
	RunOnce     bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("ENCORE_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIToken:       strings.TrimSpace(os.Getenv("ENCORE_API_TOKEN")),
		CatalogPath:    strings.TrimSpace(os.Getenv("ENCORE_CATALOG_PATH")),
		TradeTimeout:   envDurationDefault("ENCORE_TRADE_TIMEOUT", 5*time.Minute),
		ConfirmTimeout: envDurationDefault("ENCORE_CONFIRM_TIMEOUT", 60*time.Second),
		LikeInterval:   envDurationDefault("ENCORE_LIKE_INTERVAL", 10*time.Second),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.APIToken == "" {
		return cfg, fmt.Errorf("ENCORE_API_TOKEN is required")
	}
	return cfg, nil
}

func LoadBotFromEnv() (BotConfig, error) {
	cfg := BotConfig{
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		CommandPrefix:  envDefault("ENCORE_COMMAND_PREFIX", "!"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CatalogPath:    strings.TrimSpace(os.Getenv("ENCORE_CATALOG_PATH")),
		TradeTimeout:   envDurationDefault("ENCORE_TRADE_TIMEOUT", 5*time.Minute),
		ConfirmTimeout: envDurationDefault("ENCORE_CONFIRM_TIMEOUT", 60*time.Second),
		LikeInterval:   envDurationDefault("ENCORE_LIKE_INTERVAL", 10*time.Second),
	}
	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CatalogPath: strings.TrimSpace(os.Getenv("ENCORE_CATALOG_PATH")),
		TickEvery:   envDurationDefault("ENCORE_WORKER_TICK_EVERY", time.Minute),
		RunOnce:     envBoolDefault("ENCORE_WORKER_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("ENC_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
