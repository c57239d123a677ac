// Package config loads tallyd configuration from the environment, with an
// optional TOML file layered underneath (env always wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/snackwars/tallyd/internal/model"
)

type Config struct {
	DatabaseURL string // TALLYD_DATABASE_URL (empty = in-memory dev store)
	NATSURL     string // TALLYD_NATS_URL (default "nats://127.0.0.1:4222")
	HTTPAddr    string // TALLYD_HTTP_ADDR (default ":8080")

	Products model.Products // TALLYD_PRODUCTS (default "kinoko,takenoko")

	OrderTTL time.Duration // TALLYD_ORDER_TTL (default 24h) — order retention
	ConnTTL  time.Duration // TALLYD_CONN_TTL (default 2h) — registry entry expiry

	BatchSize   int           // TALLYD_BATCH_SIZE (default 32) — stream pull size
	Workers     int           // TALLYD_WORKERS (default 2) — parallel batch consumers
	SendTimeout time.Duration // TALLYD_SEND_TIMEOUT (default 3s) — per-connection write deadline

	SweepInterval time.Duration // TALLYD_SWEEP_INTERVAL (default 5m; 0 = janitor disabled)

	LogLevel string // TALLYD_LOG_LEVEL (default "info")
	LogFile  string // TALLYD_LOG_FILE (empty = stderr only)
}

// fileConfig mirrors Config for the optional TOML file named by
// TALLYD_CONFIG. Durations are strings ("24h") parsed the same way as env.
type fileConfig struct {
	DatabaseURL   string `toml:"database_url"`
	NATSURL       string `toml:"nats_url"`
	HTTPAddr      string `toml:"http_addr"`
	Products      string `toml:"products"`
	OrderTTL      string `toml:"order_ttl"`
	ConnTTL       string `toml:"conn_ttl"`
	BatchSize     int    `toml:"batch_size"`
	Workers       int    `toml:"workers"`
	SendTimeout   string `toml:"send_timeout"`
	SweepInterval string `toml:"sweep_interval"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
}

func Load() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("TALLYD_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("TALLYD_CONFIG %s: %w", path, err)
		}
	}

	c := &Config{
		DatabaseURL: envOr("TALLYD_DATABASE_URL", file.DatabaseURL),
		NATSURL:     envOr("TALLYD_NATS_URL", or(file.NATSURL, "nats://127.0.0.1:4222")),
		HTTPAddr:    envOr("TALLYD_HTTP_ADDR", or(file.HTTPAddr, ":8080")),
		LogLevel:    envOr("TALLYD_LOG_LEVEL", or(file.LogLevel, "info")),
		LogFile:     envOr("TALLYD_LOG_FILE", file.LogFile),
	}

	products, err := model.ParseProducts(envOr("TALLYD_PRODUCTS", or(file.Products, "kinoko,takenoko")))
	if err != nil {
		return nil, fmt.Errorf("TALLYD_PRODUCTS: %w", err)
	}
	c.Products = products

	for _, d := range []struct {
		dst      *time.Duration
		key      string
		fallback string
	}{
		{&c.OrderTTL, "TALLYD_ORDER_TTL", or(file.OrderTTL, "24h")},
		{&c.ConnTTL, "TALLYD_CONN_TTL", or(file.ConnTTL, "2h")},
		{&c.SendTimeout, "TALLYD_SEND_TIMEOUT", or(file.SendTimeout, "3s")},
		{&c.SweepInterval, "TALLYD_SWEEP_INTERVAL", or(file.SweepInterval, "5m")},
	} {
		v, err := time.ParseDuration(envOr(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	c.BatchSize, err = intEnv("TALLYD_BATCH_SIZE", orInt(file.BatchSize, 32))
	if err != nil {
		return nil, err
	}
	c.Workers, err = intEnv("TALLYD_WORKERS", orInt(file.Workers, 2))
	if err != nil {
		return nil, err
	}
	if c.BatchSize < 1 {
		return nil, fmt.Errorf("TALLYD_BATCH_SIZE must be at least 1")
	}
	if c.Workers < 1 {
		return nil, fmt.Errorf("TALLYD_WORKERS must be at least 1")
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
