package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string // CROSSDOCK_DATABASE_URL (required)
	GRPCAddr    string // CROSSDOCK_GRPC_ADDR (default ":9090")
	HTTPAddr    string // CROSSDOCK_HTTP_ADDR (default ":8080")
	NATSURL     string // CROSSDOCK_NATS_URL (optional, empty = no events)
	AuthToken   string // CROSSDOCK_AUTH_TOKEN (optional, empty = auth disabled)
	LogLevel    slog.Level

	StoreTimeout time.Duration // CROSSDOCK_STORE_TIMEOUT (default 10s)
	SessionIdle  time.Duration // CROSSDOCK_SESSION_IDLE (default 8h)
	AckSuffix    int           // CROSSDOCK_ACK_SUFFIX (default 6)
	Location     *time.Location

	// Inventory lookup
	InventoryDSN       string        // CROSSDOCK_INVENTORY_DSN (optional, empty = lookups disabled)
	InventoryTimeout   time.Duration // CROSSDOCK_INVENTORY_TIMEOUT (default 20s)
	InventoryCooldown  time.Duration // CROSSDOCK_INVENTORY_COOLDOWN (default 60s)
	InventoryCacheTTL  time.Duration // CROSSDOCK_INVENTORY_CACHE_TTL (default 24h)
	InventoryCacheSize int           // CROSSDOCK_INVENTORY_CACHE_SIZE (default 10000)
	RedisAddr          string        // CROSSDOCK_REDIS_ADDR (optional; shared cache when set)

	// Sync settings
	SyncInterval   time.Duration // CROSSDOCK_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // CROSSDOCK_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // CROSSDOCK_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // CROSSDOCK_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // CROSSDOCK_SYNC_S3_KEY (default "crossdock/backup.jsonl")
}

// LoadEnvFiles merges KEY=VALUE files into the process environment without
// overriding variables that are already set. With no arguments it reads
// ./.env, and a missing default file is not an error.
func LoadEnvFiles(files ...string) error {
	err := godotenv.Load(files...)
	if len(files) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("CROSSDOCK_DATABASE_URL"),
		GRPCAddr:       envOrDefault("CROSSDOCK_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("CROSSDOCK_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("CROSSDOCK_NATS_URL"),
		AuthToken:      os.Getenv("CROSSDOCK_AUTH_TOKEN"),
		InventoryDSN:   os.Getenv("CROSSDOCK_INVENTORY_DSN"),
		RedisAddr:      os.Getenv("CROSSDOCK_REDIS_ADDR"),
		SyncS3Bucket:   os.Getenv("CROSSDOCK_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("CROSSDOCK_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("CROSSDOCK_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("CROSSDOCK_SYNC_S3_KEY", "crossdock/backup.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("CROSSDOCK_DATABASE_URL is required")
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"CROSSDOCK_STORE_TIMEOUT", "10s", &c.StoreTimeout},
		{"CROSSDOCK_SESSION_IDLE", "8h", &c.SessionIdle},
		{"CROSSDOCK_INVENTORY_TIMEOUT", "20s", &c.InventoryTimeout},
		{"CROSSDOCK_INVENTORY_COOLDOWN", "60s", &c.InventoryCooldown},
		{"CROSSDOCK_INVENTORY_CACHE_TTL", "24h", &c.InventoryCacheTTL},
		{"CROSSDOCK_SYNC_INTERVAL", "3m", &c.SyncInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = v
	}

	var err error
	if c.AckSuffix, err = envInt("CROSSDOCK_ACK_SUFFIX", 6); err != nil {
		return nil, err
	}
	if c.InventoryCacheSize, err = envInt("CROSSDOCK_INVENTORY_CACHE_SIZE", 10000); err != nil {
		return nil, err
	}

	tz := envOrDefault("CROSSDOCK_TIMEZONE", "America/Sao_Paulo")
	if c.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("CROSSDOCK_TIMEZONE: %w", err)
	}

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("CROSSDOCK_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("CROSSDOCK_LOG_LEVEL: %w", err)
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: want a non-negative integer, got %q", key, v)
	}
	return n, nil
}
