package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnvVars = []string{
	"CROSSDOCK_DATABASE_URL", "CROSSDOCK_GRPC_ADDR", "CROSSDOCK_HTTP_ADDR",
	"CROSSDOCK_NATS_URL", "CROSSDOCK_AUTH_TOKEN", "CROSSDOCK_LOG_LEVEL",
	"CROSSDOCK_STORE_TIMEOUT", "CROSSDOCK_SESSION_IDLE", "CROSSDOCK_ACK_SUFFIX",
	"CROSSDOCK_TIMEZONE", "CROSSDOCK_INVENTORY_DSN", "CROSSDOCK_INVENTORY_TIMEOUT",
	"CROSSDOCK_INVENTORY_COOLDOWN", "CROSSDOCK_INVENTORY_CACHE_TTL",
	"CROSSDOCK_INVENTORY_CACHE_SIZE", "CROSSDOCK_REDIS_ADDR",
	"CROSSDOCK_SYNC_INTERVAL", "CROSSDOCK_SYNC_S3_BUCKET", "CROSSDOCK_SYNC_S3_ENDPOINT",
	"CROSSDOCK_SYNC_S3_REGION", "CROSSDOCK_SYNC_S3_KEY",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:    "MissingDatabaseURL",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:         "DefaultAddresses",
			env:          map[string]string{"CROSSDOCK_DATABASE_URL": "postgres://localhost/crossdock"},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"CROSSDOCK_DATABASE_URL": "postgres://db:5432/crossdock",
				"CROSSDOCK_GRPC_ADDR":    ":5050",
				"CROSSDOCK_HTTP_ADDR":    ":3000",
				"CROSSDOCK_NATS_URL":     "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name: "BadTimezone",
			env: map[string]string{
				"CROSSDOCK_DATABASE_URL": "postgres://localhost/crossdock",
				"CROSSDOCK_TIMEZONE":     "Mars/Olympus_Mons",
			},
			wantErr: true,
		},
		{
			name: "BadLogLevel",
			env: map[string]string{
				"CROSSDOCK_DATABASE_URL": "postgres://localhost/crossdock",
				"CROSSDOCK_LOG_LEVEL":    "chatty",
			},
			wantErr: true,
		},
		{
			name: "BadAckSuffix",
			env: map[string]string{
				"CROSSDOCK_DATABASE_URL": "postgres://localhost/crossdock",
				"CROSSDOCK_ACK_SUFFIX":   "six",
			},
			wantErr: true,
		},
		{
			name: "NegativeCooldown",
			env: map[string]string{
				"CROSSDOCK_DATABASE_URL":       "postgres://localhost/crossdock",
				"CROSSDOCK_INVENTORY_COOLDOWN": "-5s",
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.env["CROSSDOCK_DATABASE_URL"] {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.env["CROSSDOCK_DATABASE_URL"])
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("CROSSDOCK_DATABASE_URL", "postgres://localhost/crossdock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"StoreTimeout", cfg.StoreTimeout, 10 * time.Second},
		{"SessionIdle", cfg.SessionIdle, 8 * time.Hour},
		{"InventoryTimeout", cfg.InventoryTimeout, 20 * time.Second},
		{"InventoryCooldown", cfg.InventoryCooldown, 60 * time.Second},
		{"InventoryCacheTTL", cfg.InventoryCacheTTL, 24 * time.Hour},
		{"SyncInterval", cfg.SyncInterval, 3 * time.Minute},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.AckSuffix != 6 {
		t.Errorf("AckSuffix = %d, want 6", cfg.AckSuffix)
	}
	if cfg.InventoryCacheSize != 10000 {
		t.Errorf("InventoryCacheSize = %d, want 10000", cfg.InventoryCacheSize)
	}
	if cfg.Location == nil || cfg.Location.String() != "America/Sao_Paulo" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q, want %q", cfg.SyncS3Region, "us-east-1")
	}
	if cfg.SyncS3Key != "crossdock/backup.jsonl" {
		t.Errorf("SyncS3Key = %q, want %q", cfg.SyncS3Key, "crossdock/backup.jsonl")
	}
	if cfg.InventoryDSN != "" || cfg.RedisAddr != "" {
		t.Error("optional backends should default to disabled")
	}
}

func TestLoadCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("CROSSDOCK_DATABASE_URL", "postgres://localhost/crossdock")
	t.Setenv("CROSSDOCK_INVENTORY_DSN", "erp:secret@tcp(erp:3306)/erp")
	t.Setenv("CROSSDOCK_INVENTORY_COOLDOWN", "2m")
	t.Setenv("CROSSDOCK_REDIS_ADDR", "redis:6379")
	t.Setenv("CROSSDOCK_ACK_SUFFIX", "4")
	t.Setenv("CROSSDOCK_TIMEZONE", "UTC")
	t.Setenv("CROSSDOCK_LOG_LEVEL", "debug")
	t.Setenv("CROSSDOCK_SYNC_INTERVAL", "0s")
	t.Setenv("CROSSDOCK_SYNC_S3_BUCKET", "my-bucket")
	t.Setenv("CROSSDOCK_SYNC_S3_ENDPOINT", "http://minio:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InventoryDSN != "erp:secret@tcp(erp:3306)/erp" {
		t.Errorf("InventoryDSN = %q", cfg.InventoryDSN)
	}
	if cfg.InventoryCooldown != 2*time.Minute {
		t.Errorf("InventoryCooldown = %v", cfg.InventoryCooldown)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.AckSuffix != 4 {
		t.Errorf("AckSuffix = %d", cfg.AckSuffix)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.SyncInterval != 0 {
		t.Errorf("SyncInterval = %v, want 0 (disabled)", cfg.SyncInterval)
	}
	if cfg.SyncS3Bucket != "my-bucket" || cfg.SyncS3Endpoint != "http://minio:9000" {
		t.Errorf("S3 = %q %q", cfg.SyncS3Bucket, cfg.SyncS3Endpoint)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("CROSSDOCK_HTTP_ADDR", ":7000")

	path := filepath.Join(t.TempDir(), "crossdock.env")
	content := "CROSSDOCK_DATABASE_URL=postgres://file/crossdock\nCROSSDOCK_HTTP_ADDR=:9999\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv only fills variables that are unset, so drop the cleared one.
	os.Unsetenv("CROSSDOCK_DATABASE_URL")

	if err := LoadEnvFiles(path); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/crossdock" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, existing env must win", cfg.HTTPAddr)
	}
}

func TestLoadEnvFiles_MissingDefaultIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := LoadEnvFiles(); err != nil {
		t.Errorf("LoadEnvFiles() = %v, want nil without ./.env", err)
	}
}

func TestLoadEnvFiles_MissingExplicitFails(t *testing.T) {
	if err := LoadEnvFiles(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
