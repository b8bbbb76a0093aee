package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/config"
	"github.com/alfredjeanlab/crossdock/internal/events"
	"github.com/alfredjeanlab/crossdock/internal/inventory"
	"github.com/alfredjeanlab/crossdock/internal/server"
	"github.com/alfredjeanlab/crossdock/internal/session"
	"github.com/alfredjeanlab/crossdock/internal/store/postgres"
	xdsync "github.com/alfredjeanlab/crossdock/internal/sync"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the crossdock HTTP and gRPC server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")
		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		// Connect to Postgres and apply migrations.
		store, err := postgres.New(cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return err
		}
		var closers []io.Closer
		closers = append(closers, store)
		defer func() {
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i].Close(); err != nil {
					logger.Error("error during shutdown", "err", err)
				}
			}
		}()

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (CROSSDOCK_NATS_URL not set)")
		}
		closers = append(closers, publisher)

		gateway, gatewayClosers, err := newGateway(cfg, logger)
		if err != nil {
			return err
		}
		closers = append(closers, gatewayClosers...)

		// Create server components.
		xdServer := server.NewCrossdockServer(store, server.Options{
			Publisher: publisher,
			Gateway:   gateway,
			Logger:    logger,
			Location:  cfg.Location,
			AckSuffix: cfg.AckSuffix,
		})
		xdServer.Sessions.StartReaper(&session.ReaperConfig{
			IdleThreshold: cfg.SessionIdle,
			OnEvict: func(e session.Entry) {
				logger.Info("session evicted", "session_id", e.ID, "identity", e.Identity, "idle_secs", e.IdleSecs)
			},
		})
		defer xdServer.Sessions.Stop()

		grpcServer, healthServer := server.NewGRPCServer(xdServer, cfg.AuthToken, logger)

		// Start gRPC listener.
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           xdServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start sync scheduler if any destinations are configured.
		var scheduler *xdsync.Scheduler
		if cfg.SyncInterval > 0 {
			backupDir, _ := cmd.Flags().GetString("backup-dir")
			if dests := syncDestinations(context.Background(), cfg, logger, backupDir); len(dests) > 0 {
				scheduler = xdsync.NewScheduler(store, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("crossdock server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"timezone", cfg.Location.String(),
			"inventory", gateway.Enabled(),
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	},
}

// newGateway builds the inventory gateway: a MySQL backend when a DSN is
// configured, fronted by Redis when shared across replicas or an in-process
// LRU otherwise.
func newGateway(cfg *config.Config, logger *slog.Logger) (*inventory.Gateway, []io.Closer, error) {
	opts := inventory.Options{
		Timeout:  cfg.InventoryTimeout,
		Cooldown: cfg.InventoryCooldown,
		Logger:   logger,
	}
	if cfg.InventoryDSN == "" {
		logger.Info("inventory lookups disabled (CROSSDOCK_INVENTORY_DSN not set)")
		return inventory.NewGateway(nil, opts), nil, nil
	}

	backend, err := inventory.NewMySQLBackend(cfg.InventoryDSN, cfg.InventoryTimeout)
	if err != nil {
		return nil, nil, err
	}
	closers := []io.Closer{backend}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  inventory.DefaultCacheTimeout,
			ReadTimeout:  inventory.DefaultCacheTimeout,
			WriteTimeout: inventory.DefaultCacheTimeout,
			MaxRetries:   -1,
		})
		closers = append(closers, rdb)
		opts.Cache = inventory.NewRedisCache(rdb, cfg.InventoryCacheTTL, logger)
		logger.Info("inventory cache: redis", "addr", cfg.RedisAddr, "ttl", cfg.InventoryCacheTTL)
	} else {
		opts.Cache = inventory.NewLRUCache(cfg.InventoryCacheSize, cfg.InventoryCacheTTL)
		logger.Info("inventory cache: in-process", "size", cfg.InventoryCacheSize, "ttl", cfg.InventoryCacheTTL)
	}
	return inventory.NewGateway(backend, opts), closers, nil
}

// syncDestinations returns the configured backup destinations. dir adds a
// local file destination.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger, dir string) []xdsync.Destination {
	var dests []xdsync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := xdsync.NewS3Destination(ctx,
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if dir != "" {
		dests = append(dests, xdsync.NewFileDestination(dir, "crossdock-{date}.jsonl"))
		logger.Info("sync file destination enabled", "dir", dir)
	}
	return dests
}

func init() {
	serveCmd.Flags().StringSlice("env-file", nil, "environment files to load (default .env)")
	serveCmd.Flags().String("backup-dir", "", "also write periodic JSONL backups to this directory")
}
