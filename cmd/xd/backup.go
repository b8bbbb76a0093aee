package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/config"
	"github.com/alfredjeanlab/crossdock/internal/store/postgres"
	xdsync "github.com/alfredjeanlab/crossdock/internal/sync"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export all manifests and volumes as JSONL",
	Long: `Export all manifests and volumes as JSONL.

Reads the database directly using the server's environment. By default the
export is written to stdout; --push sends it to the configured S3 bucket
and --dir instead, as the server's sync scheduler would.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Talks to the database, not the server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		push, _ := cmd.Flags().GetBool("push")
		dir, _ := cmd.Flags().GetString("dir")
		output, _ := cmd.Flags().GetString("output")

		if err := config.LoadEnvFiles(); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

		store, err := postgres.New(cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		if push || dir != "" {
			dests := syncDestinations(ctx, cfg, logger, dir)
			if len(dests) == 0 {
				return fmt.Errorf("no backup destination configured (set CROSSDOCK_SYNC_S3_BUCKET or --dir)")
			}
			return xdsync.NewScheduler(store, dests, 0, logger).SyncOnce(ctx)
		}

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		hdr, err := xdsync.ExportJSONL(ctx, store, w, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d manifests, %d volumes\n", hdr.ManifestCount, hdr.VolumeCount)
		return nil
	},
}

func init() {
	backupCmd.Flags().Bool("push", false, "send the export to the configured destinations")
	backupCmd.Flags().String("dir", "", "write the export into this directory")
	backupCmd.Flags().StringP("output", "o", "", "write the export to a file instead of stdout")
}
