package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nutrisync/internal/config"
	"github.com/hyperengineering/nutrisync/internal/store"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run a one-shot retention sweep (expired tombstones and idempotency entries)",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	cutoff := time.Now().Add(-time.Duration(cfg.Worker.TombstoneRetention))

	tombstones, err := db.DeleteTombstonesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete tombstones: %w", err)
	}

	idempotency, err := db.CleanExpiredIdempotency(ctx)
	if err != nil {
		return fmt.Errorf("clean idempotency: %w", err)
	}

	fmt.Printf("removed %d tombstone(s) older than %s and %d idempotency entrie(s)\n",
		tombstones, cutoff.UTC().Format(time.RFC3339), idempotency)
	return nil
}
