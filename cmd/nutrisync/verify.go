package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/nutrisync/internal/config"
	"github.com/hyperengineering/nutrisync/internal/store"
	"github.com/hyperengineering/nutrisync/internal/verify"
)

var verifyOwnerID string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a one-shot integrity pass and print the drift report",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyOwnerID, "owner", "", "verify a single owner (default: all)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := verify.New(db).Run(cmd.Context(), verifyOwnerID)
	if err != nil {
		return fmt.Errorf("verification pass: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !report.Clean() {
		return fmt.Errorf("%d record(s) drifted", len(report.Drift))
	}
	return nil
}
