package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/snackwars/tallyd/internal/config"
	"github.com/snackwars/tallyd/internal/store/postgres"
)

// purgeCmd runs one expiry sweep and exits. Useful when the serve janitor
// is disabled (TALLYD_SWEEP_INTERVAL=0) and cleanup runs from cron instead.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired orders and connection entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("purge requires TALLYD_DATABASE_URL")
		}

		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		n, err := st.PurgeExpired(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("purging expired rows: %w", err)
		}
		fmt.Printf("purged %d expired rows\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
