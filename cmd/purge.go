package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-verifier/internal/config"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
	"github.com/akylbek/payment-system/payment-verifier/internal/telemetry"
)

func purgeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete pending payments with corrupt (negative) amounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			removed, err := repository.NewPaymentRepository(db).PurgeCorrupt(ctx)
			if err != nil {
				return fmt.Errorf("failed to purge payments: %w", err)
			}

			telemetry.Logger.Info("Purged corrupt payments", zap.Int64("removed", removed))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d corrupt pending payment(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "maximum time to wait for the database")

	return cmd
}
