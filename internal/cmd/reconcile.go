package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/yourorg/labtrack/internal/infrastructure/redis"
	"github.com/yourorg/labtrack/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Converge a sample's instance records onto a receiving-line quantity",
	Long: `Deletes and recreates the instance records for a sample so their count
matches the given quantity. Existing codes are regenerated as a fresh
contiguous serial run for today's date and the sample's partner code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sampleID, _ := cmd.Flags().GetString("sample")
		quantity, _ := cmd.Flags().GetInt("quantity")
		if sampleID == "" {
			return fmt.Errorf("--sample is required")
		}

		sample, err := a.client.Samples.Get(cmd.Context(), sampleID)
		if err != nil {
			return fmt.Errorf("load sample: %w", err)
		}

		var locker reconcile.Locker
		if a.cfg.RedisURL != "" {
			redisClient, err := redis.NewClient(a.cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer redisClient.Close()
			locker = redisClient
		} else {
			a.log.Debug("no REDIS_URL configured, reconcile lock is process-local only")
		}

		r := reconcile.New(a.client, a.client, locker, a.cfg.ReconcileLockTTL, a.log)
		if err := r.Reconcile(cmd.Context(), *sample, quantity); err != nil {
			return err
		}

		a.log.Info("reconciliation finished",
			slog.String("sample", sample.Code),
			slog.Int("quantity", quantity),
		)
		fmt.Printf("✓ Sample %s now has %d instance(s)\n", sample.Code, quantity)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().String("sample", "", "sample id")
	reconcileCmd.Flags().Int("quantity", 0, "target instance count")
	rootCmd.AddCommand(reconcileCmd)
}
