package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/backfill"
	"github.com/sells-group/govscout/internal/state"
)

var (
	backfillMonths   int
	backfillNoResume bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Historical SAM.gov opportunity crawl",
}

var backfillStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Crawl historical opportunities month by month",
	Long:  "Walks calendar months newest-first, resuming from the last checkpoint. Safe to interrupt and re-run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if backfillNoResume {
			zap.L().Info("discarding backfill checkpoint")
			if err := env.Checkpoints.SaveBackfill(ctx, state.NewBackfillState()); err != nil {
				return err
			}
		}

		if err := env.Backfill.Run(ctx, backfillMonths); err != nil {
			return err
		}

		status, err := env.Backfill.Status(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("backfill finished",
			zap.String("status", status.Status),
			zap.Int("months_done", len(status.MonthsDone)),
			zap.Int("upserted", status.TotalUpserted),
			zap.Int("pages", status.TotalPagesFetched))
		return nil
	},
}

var backfillStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backfill progress and resume point",
	RunE: func(cmd *cobra.Command, args []string) error {
		checkpoints, err := state.NewSQLite(cfg.State.Path)
		if err != nil {
			return err
		}
		defer checkpoints.Close() //nolint:errcheck

		// Status only reads the checkpoint; no source or store needed.
		coord := backfill.New(nil, nil, checkpoints, backfill.Options{})
		status, err := coord.Status(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	backfillStartCmd.Flags().IntVar(&backfillMonths, "months", 12, "how many months of history to crawl")
	backfillStartCmd.Flags().BoolVar(&backfillNoResume, "no-resume", false, "discard the saved checkpoint and start fresh")
	backfillCmd.AddCommand(backfillStartCmd, backfillStatusCmd)
	rootCmd.AddCommand(backfillCmd)
}
