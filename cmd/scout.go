package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/digest"
	"github.com/sells-group/govscout/internal/scout"
	"github.com/sells-group/govscout/internal/state"
)

var scoutJSON bool

var scoutCmd = &cobra.Command{
	Use:   "scout",
	Short: "Incremental opportunity discovery",
}

var scoutRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scout cycle: fetch, score, and surface new opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Scout.Run(ctx)
		if err != nil {
			return err
		}

		if scoutJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		zap.L().Info("scout run complete",
			zap.Int("fetched", result.TotalFetched),
			zap.Int("scored", result.TotalScored),
			zap.Int("new", len(result.NewOpportunities)))
		for _, so := range result.NewOpportunities {
			cmd.Printf("%-18s %5.1f  %-8s %-30s %s\n",
				so.Opportunity.NoticeID,
				so.MatchScore.Overall,
				so.MatchTier,
				so.BestClusterName,
				so.Opportunity.Title)
		}

		if cfg.Digest.WebhookURL != "" && len(result.NewOpportunities) > 0 {
			notifier := digest.NewNotifier(cfg.Digest.WebhookURL)
			if err := notifier.SendRunDigest(ctx, result.RunAt, result.TotalFetched, result.NewOpportunities); err != nil {
				zap.L().Warn("digest delivery failed", zap.Error(err))
			}
		}
		return nil
	},
}

var scoutStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scout run history and the next scheduled window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		checkpoints, err := state.NewSQLite(cfg.State.Path)
		if err != nil {
			return err
		}
		defer checkpoints.Close() //nolint:errcheck

		// Status only reads the checkpoint; no sources or store needed.
		coord := scout.New(nil, nil, checkpoints, nil, scout.Options{
			Interval: time.Duration(cfg.Scout.IntervalHours) * time.Hour,
		})
		status, err := coord.Status(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	scoutRunCmd.Flags().BoolVar(&scoutJSON, "json", false, "print the full run result as JSON")
	scoutCmd.AddCommand(scoutRunCmd, scoutStatusCmd)
	rootCmd.AddCommand(scoutCmd)
}
