package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/govscout/internal/api"
	"github.com/sells-group/govscout/internal/digest"
	"github.com/sells-group/govscout/internal/scheduler"
)

var (
	servePort      int
	serveScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background scout scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if serveScheduler {
			var notifier scheduler.Notifier
			if cfg.Digest.WebhookURL != "" {
				notifier = digest.NewNotifier(cfg.Digest.WebhookURL)
			}
			sched := scheduler.New(env.Scout, notifier, scheduler.Options{
				Interval: time.Duration(cfg.Scout.IntervalHours) * time.Hour,
			})
			go sched.Start(ctx)
		}

		srv := api.New(api.Deps{
			Store:     env.Store,
			Engine:    env.Engine,
			Scout:     env.Scout,
			Backfill:  env.Backfill,
			Scorer:    env.Scorer,
			Generator: env.Generator,
			Spending:  env.Spending,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveScheduler, "scheduler", true, "run the periodic scout scheduler")
	rootCmd.AddCommand(serveCmd)
}
