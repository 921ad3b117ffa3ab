package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/delegation"
	"github.com/spf13/cobra"
)

// sweeperCmd runs the expiry sweep as a standalone process, for deployments
// that prefer a single sweeping instance over the in-server schedule.
var sweeperCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Run the delegation expiry sweeper",
	Long:  `Periodically deactivates expired delegations and cascades through everything chained on them.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSweeper()
	},
}

func runSweeper() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	c := startSweeper(deps.Config.Sweep, deps.Sweeper, deps.Logger)
	if c == nil {
		fmt.Fprintln(os.Stderr, "invalid sweep schedule")
		os.Exit(1)
	}

	deps.Logger.Info("sweeper is running", "schedule", deps.Config.Sweep.Schedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	deps.Logger.Info("received signal, stopping sweeper", "signal", sig)
	<-c.Stop().Done()
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("database close error", "error", err)
	}
}

// startSweeper schedules the expiry sweep. The sweep is idempotent, so
// overlapping runs or multiple instances are safe, just wasteful.
func startSweeper(cfg internal.SweepConfig, svc *delegation.Service, lg *slog.Logger) *cron.Cron {
	if cfg.Schedule == "" {
		lg.Info("expiry sweep disabled, no schedule configured")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		swept, err := svc.SweepExpired(ctx, cfg.BatchSize)
		if err != nil {
			lg.Error("expiry sweep failed", "error", err)
			return
		}
		if swept > 0 {
			lg.Info("expiry sweep complete", "revoked", swept)
		}
	})
	if err != nil {
		lg.Error("invalid sweep schedule", "schedule", cfg.Schedule, "error", err)
		return nil
	}

	c.Start()
	return c
}
