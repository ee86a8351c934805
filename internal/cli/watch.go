package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		interval  time.Duration
		dataStore string
	)
	cmd := &cobra.Command{
		Use:   "watch CONFIG_FILE",
		Short: "Run the configured searches on an interval until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), args[0], interval, dataStore)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "time between runs")
	cmd.Flags().StringVar(&dataStore, "data-store", "", "path of the file data store (default ~/.ek-scraper/datastore.json)")
	return cmd
}

func runWatch(ctx context.Context, configPath string, interval time.Duration, dataStore string) error {
	log := newLogger()
	if interval < time.Minute {
		return fmt.Errorf("interval %s is below the one minute minimum", interval)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The data store is opened and closed per run, so the file backend
	// persists after every cycle and an interrupt loses at most the
	// current one.
	runCycle := func() {
		if err := runOnce(ctx, configPath, runFlags{dataStore: dataStore}); err != nil {
			log.Error("scheduled run failed", slog.String("error", err.Error()))
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), runCycle); err != nil {
		return fmt.Errorf("schedule runs: %w", err)
	}

	log.Info("watching searches", slog.Duration("interval", interval))
	runCycle()
	c.Start()

	<-ctx.Done()
	log.Info("shutting down")
	cronCtx := c.Stop()
	<-cronCtx.Done()
	return nil
}
