package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/pipeline"
)

type runFlags struct {
	dataStore       string
	tempDataStore   bool
	noNotifications bool
	prune           bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run CONFIG_FILE",
		Short: "Run all configured searches once",
		Long: `Run all configured searches once, record newly observed ads in the
data store and send notifications for them.

The first run against an empty data store records every current ad
without notifying; combine with --no-notifications to make that
explicit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.dataStore, "data-store", "", "path of the file data store (default ~/.ek-scraper/datastore.json)")
	cmd.Flags().BoolVar(&flags.tempDataStore, "temp-data-store", false, "use a temporary in-memory data store, discarded on exit")
	cmd.Flags().BoolVar(&flags.noNotifications, "no-notifications", false, "update the data store without sending notifications")
	cmd.Flags().BoolVar(&flags.prune, "prune", false, "drop ads from the data store that are no longer listed")
	return cmd
}

func runOnce(ctx context.Context, configPath string, flags runFlags) error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, flags.dataStore, flags.tempDataStore, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Error("closing data store failed", slog.String("error", cerr.Error()))
		}
	}()

	var opts []pipeline.Option
	if flags.noNotifications {
		opts = append(opts, pipeline.WithoutNotifications())
	}
	if flags.prune {
		opts = append(opts, pipeline.WithPrune())
	}

	p, err := pipeline.New(cfg, st, log, opts...)
	if err != nil {
		return err
	}
	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	log.Info("run finished",
		slog.Int("searches", len(cfg.Searches)),
		slog.Int("failed", len(summary.SearchErrors)),
		slog.Int("new_ads", summary.NewAdCount()))

	// Delivery failures are already logged by the dispatcher and must not
	// fail the run; the store state is committed either way.
	if summary.Failed() {
		return fmt.Errorf("%d of %d searches failed", len(summary.SearchErrors), len(cfg.Searches))
	}
	return nil
}
