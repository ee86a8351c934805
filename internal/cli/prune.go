package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/pipeline"
)

func newPruneCmd() *cobra.Command {
	var dataStore string
	cmd := &cobra.Command{
		Use:   "prune CONFIG_FILE",
		Short: "Drop ads from the data store that are no longer listed",
		Long: `Scrape every configured search and remove all ads from the data store
that did not show up anymore. No notifications are sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), args[0], dataStore)
		},
	}
	cmd.Flags().StringVar(&dataStore, "data-store", "", "path of the file data store (default ~/.ek-scraper/datastore.json)")
	return cmd
}

func runPrune(ctx context.Context, configPath, dataStore string) error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg, dataStore, false, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Error("closing data store failed", slog.String("error", cerr.Error()))
		}
	}()

	p, err := pipeline.New(cfg, st, log,
		pipeline.WithoutNotifications(), pipeline.WithPrune())
	if err != nil {
		return err
	}
	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	log.Info("prune finished", slog.Int("dropped", summary.Pruned))
	if summary.Failed() {
		return fmt.Errorf("%d of %d searches failed", len(summary.SearchErrors), len(cfg.Searches))
	}
	return nil
}
