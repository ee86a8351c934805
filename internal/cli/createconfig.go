package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonasehrlich/ek-scraper/internal/config"
)

func newCreateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-config CONFIG_FILE",
		Short: "Write an example configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, not overwriting", path)
			} else if !os.IsNotExist(err) {
				return err
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			log.Info("wrote example configuration", slog.String("path", path))
			return nil
		},
	}
}
