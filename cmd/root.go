package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nugulmap/markers/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "markers",
	Short: "Points-of-interest marker service",
	Long:  "Serves the marker CRUD API and loads municipal smoking-area CSV datasets into the markers collection.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		switch cmd.Name() {
		case "serve", "ingest":
			if err := cfg.Validate(cmd.Name()); err != nil {
				zap.L().Error("invalid configuration", zap.String("command", cmd.Name()), zap.Error(err))
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
