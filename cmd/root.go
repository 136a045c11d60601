package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stationdist",
	Short: "Road-network distance from fire and EMS stations to incidents",
	Long: "Builds a drivable road graph for the service area, snaps incidents and stations to it, " +
		"and reports the road distance from every eligible station plus the closest one.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
