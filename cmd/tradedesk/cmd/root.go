package cmd

import (
	"fmt"

	"github.com/rustyeddy/tradedesk/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradedesk",
	Short: "A simulated crypto trading desk",
	Long: `Tradedesk keeps API credentials, an activity log and an order ledger,
and simulates fulfillment of submitted orders.

It provides tools for:
  - Serving the dashboard API and notification stream
  - Connecting API credentials
  - Placing demo orders against the simulated venue
  - Reading and exporting the activity log`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
}

// loadConfig reads --config, or returns the defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
