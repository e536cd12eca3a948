package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/tradedesk/internal/app"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <api-key> <api-secret>",
	Short: "Save API credentials",
	Long: `Store API credentials in the configured storage so that later runs
start connected.

Example:
  tradedesk connect MYAPIKEY12345 MYAPISECRET12345`,
	Args: cobra.ExactArgs(2),
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Desk.SetCredentials(context.Background(), args[0], args[1]); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	creds := a.Desk.Credentials()
	fmt.Printf("✓ Connected with API key %s\n", creds.Key)
	if cfg.Storage.Type == "memory" {
		fmt.Println("  Storage is in-memory; credentials will not survive this run.")
	}
	return nil
}
