package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/tradedesk/broker"
	"github.com/rustyeddy/tradedesk/desk"
	"github.com/rustyeddy/tradedesk/internal/app"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through a simulated trading session",
	Long: `Run a short session against in-memory storage:

  1. Try to place an order while disconnected (rejected)
  2. Connect with demo credentials
  3. Place an order and wait for the simulated fill
  4. Print the activity log

Example:
  tradedesk demo --symbol ETHUSDT --side SELL --type LIMIT --price 2500`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

var (
	demoSymbol string
	demoSide   string
	demoType   string
	demoQty    string
	demoPrice  string
)

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVar(&demoSymbol, "symbol", "BTCUSDT", "trading pair")
	demoCmd.Flags().StringVar(&demoSide, "side", "BUY", "BUY or SELL")
	demoCmd.Flags().StringVar(&demoType, "type", "MARKET", "MARKET or LIMIT")
	demoCmd.Flags().StringVar(&demoQty, "qty", "0.001", "order quantity")
	demoCmd.Flags().StringVar(&demoPrice, "price", "", "limit price")
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Storage.Type = "memory"
	cfg.Journal.Sink = "none"
	cfg.Log.Level = "warn"

	req, err := demoRequest()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("=== Tradedesk demo ===")
	fmt.Println()

	fmt.Println("Placing an order before connecting...")
	if _, err := a.Desk.PlaceOrder(ctx, req); errors.Is(err, desk.ErrNotConnected) {
		fmt.Println("  rejected: not connected")
	}

	if err := a.Desk.SetCredentials(ctx, "DEMOKEY0000000001", "DEMOSECRET000000001"); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("Connected with API key %s\n", a.Desk.Credentials().Key)

	o, err := a.Desk.PlaceOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	fmt.Printf("Placed %s (%s)\n", o.ID, o.Status)
	fmt.Println("Waiting for the simulated fill...")

	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.Desk.WaitIdle(wctx); err != nil {
		return fmt.Errorf("wait for fill: %w", err)
	}

	o, _ = a.Desk.Order(o.ID)
	fmt.Printf("Order %s is %s\n", o.ID, o.Status)

	fmt.Println("\nActivity log:")
	return journal.WriteEntries(os.Stdout, a.Desk.Logs())
}

func demoRequest() (broker.OrderRequest, error) {
	qty, err := decimal.NewFromString(demoQty)
	if err != nil {
		return broker.OrderRequest{}, fmt.Errorf("qty: %w", err)
	}
	req := broker.OrderRequest{
		Symbol:   demoSymbol,
		Type:     broker.OrderType(strings.ToUpper(demoType)),
		Side:     broker.Side(strings.ToUpper(demoSide)),
		Quantity: qty,
	}
	if demoPrice != "" {
		p, err := decimal.NewFromString(demoPrice)
		if err != nil {
			return broker.OrderRequest{}, fmt.Errorf("price: %w", err)
		}
		req.Price = decimal.NewNullDecimal(p)
	}
	return req, req.Normalize().Validate()
}
