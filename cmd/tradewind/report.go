package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/tradewind/internal/app"
	"github.com/ternarybob/tradewind/internal/interfaces"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the latest end-of-day portfolio snapshot",
	RunE:  runReport,
}

var reportAccount string

func init() {
	reportCmd.Flags().StringVar(&reportAccount, "account", "both", "Account to report on (live, demo or both)")
}

func runReport(cmd *cobra.Command, args []string) error {
	var accounts []string
	switch reportAccount {
	case "live", "demo":
		accounts = []string{reportAccount}
	case "both":
		accounts = []string{"live", "demo"}
	default:
		return fmt.Errorf("invalid --account %q: expected live, demo or both", reportAccount)
	}

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := context.Background()
	for _, account := range accounts {
		snapshot, err := application.Snapshots.GetLatest(ctx, account)
		if errors.Is(err, interfaces.ErrNotFound) {
			fmt.Printf("%s: no snapshots stored\n", account)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s snapshot: %w", account, err)
		}

		fmt.Printf("%s (%s): cash=%.2f total=%.2f\n", account, snapshot.Date, snapshot.Cash, snapshot.TotalValue)
		for _, position := range snapshot.Positions {
			fmt.Printf("  %-8s qty=%.4f avg=%.2f\n", position.Ticker, position.Quantity, position.AvgBuyPrice)
		}
	}
	return nil
}
