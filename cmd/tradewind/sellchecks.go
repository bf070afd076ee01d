package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/tradewind/internal/app"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/services/supervisor"
)

var sellChecksCmd = &cobra.Command{
	Use:   "sell-checks",
	Short: "Evaluate sell rules on open positions now",
	Long:  `Checks every open position against the stop-loss, take-profit and hold-period rules and places the resulting sell orders.`,
	RunE:  runSellChecks,
}

var (
	sellChecksDate        string
	sellChecksRealOnly    bool
	sellChecksVirtualOnly bool
)

func init() {
	sellChecksCmd.Flags().StringVar(&sellChecksDate, "date", "", "Evaluation date (YYYY-MM-DD, default today)")
	sellChecksCmd.Flags().BoolVar(&sellChecksRealOnly, "real-only", false, "Only check live accounts")
	sellChecksCmd.Flags().BoolVar(&sellChecksVirtualOnly, "virtual-only", false, "Only check practice accounts")
	sellChecksCmd.MarkFlagsMutuallyExclusive("real-only", "virtual-only")
}

func runSellChecks(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	opts := supervisor.SellCheckOptions{
		RealOnly:    sellChecksRealOnly,
		VirtualOnly: sellChecksVirtualOnly,
	}
	if sellChecksDate != "" {
		date, err := common.ParseDate(sellChecksDate, config.Location())
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", sellChecksDate, err)
		}
		opts.Date = date
	}

	return application.Supervisor.RunSellChecks(ctx, opts)
}
