package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/tradewind/internal/app"
	"github.com/ternarybob/tradewind/internal/models"
	"github.com/ternarybob/tradewind/internal/services/backtest"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay stored sentiment history through the pipeline",
	Long:  `Replays the stored sentiment rows between two dates through both strategy pipelines against simulated portfolios and persists the run.`,
	RunE:  runBacktest,
}

var (
	backtestStart  string
	backtestEnd    string
	backtestName   string
	backtestBudget float64
)

func init() {
	backtestCmd.Flags().StringVar(&backtestStart, "start", "", "Start date (YYYY-MM-DD, inclusive)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "End date (YYYY-MM-DD, inclusive)")
	backtestCmd.Flags().StringVar(&backtestName, "name", "", "Run name")
	backtestCmd.Flags().Float64Var(&backtestBudget, "budget", 0, "Per-strategy daily budget in EUR (default per-strategy config)")
	backtestCmd.MarkFlagRequired("start")
	backtestCmd.MarkFlagRequired("end")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	run, err := application.Backtest.Run(ctx, backtest.RunOptions{
		Start:     backtestStart,
		End:       backtestEnd,
		Name:      backtestName,
		BudgetEUR: backtestBudget,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Backtest %s (%s): %s\n", run.ID, run.Name, run.Status)
	for _, tag := range []models.StrategyTag{models.StrategyConservative, models.StrategyAggressive} {
		summary, ok := run.Summaries[tag]
		if !ok {
			continue
		}
		fmt.Printf("  %-12s  days=%d trades=%d invested=%.2f value=%.2f realized=%.2f unrealized=%.2f\n",
			tag, summary.Days, summary.Trades, summary.Invested, summary.FinalValue,
			summary.RealizedPnL, summary.UnrealizedPnL)
	}
	return nil
}
