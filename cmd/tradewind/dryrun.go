package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/tradewind/internal/app"
	"github.com/ternarybob/tradewind/internal/models"
	"github.com/ternarybob/tradewind/internal/services/supervisor"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Run digest and pipelines without touching the broker",
	Long:  `Runs the full decision path and prints the resulting picks. No orders are placed and nothing is blacklisted.`,
	RunE:  runDryRun,
}

var (
	dryRunBudget   float64
	dryRunLookback int
)

func init() {
	dryRunCmd.Flags().Float64Var(&dryRunBudget, "budget", 0, "Override both strategies' budget in EUR")
	dryRunCmd.Flags().IntVar(&dryRunLookback, "lookback", 0, "Override the insider lookback window in days")
}

func runDryRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dryRunBudget > 0 {
		config.Strategies.Conservative.BudgetEUR = dryRunBudget
		config.Strategies.Aggressive.BudgetEUR = dryRunBudget
	}
	if dryRunLookback > 0 {
		config.Signals.InsiderLookbackDays = dryRunLookback
	}

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	result := application.Supervisor.RunDailyCycle(ctx, supervisor.Options{Force: true, DryRun: true})
	switch result.Status {
	case models.CycleSkipped:
		logger.Info().Str("reason", result.Reason).Msg("Nothing to decide")
		return nil
	case models.CycleError:
		return fmt.Errorf("dry run failed at %s: %s", result.Stage, result.Error)
	}

	for tag, pipelineResult := range result.Pipelines {
		if pipelineResult.Failed() {
			fmt.Printf("%s: pipeline failed at %s: %s\n", tag, pipelineResult.Stage, pipelineResult.Err)
			continue
		}
		if pipelineResult.Review == nil {
			continue
		}
		payload, err := json.MarshalIndent(pipelineResult.Review, "", "  ")
		if err != nil {
			continue
		}
		fmt.Printf("%s picks:\n%s\n", tag, payload)
	}
	return nil
}
