package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/tradewind/internal/app"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/models"
	"github.com/ternarybob/tradewind/internal/services/supervisor"
)

var runDailyCmd = &cobra.Command{
	Use:   "run-daily",
	Short: "Run one daily decision cycle now",
	Long:  `Builds the signal digest, runs both strategy pipelines and executes the resulting buy picks. Skips silently on non-trading days unless --force is set.`,
	RunE:  runDaily,
}

var (
	runDailyDate    string
	runDailyForce   bool
	runDailySkipEOD bool
)

func init() {
	runDailyCmd.Flags().StringVar(&runDailyDate, "date", "", "Cycle date (YYYY-MM-DD, default today)")
	runDailyCmd.Flags().BoolVar(&runDailyForce, "force", false, "Bypass the trading-day gate")
	runDailyCmd.Flags().BoolVar(&runDailySkipEOD, "skip-eod", false, "Skip the end-of-day snapshot after the cycle")
}

func runDaily(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	opts := supervisor.Options{Force: runDailyForce}
	if runDailyDate != "" {
		date, err := common.ParseDate(runDailyDate, config.Location())
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", runDailyDate, err)
		}
		opts.Date = date
	}

	result := application.Supervisor.RunDailyCycle(ctx, opts)
	switch result.Status {
	case models.CycleSkipped:
		logger.Info().
			Str("date", result.Date).
			Str("reason", result.Reason).
			Msg("Cycle skipped")
		return nil
	case models.CycleError:
		return fmt.Errorf("cycle failed at %s: %s", result.Stage, result.Error)
	}

	for tag, execution := range result.Executions {
		logger.Info().
			Str("strategy", string(tag)).
			Float64("spent", execution.TotalSpent).
			Int("bought", len(execution.Bought)).
			Int("failed", len(execution.Failed)).
			Msg("Execution summary")
	}

	if !runDailySkipEOD {
		if err := application.Supervisor.RunEODSnapshot(ctx); err != nil {
			logger.Warn().Err(err).Msg("End-of-day snapshot failed")
		}
	}
	return nil
}
