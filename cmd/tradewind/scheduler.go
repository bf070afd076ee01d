package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/tradewind/internal/app"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the weekday job scheduler until interrupted",
	Long:  `Starts the cron scheduler with the configured collect, decide and end-of-day jobs and blocks until SIGINT or SIGTERM.`,
	RunE:  runScheduler,
}

func runScheduler(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Scheduler.Start(); err != nil {
		return err
	}

	logger.Info().
		Str("execute_time", config.Scheduler.ExecuteTime).
		Str("eod_time", config.Scheduler.EODTime).
		Strs("collect_times", config.Scheduler.CollectTimes).
		Str("timezone", config.Timezone).
		Msg("Scheduler running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, stopping scheduler")
	return application.Scheduler.Stop()
}
