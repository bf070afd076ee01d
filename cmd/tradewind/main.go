package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
)

var (
	// Command-line flags
	configFiles []string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "tradewind",
	Short:         "Signal-driven equity trading orchestrator",
	Long:          `Tradewind collects insider and politician buy signals, runs them through a staged LLM pipeline and executes the resulting picks under a daily budget.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")

	rootCmd.AddCommand(runDailyCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(sellChecksCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(dryRunCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

// initRuntime loads configuration, initializes the logger and prints the
// banner. Startup order matters: config first, then logger, then banner.
func initRuntime() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("tradewind.toml"); err == nil {
			configFiles = append(configFiles, "tradewind.toml")
		}
	}

	var err error
	config, err = common.LoadConfig(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger = common.InitLogger(config)
	common.PrintBanner()

	logger.Debug().
		Strs("config_files", configFiles).
		Str("timezone", config.Timezone).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
