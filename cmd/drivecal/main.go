package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"drivecal/internal/config"
	appLog "drivecal/internal/log"
)

var (
	configPath string
	logLevel   string

	// conf is loaded once by the root command before any subcommand runs.
	conf *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "drivecal",
	Short:         "drivecal mirrors the driving school's ERP calendar into a weekly seat grid.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
		conf = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./drivecal.yaml", "Path to config file (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		appLog.Error("drivecal failed", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
