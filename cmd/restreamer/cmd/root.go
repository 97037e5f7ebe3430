// Package cmd implements the CLI commands for restreamer.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/restreamer/internal/config"
	"github.com/jmylchreest/restreamer/internal/observability"
	"github.com/jmylchreest/restreamer/internal/version"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string
	// envFiles lists dotenv files loaded before the configuration.
	envFiles []string
	// appConfig is the loaded configuration, set before any command runs.
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "restreamer",
	Short:   "Scheduled RTMP relay service",
	Version: version.Short(),
	Long: `restreamer relays stored video files to live streaming platforms
(YouTube, Facebook, Twitch or any RTMP ingest) through supervised ffmpeg
processes.

Streams can be started on demand through the REST API or by recurring
schedules (once, daily, weekly or cron).`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// initConfig references rootCmd.PersistentFlags
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfig()
	}

	// Flags are not bound to viper; explicit flags override config and env
	// values after loading.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default is ./.env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig loads dotenv files and configuration, then configures logging.
//
// Priority order (highest to lowest):
//  1. CLI flags - only if explicitly provided
//  2. Environment variables (RESTREAMER_*), including dotenv files
//  3. Config file values
//  4. Built-in defaults
func initConfig() error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		cfg.Logging.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	observability.SetDefault(observability.NewLoggerWithWriter(cfg.Logging, os.Stderr))
	appConfig = cfg
	return nil
}
