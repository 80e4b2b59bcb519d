// Package cmd implements the fxbridge command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dshills/fxbridge/internal/config"
	"github.com/dshills/fxbridge/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// Resolved by the root command before any subcommand runs.
	appCfg *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fxbridge",
	Short: "Formula editor state bridge",
	Long: `fxbridge connects a formula editor to a remote formula-language service.

It relays language-protocol messages, evaluates the current formula against
a record context and publishes the resulting editor state. A local
development service is included for running the bridge end to end.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (.toml, .yaml or .json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// loadConfig resolves defaults, the config file and FXBRIDGE_* variables,
// then applies flag overrides.
func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()

	appCfg = cfg
	logger = logging.New(lc)
	return nil
}
