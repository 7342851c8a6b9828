package cli

import (
	"github.com/spf13/cobra"

	"github.com/eshaffer321/reconciler/internal/infrastructure/config"
)

// GlobalFlags are the persistent flags shared by every subcommand
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool

	concurrency int // run --concurrency override, 0 keeps the config value
}

func (f *GlobalFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.ConfigPath, "config", "config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&f.Verbose, "verbose", "v", false, "Verbose output (debug logging)")
}

// loadConfig reads the config file. An explicitly passed --config must load;
// the default path falls back to environment variables.
func (f *GlobalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flags().Changed("config") {
		return config.Load(f.ConfigPath)
	}
	return config.LoadOrEnvFrom(f.ConfigPath), nil
}

// loggingConfig applies --verbose on top of the configured level
func (f *GlobalFlags) loggingConfig(cfg *config.Config) config.LoggingConfig {
	logCfg := cfg.Observability.Logging
	if f.Verbose {
		logCfg.Level = "debug"
	}
	return logCfg
}

// userFlag registers a required --user flag on cmd
func userFlag(cmd *cobra.Command, userID *string) {
	cmd.Flags().StringVarP(userID, "user", "u", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user")
}
