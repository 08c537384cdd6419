package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/logger"
)

const Version = "0.1.0"

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile string
	// Verbose enables debug logging.
	Verbose bool

	// rootCmd is the base command for digibankup.
	rootCmd = &cobra.Command{
		Use:   "digibankup",
		Short: "Rotating backups of a FOG Project server",
		Long: `digibankup backs up the FOG Project database, images, snapins and
reports into numbered generations under a backups root, keeping a
configurable number of them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file (default $HOME/.digibankup.yaml)")
	rootCmd.PersistentFlags().
		BoolVarP(&Verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the configuration from ConfigFile, the environment and
// the defaults.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := cfg.Load(ConfigFile); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the run's logger. The file sink keeps as many rotated
// files as there are generations.
func newLogger(cfg config.Config) logger.Logger {
	if !cfg.Settings.Log {
		return logger.Nop()
	}
	opts := []logger.Option{}
	if Verbose {
		opts = append(opts, logger.WithLevel(zapcore.DebugLevel))
	}
	if cfg.Paths.Log != "" {
		opts = append(opts, logger.WithFile(cfg.Paths.Log, 10, cfg.Settings.BackupCount))
	}
	return logger.New(opts...)
}

// consoleLogger logs to stderr only, or nowhere when settings.log is off.
func consoleLogger(cfg config.Config) logger.Logger {
	if !cfg.Settings.Log {
		return logger.Nop()
	}
	if Verbose {
		return logger.New(logger.WithLevel(zapcore.DebugLevel))
	}
	return logger.New()
}
