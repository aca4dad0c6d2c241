package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightscreen/lightscreen/screen"
)

var (
	logLevel   string // Log verbosity level
	configPath string // Optional YAML config over the reference defaults
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lightscreen",
	Short: "Light-sensitivity screening metrics engine (advisory, non-diagnostic)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// loadConfig returns the reference configuration, or the file named by --config over it.
func loadConfig() (screen.Config, error) {
	if configPath == "" {
		return screen.DefaultConfig(), nil
	}
	cfg, err := screen.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	logrus.Infof("Loaded config from %s", configPath)
	return cfg, nil
}

// Execute runs the CLI root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to the reference configuration)")
}
