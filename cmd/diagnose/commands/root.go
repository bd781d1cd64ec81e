package commands

import (
	"fmt"
	"os"

	"github.com/Harshitk-cp/diagnostician/internal/buildconfig"
	"github.com/Harshitk-cp/diagnostician/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Diagnose - multi-perspective diagnostic reasoning from the terminal",
	Long: `Diagnose runs an investigation in process, without the HTTP server or a
database. Configuration is read from the same environment (and DIAG_ENV file)
as the server.`,
	Version:       buildconfig.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load()
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error). Logs go to stderr.")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(kbCmd)
}

// newLogger writes human-readable logs to stderr so they never mix with the
// case transcript on stdout.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
