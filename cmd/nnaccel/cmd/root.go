// Package cmd provides the command-line interface of nnaccel.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nnaccel/config"
)

var (
	envFile string
	cfg     config.Config
	logger  *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nnaccel",
	Short: "nnaccel simulates the scheduler of a dual-mode inference accelerator.",
	Long: `nnaccel simulates the scheduler of a dual-mode inference ` +
		`accelerator that runs either a 3x3 convolution layer or a two-layer ` +
		`dense network. Settings come from NNACCEL_* environment variables, ` +
		`an optional .env file, and command-line flags, in increasing order ` +
		`of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error

		if envFile != "" {
			cfg, err = config.Load(envFile)
		} else {
			cfg, err = config.Load()
		}

		if err != nil {
			return err
		}

		logger = newLogger(cfg.LogLevel)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"read settings from this file instead of ./.env")
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	return 0
}
