// Package cli implements the stepcoin command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stepcoin",
	Short: "StepCoin fitness-currency backend",
	Long: `StepCoin converts walking and meditation into a redeemable in-app
currency. The daemon exposes the HTTP API the mobile app talks to; the
other commands inspect a running installation.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath returns the config file location, honoring STEPCOIN_HOME.
func configPath() string {
	if home := os.Getenv("STEPCOIN_HOME"); home != "" {
		return filepath.Join(home, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".stepcoin", "config.toml")
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}
