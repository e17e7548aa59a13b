package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xfc",
	Short: "Audit and prune the accounts you follow on X",
	Long: `x-following-cleaner scans the accounts you follow on X, finds the ones
that have gone quiet, and unfollows the ones you pick.

Features:
  - Resumable scans that survive interruption and rate limits
  - Inactivity threshold you control (default: 30 days)
  - REST API first, with a browser fallback when endpoints break
  - Secure session storage using the system keychain
  - Durable local state, nothing leaves your machine

A scan never unfollows anyone by itself; unfollowing is a separate,
explicit command.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./xfc.yaml or ~/.config/xfc/xfc.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`x-following-cleaner {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
