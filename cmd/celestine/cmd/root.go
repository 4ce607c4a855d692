// Package cmd provides the CLI commands for Celestine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/celestine-app/celestine/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "celestine",
	Short: "Celestine - astrology content generation service",
	Long: `Celestine serves personalized astrology content backed by an
expensive AI text generator. Generated content is cached per user and
period, concurrent requests for the same content are coalesced, and
generation is gated by per-user request budgets.

Quick start:
  1. Create a config file: celestine.yaml
  2. Export the generator key: CELESTINE_GENERATOR_API_KEY=...
  3. Run: celestine serve

Configuration:
  Config is loaded from celestine.yaml in the current directory,
  $HOME/.celestine/, or /etc/celestine/.

  Environment variables can override config values with the CELESTINE_ prefix.
  Example: CELESTINE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the content service
  hash-key    Generate SHA256 hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./celestine.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
