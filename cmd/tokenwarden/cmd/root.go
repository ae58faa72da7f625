// Package cmd provides the CLI commands for TokenWarden.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tokenwarden",
	Short: "TokenWarden - scoped bearer-token authorization engine",
	Long: `TokenWarden decides whether a Biscuit-style bearer token, together
with a verifier-supplied policy program, authorizes a request. It runs a
bounded Datalog fixpoint over the token's authority and attenuation
blocks, evaluates every check, and applies the first matching
allow/deny policy.

Quick start:
  1. Create a config file: tokenwarden.yaml
  2. Run: tokenwarden serve

Configuration:
  Config is loaded from tokenwarden.yaml in the current directory,
  $HOME/.tokenwarden/, or /etc/tokenwarden/.

  Environment variables can override config values with the TOKENWARDEN_
  prefix. Example: TOKENWARDEN_SERVER_ADDR=:9090

Commands:
  serve       Start the decision API
  hash-key    Hash an API key for the auth config
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tokenwarden.yaml)")
}
