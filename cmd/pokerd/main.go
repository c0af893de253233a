package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pokerd",
		Short: "Real-time planning poker session server",
		Long: `pokerd runs a shared planning-poker session for distributed teams.

Clients connect over raw TCP or WebSocket and speak a line-delimited
JSON protocol: log in, move an avatar, cast votes, and (for the
facilitator) drive the estimation rounds. A read-mostly HTTP API
mirrors the session status for dashboards and browser extensions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
