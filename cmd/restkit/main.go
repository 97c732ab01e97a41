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
		Use:   "restkit",
		Short: "A request-dispatch server for small HTTP APIs",
		Long: `Restkit serves plain functions as HTTP endpoints.

Endpoints are registered by name and dispatched case-insensitively;
every response is a uniform JSON envelope. Each server carries
built-in endpoints for the route listing, run mode, secured file
download and upload, and a log viewer with live tailing.`,
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
