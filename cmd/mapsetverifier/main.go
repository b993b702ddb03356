// Package main provides the entry point for the mapsetverifier server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapset-verifier/server/cmd/mapsetverifier/commands"
	"github.com/mapset-verifier/server/pkg/version"
)

// exitBlocking is the exit status of check when blocking issues were found.
const exitBlocking = 2

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "mapsetverifier",
		Short: "Mapset Verifier - beatmap set analysis server",
		Long: `Mapset Verifier analyses beatmap set directories for ranking issues.

Commands:
  serve     Start the server the desktop client connects to
  check     Run every check on a beatmap set directory
  mcp       Start the MCP server for AI agents`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if errors.Is(err, commands.ErrBlockingIssues) {
		os.Exit(exitBlocking)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "mapsetverifier %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
