// Package cmd is the CLI bootstrap: a minimal cobra root command wiring
// "serve" and "version" subcommands. Framework behavior lives in pkg/ and
// internal/; this package only parses flags and calls into it.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (startup failure, bad config).
	ExitCodeError = 1
)

// rootCmd is the entry point when dreamhost is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "dreamhost",
	Short: "Host mounted services behind a single URI namespace",
	Long: `dreamhost starts a host process: it loads service configuration
documents from a directory, mounts the services they describe, and serves
incoming requests by dispatching them through the endpoint registry to
whichever mounted service scores highest for the request URI.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, typically injected at
// build time from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits the process with an appropriate
// code on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dreamhost version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(serveCmd)
}
