// Package main is the entry point for the blimp binary: the credential-scoped
// proxy server and its operator commands.
package main

import (
	"fmt"
	"os"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	_ "time/tzdata"                            // Calendar time zones without a system zoneinfo

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for blimp.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blimp",
		Short: "Credential-scoped proxy for third-party app APIs",
		Long: `Blimp runs actions against Gmail, Slack, Notion, Google Calendar,
Google Drive and GitHub on behalf of individual users, always with the
credential that user connected and never with anyone else's.

Configuration is read from BLIMP_* environment variables.`,
		SilenceUsage: true,
		Version:      version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newAppsCmd(),
		newCredentialsCmd(),
	)

	return rootCmd
}
