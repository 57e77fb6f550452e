// Command proposalctl drives the draft autosave scheduler from a terminal:
// it syncs a wizard form to the proposal API, keeps a local snapshot when
// the server is unreachable and restores or clears that snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "proposalctl",
		Short:         "Author proposal drafts against the proposal API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.snapshotPath, "snapshot", "", "Local snapshot file (default from AUTOSAVE_SNAPSHOT_PATH)")
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "Proposal API base URL (default from AUTOSAVE_SERVER_URL)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(syncCmd(opts), restoreCmd(opts), clearCmd(opts), statusCmd(opts))
	return cmd
}
