// Package cli implements the reconciler command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &GlobalFlags{}

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Reconcile manually entered records against aggregator data",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	flags.register(rootCmd)

	rootCmd.AddCommand(
		newRunCommand(flags),
		newStatusCommand(flags),
		newImportCommand(flags),
		newLogCommand(flags),
		newRevertCommand(flags),
		newServeCommand(flags),
	)

	return rootCmd
}
