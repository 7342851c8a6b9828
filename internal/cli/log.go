package cli

import (
	"github.com/spf13/cobra"
)

func newLogCommand(flags *GlobalFlags) *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show a user's reconciliation log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, flags, "log")
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.ListLog(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			PrintLog(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	userFlag(cmd, &userID)
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")

	return cmd
}
