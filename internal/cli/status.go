package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(flags *GlobalFlags) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's reconciliation status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, flags, "status")
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.svc.GetStatus(cmd.Context(), userID)
			if err != nil {
				return err
			}
			PrintStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	userFlag(cmd, &userID)

	return cmd
}
