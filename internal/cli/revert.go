package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevertCommand(flags *GlobalFlags) *cobra.Command {
	var userID, recordID string

	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Undo the reconciliation of one manual record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, flags, "revert")
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.svc.Revert(cmd.Context(), userID, recordID)
			if err != nil {
				return fmt.Errorf("revert %s: %w", recordID, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), "Reverted: ")
			PrintRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	userFlag(cmd, &userID)
	cmd.Flags().StringVar(&recordID, "record", "", "Manual record ID (required)")
	_ = cmd.MarkFlagRequired("record")

	return cmd
}
