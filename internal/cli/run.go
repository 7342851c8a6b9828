package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand(flags *GlobalFlags) *cobra.Command {
	var users []string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile one or more users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.concurrency = concurrency
			a, err := openApp(cmd, flags, "reconcile")
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.svc.ReconcileUsers(cmd.Context(), users)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				if r.Result != nil {
					PrintRunSummary(out, r.Result)
				}
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "User %s failed: %v\n", r.UserID, r.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d users failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "User ID to reconcile (repeatable, required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Users reconciled in parallel (default from config)")

	return cmd
}
