package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/warden/internal/store"
)

func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <rule-id>",
		Short: "Return a FAILED rule to PENDING so the next pass picks it up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			rule, err := store.ResetRule(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, rule, func(w io.Writer) {
				fmt.Fprintf(w, "rule %s is %s at version %d\n", rule.ID, rule.Status, rule.Version)
			})
		},
	}
}
