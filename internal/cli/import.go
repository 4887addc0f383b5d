package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/warden/internal/store"
)

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <seed.yaml>",
		Short: "Load objects, bundles and rules from a YAML file into the store",
		Long: `Write the objects, bundles and rules of a seed file into the configured store.
Rules that already exist get a new version and go back to PENDING.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := store.LoadSeed(args[0])
			if err != nil {
				return err
			}
			st, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			summary, err := store.Import(cmd.Context(), st, seed)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, summary, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d objects, %d bundles, %d rules\n", summary.Objects, summary.Bundles, summary.Rules)
			})
		},
	}
}
