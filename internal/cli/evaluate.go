package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/pkg/warden"
)

func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <bundle-id>...",
		Short: "Run one evaluation pass over bundles sharing a rule group",
		Long: `Resolve the non-failed rules of the given bundles, compile them and replace
the contents of their shared rule group. Bundles targeting different rule
groups are rejected before anything is called.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := warden.New(cmd.Context(), rootOpts.Config)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.Evaluate(cmd.Context(), args)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) {
				printResult(w, result)
			})
		},
	}
}

func printResult(w io.Writer, result *warden.Result) {
	fmt.Fprintf(w, "run %s on %s\n", result.RunID, result.RuleGroupArn)
	if result.DenyAll {
		fmt.Fprintln(w, "no rules to apply, deny-all rule submitted")
		return
	}
	for _, rule := range result.Rules {
		line := fmt.Sprintf("  %-8s %s", rule.Status, rule.ID)
		if rule.Status == domain.RuleStatusFailed && len(rule.FailureReasons) > 0 {
			line += ": " + strings.Join(rule.FailureReasons, "; ")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d active, %d failed, %d pending\n",
		result.Count(domain.RuleStatusActive),
		result.Count(domain.RuleStatusFailed),
		result.Count(domain.RuleStatusPending))
}
