package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newEvolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Analyze retrieval feedback and tune parameters",
		Long: `Analyze the retrieval log and apply bounded adjustments to scope
weights, the default strategy and decay half-lives. With --dry-run the
proposals are printed without being applied.`,
		RunE: runEvolve,
	}
	cmd.Flags().Bool("dry-run", false, "Propose without applying")
	cmd.Flags().String("lookback", "", "Analysis window as a Go duration, e.g. 336h")
	return cmd
}

func runEvolve(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	lookback, _ := cmd.Flags().GetString("lookback")

	c := client.New(getServerURL())
	outcome, err := c.Evolve(cmd.Context(), client.EvolveRequest{DryRun: dryRun, Lookback: lookback})
	if err != nil {
		return fmt.Errorf("evolve: %w", err)
	}

	title := "Evolution"
	if outcome.Dry {
		title += " (dry run)"
	}
	printHeader(title)
	fmt.Printf("  Data points: %d\n", outcome.DataPoints)
	if len(outcome.Proposals) == 0 {
		printWarn("No adjustments proposed.")
		return nil
	}
	for _, p := range outcome.Proposals {
		fmt.Printf("  %s: %v -> %v  %s\n",
			colorize(colorBold, p.Param), p.Current, p.Proposed,
			colorize(colorDim, p.Reason),
		)
	}
	if len(outcome.Errors) > 0 {
		fmt.Println()
		for _, e := range outcome.Errors {
			fmt.Printf("  %s %s\n", colorize(colorRed, "error:"), e)
		}
	}
	fmt.Println()
	return nil
}
