package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run a maintenance pass",
		Long: `Run one consolidation pass: decay-based archival, the promotion
sweep, duplicate merging and forgetting. With --dry-run the report shows
what would happen without writing anything.`,
		RunE: runConsolidate,
	}
	cmd.Flags().StringP("scope", "s", "", "Restrict to one scope")
	cmd.Flags().Bool("dry-run", false, "Report without writing")
	return cmd
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	req := client.ConsolidateRequest{DryRun: dryRun}
	if scope != "" {
		req.Scope = &scope
	}

	c := client.New(getServerURL())
	report, err := c.Consolidate(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	printReport(report)
	return nil
}
