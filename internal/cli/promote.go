package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote ID TARGET",
		Short: "Promote a record to a broader scope",
		Long: `Promote an eligible record one scope outward (session to project,
project to user). A near-duplicate already in the target scope is merged
instead of copied.`,
		Args: cobra.ExactArgs(2),
		RunE: runPromote,
	}
	cmd.Flags().StringP("scope", "s", "", "Current scope hint")
	return cmd
}

func runPromote(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	req := client.PromoteRequest{Target: args[1]}
	if scope != "" {
		req.Scope = &scope
	}

	c := client.New(getServerURL())
	result, err := c.PromoteRecord(cmd.Context(), args[0], req)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	printOK(fmt.Sprintf("%s into %s (record %s)", result.Action, result.Target, result.Record.ID))
	return nil
}
