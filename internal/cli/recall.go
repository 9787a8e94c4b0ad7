package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall QUERY",
		Short: "Recall records by natural language query",
		Long:  `Recall records across scopes. Returned records are reinforced and the retrieval is logged; use the printed retrieval id with 'engram feedback'.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runRecall,
	}
	cmd.Flags().IntP("limit", "l", 10, "Maximum number of results")
	cmd.Flags().StringP("scope", "s", "", "Restrict to one scope (session|project|user)")
	cmd.Flags().StringP("kind", "k", "", "Filter by kind")
	return cmd
}

func runRecall(cmd *cobra.Command, args []string) error {
	query := args[0]
	limit, _ := cmd.Flags().GetInt("limit")
	scope, _ := cmd.Flags().GetString("scope")
	kind, _ := cmd.Flags().GetString("kind")

	req := client.RecallRequest{Query: query, Limit: limit}
	if scope != "" {
		req.Scope = &scope
	}
	if kind != "" {
		req.Kind = &kind
	}

	c := client.New(getServerURL())
	resp, err := c.Recall(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}

	printResults(resp.Results)
	fmt.Printf("  %s %s  %s %s\n",
		colorize(colorDim, "Strategy:"), resp.Strategy,
		colorize(colorDim, "Retrieval:"), resp.LogID,
	)
	return nil
}
