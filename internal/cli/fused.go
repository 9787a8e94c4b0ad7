package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newFusedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fused QUERY",
		Short: "Rank per partition and merge with reciprocal rank fusion",
		Args:  cobra.ExactArgs(1),
		RunE:  runFused,
	}
	cmd.Flags().IntP("limit", "l", 10, "Maximum number of results")
	cmd.Flags().StringP("by", "b", "scope", "Partition key (scope|kind)")
	return cmd
}

func runFused(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	by, _ := cmd.Flags().GetString("by")

	c := client.New(getServerURL())
	resp, err := c.Fused(cmd.Context(), client.FusedRequest{Query: args[0], By: by, Limit: limit})
	if err != nil {
		return fmt.Errorf("fused recall: %w", err)
	}

	printResults(resp.Results)
	return nil
}
