package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newPeekCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek SCOPE",
		Short: "List the strongest records in a scope without reinforcing them",
		Args:  cobra.ExactArgs(1),
		RunE:  runPeek,
	}
	cmd.Flags().IntP("limit", "l", 10, "Maximum number of results")
	return cmd
}

func runPeek(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	c := client.New(getServerURL())
	peeked, err := c.Peek(cmd.Context(), args[0], limit)
	if err != nil {
		return fmt.Errorf("peek: %w", err)
	}

	if len(peeked) == 0 {
		printWarn("No records found.")
		return nil
	}
	for _, p := range peeked {
		fmt.Printf("  %s%-11s%s %s  %s  %s\n",
			kindColor(p.Record.Kind), p.Record.Kind, colorReset,
			colorize(colorBold, snippet(p.Record.Content, 64)),
			colorize(colorDim, fmt.Sprintf("strength:%.3f", p.Strength)),
			colorize(colorDim, p.Record.ID),
		)
	}
	fmt.Printf("\n  %s %d records\n", colorize(colorDim, "Total:"), len(peeked))
	return nil
}
