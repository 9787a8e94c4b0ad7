package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show a record by id",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	cmd.Flags().StringP("scope", "s", "", "Scope hint to skip the partition walk")
	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	c := client.New(getServerURL())
	rec, err := c.GetRecord(cmd.Context(), args[0], scope)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}

	printRecord(rec)
	return nil
}
