package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget ID",
		Short: "Tombstone a record",
		Long:  `Tombstone a record. Its content is erased; the id and audit trail remain.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runForget,
	}
	cmd.Flags().StringP("scope", "s", "", "Scope hint")
	return cmd
}

func runForget(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")

	c := client.New(getServerURL())
	if err := c.ForgetRecord(cmd.Context(), args[0], scope); err != nil {
		return fmt.Errorf("forget record: %w", err)
	}

	printOK(fmt.Sprintf("Record forgotten: %s", args[0]))
	return nil
}
