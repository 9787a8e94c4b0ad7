package cli

import (
	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := getServerURL()
			c := client.New(url)
			if err := c.Health(cmd.Context()); err != nil {
				printWarn("Server unreachable at " + url)
				return err
			}
			printOK("Server healthy at " + url)
			return nil
		},
	}
}
