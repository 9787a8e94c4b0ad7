package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback RETRIEVAL_ID",
		Short: "Mark a retrieval as useful or not",
		Long:  `Attach feedback to a logged retrieval. The retrieval id is printed by 'engram recall'. Feedback drives the evolution loop.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runFeedback,
	}
	cmd.Flags().Bool("useful", true, "Whether the retrieval was useful")
	return cmd
}

func runFeedback(cmd *cobra.Command, args []string) error {
	useful, _ := cmd.Flags().GetBool("useful")

	c := client.New(getServerURL())
	if err := c.Feedback(cmd.Context(), args[0], useful); err != nil {
		return fmt.Errorf("feedback: %w", err)
	}

	printOK(fmt.Sprintf("Feedback recorded: useful=%v", useful))
	return nil
}
