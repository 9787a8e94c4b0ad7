package cli

import (
	"github.com/spf13/cobra"
)

var (
	flagServerURL string
	flagConfig    string
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "engram",
		Short: "Durable, self-pruning memory for AI agents",
		Long: `Engram - durable, prioritized and self-pruning memory for AI agents.

Store, recall, promote and forget memory records from the command line,
run maintenance passes and inspect the tuning loop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "server URL (default http://localhost:8430)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.engram/config.yaml)")

	rootCmd.AddCommand(newVersionCmd(version))
	rootCmd.AddCommand(newStatusCmd())

	rootCmd.AddCommand(newStoreCmd())
	rootCmd.AddCommand(newRecallCmd())
	rootCmd.AddCommand(newFusedCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newForgetCmd())
	rootCmd.AddCommand(newPromoteCmd())
	rootCmd.AddCommand(newFeedbackCmd())
	rootCmd.AddCommand(newPeekCmd())
	rootCmd.AddCommand(newConsolidateCmd())
	rootCmd.AddCommand(newEvolveCmd())
	rootCmd.AddCommand(newStatsCmd())

	return rootCmd
}

func Execute(version string) error {
	return NewRootCmd(version).Execute()
}
