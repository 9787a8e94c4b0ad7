package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Per-scope record counts and importance",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	c := client.New(getServerURL())
	stats, err := c.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	printHeader("Engram Stats")
	for _, scope := range []string{"session", "project", "user"} {
		s, ok := stats[scope]
		if !ok {
			continue
		}
		fmt.Printf("  %s%-10s%s total: %-5d avg importance: %.2f\n",
			colorBold, scope, colorReset, s.Total, s.AvgImportance)
		printBreakdown("kinds", s.ByKind)
		printBreakdown("status", s.ByStatus)
	}
	fmt.Println()
	return nil
}

func printBreakdown(label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("    %s ", colorize(colorDim, label+":"))
	for i, k := range keys {
		if i > 0 {
			fmt.Print("  ")
		}
		fmt.Printf("%s=%d", k, counts[k])
	}
	fmt.Println()
}
