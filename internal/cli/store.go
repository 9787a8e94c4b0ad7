package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keremavci/engram/internal/client"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store [CONTENT]",
		Short: "Store a new memory record",
		Long: `Store a new memory record.

Content can be given as an argument or piped from stdin:
  engram store "prefers tabs over spaces" --kind semantic --scope user
  cat notes.txt | engram store --kind episodic`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStore,
	}
	cmd.Flags().StringP("kind", "k", "episodic", "Record kind (working|episodic|semantic|procedural)")
	cmd.Flags().StringP("scope", "s", "session", "Scope (session|project|user)")
	cmd.Flags().Float64P("importance", "i", 0, "Importance (0.0-1.0); scored from signals when omitted")
	cmd.Flags().Float64P("confidence", "c", 0.7, "Confidence score (0.0-1.0)")
	cmd.Flags().StringSliceP("tags", "T", nil, "Tags (comma-separated)")
	cmd.Flags().StringP("project", "p", "", "Project ID")
	cmd.Flags().String("session", "", "Session ID")
	return cmd
}

func runStore(cmd *cobra.Command, args []string) error {
	var content string
	if len(args) > 0 {
		content = args[0]
	}
	kind, _ := cmd.Flags().GetString("kind")
	scope, _ := cmd.Flags().GetString("scope")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	project, _ := cmd.Flags().GetString("project")
	session, _ := cmd.Flags().GetString("session")

	if content == "" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			scanner := bufio.NewScanner(os.Stdin)
			var lines []string
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			content = strings.Join(lines, "\n")
		}
	}
	if content == "" {
		return fmt.Errorf("content is required (argument or stdin)")
	}

	req := client.StoreRequest{
		Content:    content,
		Kind:       kind,
		Scope:      scope,
		Confidence: confidence,
		Tags:       tags,
	}
	if cmd.Flags().Changed("importance") {
		importance, _ := cmd.Flags().GetFloat64("importance")
		req.Importance = &importance
	}
	if project != "" {
		req.ProjectID = &project
	}
	if session != "" {
		req.SessionID = &session
	}

	c := client.New(getServerURL())
	rec, err := c.StoreRecord(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("store record: %w", err)
	}

	printOK(fmt.Sprintf("Record stored: %s (importance %.2f)", rec.ID, rec.Importance))
	return nil
}
