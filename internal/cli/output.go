package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/keremavci/engram/internal/client"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func isColorEnabled() bool {
	return os.Getenv("NO_COLOR") == ""
}

func colorize(color, text string) string {
	if !isColorEnabled() {
		return text
	}
	return color + text + colorReset
}

func printOK(msg string) {
	fmt.Println(colorize(colorGreen, "  ✓ ") + msg)
}

func printWarn(msg string) {
	fmt.Println(colorize(colorYellow, "  ! ") + msg)
}

func printHeader(msg string) {
	fmt.Println()
	fmt.Println(colorize(colorBold, "  "+msg))
	fmt.Println(colorize(colorDim, "  "+strings.Repeat("─", len(msg)+2)))
}

func kindColor(kind string) string {
	switch kind {
	case "procedural":
		return colorGreen
	case "semantic":
		return colorBlue
	case "episodic":
		return colorYellow
	default:
		return colorDim
	}
}

func printRecord(r *client.Record) {
	fmt.Println()
	fmt.Printf("  %s %s\n", colorize(colorBold, r.Kind+"/"+r.Scope), colorize(colorDim, r.ID))
	fmt.Printf("  Status: %s  Importance: %.2f  Confidence: %.2f  Accesses: %d\n",
		r.Status, r.Importance, r.Confidence, r.AccessCount)
	if len(r.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(r.Tags, ", "))
	}
	if r.ProjectID != nil {
		fmt.Printf("  Project: %s\n", *r.ProjectID)
	}
	fmt.Printf("  Created: %s\n", formatTime(r.CreatedAt))
	fmt.Println()
	fmt.Println(colorize(colorDim, "  ─────"))
	for _, line := range strings.Split(r.Content, "\n") {
		fmt.Printf("  %s\n", line)
	}
	fmt.Println(colorize(colorDim, "  ─────"))
}

func printResults(results []client.RecallResult) {
	if len(results) == 0 {
		printWarn("No results found.")
		return
	}
	for _, r := range results {
		fmt.Printf("  %s%-11s%s %s  %s  %s\n",
			kindColor(r.Record.Kind), r.Record.Kind, colorReset,
			colorize(colorBold, snippet(r.Record.Content, 64)),
			colorize(colorDim, fmt.Sprintf("score:%.3f", r.Score)),
			colorize(colorDim, r.Record.ID),
		)
	}
	fmt.Printf("\n  %s %d results\n", colorize(colorDim, "Total:"), len(results))
}

func printReport(rep *client.ConsolidateReport) {
	title := "Consolidation Report"
	if rep.DryRun {
		title += " (dry run)"
	}
	printHeader(title)
	fmt.Printf("  Refreshed:       %d\n", rep.Refreshed)
	fmt.Printf("  Archived:        %d\n", rep.Archived)
	fmt.Printf("  Activated:       %d\n", rep.Activated)
	fmt.Printf("  Promoted:        %d\n", rep.Promoted)
	fmt.Printf("  Merged:          %d\n", rep.Merged)
	fmt.Printf("  Queued:          %d\n", rep.Queued)
	fmt.Printf("  Tasks processed: %d\n", rep.TasksProcessed)
	fmt.Printf("  Forgotten:       %d\n", rep.Forgotten)
	if len(rep.Errors) > 0 {
		fmt.Println()
		fmt.Println(colorize(colorRed, "  Errors:"))
		for _, e := range rep.Errors {
			fmt.Printf("    %s\n", e)
		}
	}
	fmt.Println()
}

func snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
