package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/tracewise/insights/internal/insights"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func validOutput(format string) bool {
	return format == outputTable || format == outputJSON
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("failed to encode JSON: %v", err)
	}
}

func header(text string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("=== "+text+" ==="))
}

func field(name, value string) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("  %s %s\n", yellow(name+":"), value)
}

// statusColor picks a color for analysis/hypothesis/issue statuses.
func statusColor(status string) func(a ...any) string {
	switch status {
	case string(insights.AnalysisActive),
		string(insights.HypothesisTesting),
		string(insights.IssueInProgress):
		return color.New(color.FgYellow).SprintFunc()
	case string(insights.AnalysisCompleted),
		string(insights.HypothesisValidated),
		string(insights.IssueResolved),
		"OK":
		return color.New(color.FgGreen).SprintFunc()
	// HypothesisRejected and IssueRejected share the "REJECTED" value.
	case string(insights.HypothesisRejected),
		"ERROR":
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// severityColor picks a color for issue severities.
func severityColor(severity insights.IssueSeverity) func(a ...any) string {
	switch severity {
	case insights.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case insights.SeverityHigh:
		return color.New(color.FgRed).SprintFunc()
	case insights.SeverityMedium:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// printTraceStats renders aggregate preview stats as a table.
func printTraceStats(stats insights.TraceStats) {
	header("Trace Preview")
	field("Traces", fmt.Sprintf("%d", stats.TraceCount))
	field("Errors", fmt.Sprintf("%d (%.1f%%)", stats.ErrorCount, stats.ErrorRate*100))
	field("Avg latency", fmt.Sprintf("%.0fms", stats.AvgLatencyMS))
	field("Max latency", fmt.Sprintf("%dms", stats.MaxLatencyMS))

	if len(stats.CommonErrors) > 0 {
		fmt.Println()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("  %s\n", yellow("Common errors:"))
		for _, e := range stats.CommonErrors {
			fmt.Printf("    %3dx %s\n", e.Count, truncate(e.Message, 70))
		}
	}

	if len(stats.Samples) > 0 {
		fmt.Println()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("  %s\n", yellow("Samples:"))
		for _, s := range stats.Samples {
			sc := color.New(color.FgGreen).SprintFunc()
			if s.State == "ERROR" {
				sc = color.New(color.FgRed).SprintFunc()
			}
			fmt.Printf("    %s %s (%dms)\n", sc(s.State), s.TraceID, s.DurationMS)
			if s.RequestPreview != "" {
				fmt.Printf("      Request:  %s\n", truncate(s.RequestPreview, 70))
			}
			if s.ResponsePreview != "" {
				fmt.Printf("      Response: %s\n", truncate(s.ResponsePreview, 70))
			}
		}
	}
	fmt.Println()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
