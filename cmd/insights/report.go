package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracewise/insights/internal/insights"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a markdown analysis report incrementally",
}

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a fresh report skeleton",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := insights.NewReportManager(reportFile)
		if err := mgr.Create(reportAgentName, reportAgentOverview); err != nil {
			fatal("failed to create report: %v", err)
		}
		fmt.Printf("Created report: %s\n", reportFile)
	},
}

var reportAddIssueCmd = &cobra.Command{
	Use:   "add-issue",
	Short: "Add a confirmed issue to the report",
	Run: func(cmd *cobra.Command, args []string) {
		category := insights.IssueCategory(reportCategory)
		if !category.IsValid() {
			fatal("invalid category %q (want operational or quality)", reportCategory)
		}
		var evidence []insights.ReportEvidence
		for _, raw := range reportEvidence {
			var ev insights.ReportEvidence
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				fatal("invalid evidence JSON %q: %v", raw, err)
			}
			evidence = append(evidence, ev)
		}

		mgr := insights.NewReportManager(reportFile)
		if err := mgr.AddIssue(category, reportTitle, reportFinding, evidence, reportRootCause, reportImpact); err != nil {
			fatal("failed to add issue: %v", err)
		}
		fmt.Printf("Added %s issue %q\n", category, reportTitle)
	},
}

var reportAddStrengthCmd = &cobra.Command{
	Use:   "add-strength",
	Short: "Add a strength/success to the report",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := insights.NewReportManager(reportFile)
		if err := mgr.AddStrength(reportTitle, reportDescription, reportStrengthEvidence); err != nil {
			fatal("failed to add strength: %v", err)
		}
		fmt.Printf("Added strength %q\n", reportTitle)
	},
}

var reportAddRefutedCmd = &cobra.Command{
	Use:   "add-refuted",
	Short: "Add a refuted hypothesis to the report",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := insights.NewReportManager(reportFile)
		if err := mgr.AddRefutedHypothesis(reportHypothesis, reportReason); err != nil {
			fatal("failed to add refuted hypothesis: %v", err)
		}
		fmt.Println("Added refuted hypothesis")
	},
}

var reportFinalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Fill in the report's summary sections",
	Run: func(cmd *cobra.Command, args []string) {
		var stats insights.ReportStatistics
		if reportStatistics != "" {
			if err := json.Unmarshal([]byte(reportStatistics), &stats); err != nil {
				fatal("invalid statistics JSON: %v", err)
			}
		}
		var recs map[string][]string
		if reportRecommendations != "" {
			if err := json.Unmarshal([]byte(reportRecommendations), &recs); err != nil {
				fatal("invalid recommendations JSON: %v", err)
			}
		}

		mgr := insights.NewReportManager(reportFile)
		if err := mgr.Finalize(reportSummary, stats, recs, nil, reportConclusion); err != nil {
			fatal("failed to finalize report: %v", err)
		}
		fmt.Printf("Finalized report: %s\n", reportFile)
	},
}

var (
	reportFile             string
	reportAgentName        string
	reportAgentOverview    string
	reportCategory         string
	reportTitle            string
	reportFinding          string
	reportDescription      string
	reportRootCause        string
	reportImpact           string
	reportEvidence         []string
	reportStrengthEvidence []string
	reportHypothesis       string
	reportReason           string
	reportSummary          string
	reportStatistics       string
	reportRecommendations  string
	reportConclusion       string
)

func init() {
	for _, cmd := range []*cobra.Command{reportCreateCmd, reportAddIssueCmd, reportAddStrengthCmd, reportAddRefutedCmd, reportFinalizeCmd} {
		cmd.Flags().StringVar(&reportFile, "file", "analysis_report.md", "Report file path")
	}

	reportCreateCmd.Flags().StringVar(&reportAgentName, "agent-name", "", "Name of the agent being analyzed")
	reportCreateCmd.Flags().StringVar(&reportAgentOverview, "agent-overview", "", "Overview description of the agent")
	reportCreateCmd.MarkFlagRequired("agent-name")
	reportCreateCmd.MarkFlagRequired("agent-overview")

	reportAddIssueCmd.Flags().StringVar(&reportCategory, "category", "", "Issue category (operational or quality)")
	reportAddIssueCmd.Flags().StringVar(&reportTitle, "title", "", "Issue title")
	reportAddIssueCmd.Flags().StringVar(&reportFinding, "finding", "", "One-sentence summary")
	reportAddIssueCmd.Flags().StringArrayVar(&reportEvidence, "evidence", nil, "Evidence as JSON with trace_id, request, response, rationale, latency_ms (repeatable)")
	reportAddIssueCmd.Flags().StringVar(&reportRootCause, "root-cause", "", "Explanation of why the issue occurs")
	reportAddIssueCmd.Flags().StringVar(&reportImpact, "impact", "", "Quantified impact description")
	reportAddIssueCmd.MarkFlagRequired("category")
	reportAddIssueCmd.MarkFlagRequired("title")
	reportAddIssueCmd.MarkFlagRequired("finding")

	reportAddStrengthCmd.Flags().StringVar(&reportTitle, "title", "", "Strength title")
	reportAddStrengthCmd.Flags().StringVar(&reportDescription, "description", "", "Description of what's working well")
	reportAddStrengthCmd.Flags().StringArrayVar(&reportStrengthEvidence, "evidence", nil, "Evidence line (repeatable)")
	reportAddStrengthCmd.MarkFlagRequired("title")
	reportAddStrengthCmd.MarkFlagRequired("description")

	reportAddRefutedCmd.Flags().StringVar(&reportHypothesis, "hypothesis", "", "Hypothesis statement that was refuted")
	reportAddRefutedCmd.Flags().StringVar(&reportReason, "reason", "", "Why it was refuted")
	reportAddRefutedCmd.MarkFlagRequired("hypothesis")
	reportAddRefutedCmd.MarkFlagRequired("reason")

	reportFinalizeCmd.Flags().StringVar(&reportSummary, "summary", "", "Executive summary paragraph")
	reportFinalizeCmd.Flags().StringVar(&reportStatistics, "statistics", "", "Summary statistics as JSON")
	reportFinalizeCmd.Flags().StringVar(&reportRecommendations, "recommendations", "", "Recommendations as JSON map of priority to bullet list")
	reportFinalizeCmd.Flags().StringVar(&reportConclusion, "conclusion", "", "Conclusion paragraph")
	reportFinalizeCmd.MarkFlagRequired("summary")

	reportCmd.AddCommand(reportCreateCmd)
	reportCmd.AddCommand(reportAddIssueCmd)
	reportCmd.AddCommand(reportAddStrengthCmd)
	reportCmd.AddCommand(reportAddRefutedCmd)
	reportCmd.AddCommand(reportFinalizeCmd)
}
