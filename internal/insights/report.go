package insights

import (
	"fmt"
	"os"
	"strings"
)

// Report section markers. Insertion is anchored on these, so editing
// the generated file headings by hand breaks subsequent additions.
const (
	sectionExecutiveSummary = "## Executive Summary"
	sectionSummaryStats     = "## Summary Statistics"
	sectionOperational      = "## Operational Issues"
	sectionQuality          = "## Quality Issues"
	sectionStrengths        = "## Strengths & Successes"
	sectionRefuted          = "## Refuted Hypotheses"
	sectionRecommendations  = "## Recommendations"
	sectionConclusion       = "## Conclusion"

	placeholderFill = "[To be filled at the end]"
	placeholderRecs = "[To be filled at the end - organize by priority]"
)

// IssueCategory selects which report section an issue lands in.
type IssueCategory string

const (
	CategoryOperational IssueCategory = "operational"
	CategoryQuality     IssueCategory = "quality"
)

// IsValid reports whether the category is a known value.
func (c IssueCategory) IsValid() bool {
	return c == CategoryOperational || c == CategoryQuality
}

// ReportEvidence is one evidence entry in a report issue. LatencyMS is
// rendered only for operational issues when non-nil.
type ReportEvidence struct {
	TraceID   string `json:"trace_id"`
	Request   string `json:"request,omitempty"`
	Response  string `json:"response,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	LatencyMS *int64 `json:"latency_ms,omitempty"`
}

// ReportStatistics fills the Summary Statistics section on finalize.
type ReportStatistics struct {
	TotalTraces    string `json:"total_traces,omitempty"`
	SuccessRate    string `json:"success_rate,omitempty"`
	P50Latency     string `json:"p50_latency,omitempty"`
	P90Latency     string `json:"p90_latency,omitempty"`
	P95Latency     string `json:"p95_latency,omitempty"`
	P99Latency     string `json:"p99_latency,omitempty"`
	MaxLatency     string `json:"max_latency,omitempty"`
	AnalysisPeriod string `json:"analysis_period,omitempty"`
}

// ReportManager creates and incrementally updates a markdown analysis
// report on disk.
type ReportManager struct {
	path string
}

// NewReportManager returns a manager for the report file at path. The
// file is not created until Create is called.
func NewReportManager(path string) *ReportManager {
	return &ReportManager{path: path}
}

// Path returns the report file path.
func (m *ReportManager) Path() string {
	return m.path
}

// Create writes a fresh report skeleton, overwriting any existing file.
func (m *ReportManager) Create(agentName, agentOverview string) error {
	template := fmt.Sprintf(`# %s Analysis Report

## Executive Summary

[To be filled at the end]

## Agent Overview

%s

## Summary Statistics

- **Total Traces Analyzed:** [number]
- **Success Rate:** [percentage]
- **Latency Distribution:**
  - P50 (Median): [value]
  - P90: [value]
  - P95: [value]
  - P99: [value]
  - Max: [value]
- **Analysis Period:** [date range]

## Operational Issues

## Quality Issues

## Strengths & Successes

## Refuted Hypotheses

## Recommendations

[To be filled at the end - organize by priority]

## Conclusion

[To be filled at the end]
`, agentName, agentOverview)

	return os.WriteFile(m.path, []byte(template), 0644)
}

// AddIssue appends a numbered issue under the category's section.
func (m *ReportManager) AddIssue(category IssueCategory, title, finding string, evidence []ReportEvidence, rootCause, impact string) error {
	if !category.IsValid() {
		return fmt.Errorf("invalid issue category: %s", category)
	}

	content, err := m.read()
	if err != nil {
		return err
	}

	section, next := sectionOperational, sectionQuality
	if category == CategoryQuality {
		section, next = sectionQuality, sectionStrengths
	}
	existing, err := sectionEntryCount(content, section, next)
	if err != nil {
		return err
	}
	issueNum := existing + 1

	var ev strings.Builder
	for _, e := range evidence {
		traceID := e.TraceID
		if traceID == "" {
			traceID = "unknown"
		}
		if category == CategoryOperational && e.LatencyMS != nil {
			fmt.Fprintf(&ev, "- **%s** (%dms)\n", traceID, *e.LatencyMS)
		} else {
			fmt.Fprintf(&ev, "- **%s**\n", traceID)
		}
		fmt.Fprintf(&ev, "  - Request: %q\n", e.Request)
		fmt.Fprintf(&ev, "  - Response: %q\n", e.Response)
		if e.Rationale != "" {
			fmt.Fprintf(&ev, "  - Rationale: %s\n", e.Rationale)
		}
	}

	issueText := fmt.Sprintf(`
### %d. %s (CONFIRMED)

**Finding:** %s

**Evidence:**

%s
**Root Cause:** %s

**Impact:** %s

`, issueNum, title, finding, ev.String(), rootCause, impact)

	updated, err := insertBefore(content, section, next, issueText+"\n")
	if err != nil {
		return err
	}
	return m.write(updated)
}

// AddStrength appends a numbered strength entry.
func (m *ReportManager) AddStrength(title, description string, evidence []string) error {
	content, err := m.read()
	if err != nil {
		return err
	}

	existing, err := sectionEntryCount(content, sectionStrengths, sectionRefuted)
	if err != nil {
		return err
	}
	strengthNum := existing + 1

	var ev strings.Builder
	for _, e := range evidence {
		fmt.Fprintf(&ev, "- %s\n", e)
	}

	strengthText := fmt.Sprintf(`
### %d. %s (CONFIRMED)

%s

%s
`, strengthNum, title, description, ev.String())

	updated, err := insertBefore(content, sectionStrengths, sectionRefuted, strengthText+"\n")
	if err != nil {
		return err
	}
	return m.write(updated)
}

// AddRefutedHypothesis appends a bullet to the refuted hypotheses
// section.
func (m *ReportManager) AddRefutedHypothesis(hypothesis, reason string) error {
	content, err := m.read()
	if err != nil {
		return err
	}

	sectionStart := strings.Index(content, sectionRefuted)
	if sectionStart == -1 {
		return fmt.Errorf("section %q not found in report", sectionRefuted)
	}
	nextStart := strings.Index(content[sectionStart:], sectionRecommendations)
	if nextStart == -1 {
		return fmt.Errorf("section %q not found in report", sectionRecommendations)
	}
	nextStart += sectionStart

	bullet := fmt.Sprintf("- **%s**: %s\n", hypothesis, reason)

	insertPos := strings.Index(content[sectionStart:], "\n") + sectionStart + 1
	var updated string
	if strings.TrimSpace(content[insertPos:nextStart]) == "" {
		// First entry in an empty section.
		updated = content[:insertPos] + "\n" + bullet + content[insertPos:]
	} else {
		updated = content[:nextStart] + bullet + content[nextStart:]
	}
	return m.write(updated)
}

// Finalize fills in the summary, statistics, recommendations and
// conclusion placeholders. Recommendations map priority categories
// (e.g. "high_priority") to bullet lists; key order follows the order
// slice when provided.
func (m *ReportManager) Finalize(executiveSummary string, stats ReportStatistics, recommendations map[string][]string, order []string, conclusion string) error {
	content, err := m.read()
	if err != nil {
		return err
	}

	content = strings.Replace(content,
		sectionExecutiveSummary+"\n\n"+placeholderFill,
		sectionExecutiveSummary+"\n\n"+executiveSummary, 1)

	statsText := strings.Join([]string{
		"- **Total Traces Analyzed:** " + orNA(stats.TotalTraces),
		"- **Success Rate:** " + orNA(stats.SuccessRate),
		"- **Latency Distribution:**",
		"  - P50 (Median): " + orNA(stats.P50Latency),
		"  - P90: " + orNA(stats.P90Latency),
		"  - P95: " + orNA(stats.P95Latency),
		"  - P99: " + orNA(stats.P99Latency),
		"  - Max: " + orNA(stats.MaxLatency),
		"- **Analysis Period:** " + orNA(stats.AnalysisPeriod),
	}, "\n")

	statsStart := strings.Index(content, sectionSummaryStats+"\n\n")
	statsEnd := strings.Index(content, sectionOperational)
	if statsStart != -1 && statsEnd != -1 {
		head := statsStart + len(sectionSummaryStats+"\n\n")
		content = content[:head] + statsText + "\n\n" + content[statsEnd:]
	}

	if order == nil {
		for key := range recommendations {
			order = append(order, key)
		}
	}
	var recs strings.Builder
	for _, key := range order {
		items, ok := recommendations[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&recs, "\n### %s\n\n", titleCase(key))
		for _, item := range items {
			fmt.Fprintf(&recs, "- %s\n", item)
		}
	}
	content = strings.Replace(content,
		sectionRecommendations+"\n\n"+placeholderRecs,
		sectionRecommendations+"\n"+strings.TrimRight(recs.String(), "\n"), 1)

	content = strings.Replace(content,
		sectionConclusion+"\n\n"+placeholderFill,
		sectionConclusion+"\n\n"+conclusion, 1)

	return m.write(content)
}

func (m *ReportManager) read() (string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}

func (m *ReportManager) write(content string) error {
	if err := os.WriteFile(m.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// sectionEntryCount counts the numbered entries already present between
// a section header and the next one.
func sectionEntryCount(content, section, next string) (int, error) {
	sectionStart := strings.Index(content, section)
	if sectionStart == -1 {
		return 0, fmt.Errorf("section %q not found in report", section)
	}
	nextStart := strings.Index(content[sectionStart:], next)
	if nextStart == -1 {
		return 0, fmt.Errorf("section %q not found in report", next)
	}
	return strings.Count(content[sectionStart:sectionStart+nextStart], "\n### "), nil
}

// insertBefore inserts text between a section header and the next one.
func insertBefore(content, section, next, text string) (string, error) {
	sectionStart := strings.Index(content, section)
	if sectionStart == -1 {
		return "", fmt.Errorf("section %q not found in report", section)
	}
	nextStart := strings.Index(content[sectionStart:], next)
	if nextStart == -1 {
		return "", fmt.Errorf("section %q not found in report", next)
	}
	nextStart += sectionStart
	return content[:nextStart] + text + content[nextStart:], nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// titleCase turns "high_priority" into "High Priority".
func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
