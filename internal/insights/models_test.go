package insights

import (
	"testing"
)

func TestStatusValidation(t *testing.T) {
	valid := []struct {
		name string
		ok   bool
	}{
		{"analysis ACTIVE", AnalysisActive.IsValid()},
		{"analysis COMPLETED", AnalysisCompleted.IsValid()},
		{"analysis ARCHIVED", AnalysisArchived.IsValid()},
		{"hypothesis TESTING", HypothesisTesting.IsValid()},
		{"issue REJECTED", IssueRejected.IsValid()},
		{"severity LOW", SeverityLow.IsValid()},
	}
	for _, tc := range valid {
		if !tc.ok {
			t.Errorf("%s should be valid", tc.name)
		}
	}

	if AnalysisStatus("DONE").IsValid() {
		t.Error("unknown analysis status should be invalid")
	}
	if HypothesisStatus("").IsValid() {
		t.Error("empty hypothesis status should be invalid")
	}
	if IssueSeverity("BLOCKER").IsValid() {
		t.Error("unknown severity should be invalid")
	}
	if IssueStatus("CLOSED").IsValid() {
		t.Error("unknown issue status should be invalid")
	}
}

func TestNewAnalysisDefaults(t *testing.T) {
	a := NewAnalysis("Slow tools", "Investigating latency spikes")

	if a.Status != AnalysisActive {
		t.Errorf("new analysis should be ACTIVE, got %s", a.Status)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
	if err := a.Validate(); err != nil {
		t.Errorf("valid analysis failed validation: %v", err)
	}
}

func TestAnalysisValidationRequiresFields(t *testing.T) {
	a := NewAnalysis("", "desc")
	if err := a.Validate(); err == nil {
		t.Error("analysis without name should fail validation")
	}
	a = NewAnalysis("name", "")
	if err := a.Validate(); err == nil {
		t.Error("analysis without description should fail validation")
	}
}

func TestHypothesisEvidenceCounts(t *testing.T) {
	h := NewHypothesis("Errors correlate with long prompts", "because context overflows", "sample 50 traces")

	if h.Status != HypothesisTesting {
		t.Fatalf("new hypothesis should be TESTING, got %s", h.Status)
	}
	if h.HypothesisID == "" {
		t.Fatal("hypothesis ID should be generated")
	}

	h.AddEvidence("tr-1", "supports", true)
	h.AddEvidence("tr-2", "refutes", false)
	h.AddEvidence("tr-1", "more support", true)

	if got := h.EvidenceCount(); got != 3 {
		t.Errorf("EvidenceCount = %d, want 3", got)
	}
	if got := h.SupportsCount(); got != 2 {
		t.Errorf("SupportsCount = %d, want 2", got)
	}
	if got := h.RefutesCount(); got != 1 {
		t.Errorf("RefutesCount = %d, want 1", got)
	}
	// tr-1 appears twice but counts once
	if got := h.TraceCount(); got != 2 {
		t.Errorf("TraceCount = %d, want 2", got)
	}
}

func TestIssueNormalizeEvidence(t *testing.T) {
	i := NewIssue("run-1", "Tool timeouts", "Search tool times out", SeverityHigh)
	i.AddEvidence("tr-1", "timed out after 30s")
	i.Evidence[0].Supports = boolPtr(true)
	i.NormalizeEvidence()

	for _, e := range i.Evidence {
		if e.Supports != nil {
			t.Error("issue evidence must not carry a supports flag")
		}
	}
}

func TestIssueResolve(t *testing.T) {
	i := NewIssue("run-1", "Tool timeouts", "Search tool times out", SeverityCritical)

	if i.Status != IssueOpen {
		t.Fatalf("new issue should be OPEN, got %s", i.Status)
	}

	i.Resolve("Increased timeout to 60s")
	if i.Status != IssueResolved {
		t.Errorf("resolved issue status = %s, want RESOLVED", i.Status)
	}
	if i.Resolution != "Increased timeout to 60s" {
		t.Errorf("resolution not recorded: %q", i.Resolution)
	}
}

func TestSummarizeAnalysisCountsValidated(t *testing.T) {
	a := NewAnalysis("name", "desc")
	hyps := []HypothesisSummary{
		{HypothesisID: "h1", Status: HypothesisValidated},
		{HypothesisID: "h2", Status: HypothesisTesting},
		{HypothesisID: "h3", Status: HypothesisValidated},
	}

	s := SummarizeAnalysis("run-1", a, hyps)
	if s.HypothesisCount != 3 {
		t.Errorf("HypothesisCount = %d, want 3", s.HypothesisCount)
	}
	if s.ValidatedCount != 2 {
		t.Errorf("ValidatedCount = %d, want 2", s.ValidatedCount)
	}
	if s.RunID != "run-1" {
		t.Errorf("RunID = %q", s.RunID)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestSummarizeAnalysisNilHypotheses(t *testing.T) {
	s := SummarizeAnalysis("run-1", NewAnalysis("n", "d"), nil)
	if s.Hypotheses == nil {
		t.Error("summary hypotheses should be an empty slice, not nil")
	}
}
