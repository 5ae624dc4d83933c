package insights

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the lifecycle state of an analysis.
type AnalysisStatus string

const (
	AnalysisActive    AnalysisStatus = "ACTIVE"
	AnalysisCompleted AnalysisStatus = "COMPLETED"
	AnalysisArchived  AnalysisStatus = "ARCHIVED"
)

// IsValid checks if the status value is valid.
func (s AnalysisStatus) IsValid() bool {
	switch s {
	case AnalysisActive, AnalysisCompleted, AnalysisArchived:
		return true
	}
	return false
}

// HypothesisStatus is the lifecycle state of a hypothesis.
type HypothesisStatus string

const (
	HypothesisTesting   HypothesisStatus = "TESTING"
	HypothesisValidated HypothesisStatus = "VALIDATED"
	HypothesisRejected  HypothesisStatus = "REJECTED"
)

// IsValid checks if the status value is valid.
func (s HypothesisStatus) IsValid() bool {
	switch s {
	case HypothesisTesting, HypothesisValidated, HypothesisRejected:
		return true
	}
	return false
}

// IssueSeverity is the severity level of an issue.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "CRITICAL"
	SeverityHigh     IssueSeverity = "HIGH"
	SeverityMedium   IssueSeverity = "MEDIUM"
	SeverityLow      IssueSeverity = "LOW"
)

// IsValid checks if the severity value is valid.
func (s IssueSeverity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "OPEN"
	IssueInProgress IssueStatus = "IN_PROGRESS"
	IssueResolved   IssueStatus = "RESOLVED"
	IssueRejected   IssueStatus = "REJECTED"
)

// IsValid checks if the status value is valid.
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueResolved, IssueRejected:
		return true
	}
	return false
}

// Analysis is a high-level investigation tied to one tracking run.
// Stored as analysis.yaml in the insights/ artifact directory.
type Analysis struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Status      AnalysisStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewAnalysis creates an active analysis with timestamps set.
func NewAnalysis(name, description string) *Analysis {
	now := time.Now().UTC()
	return &Analysis{
		Name:        name,
		Description: description,
		Status:      AnalysisActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    map[string]any{},
	}
}

// Validate checks required fields and enum values.
func (a *Analysis) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid analysis status: %s", a.Status)
	}
	return nil
}

// Touch updates the updated_at timestamp.
func (a *Analysis) Touch() {
	a.UpdatedAt = time.Now().UTC()
}

// EvidenceEntry links a trace to a hypothesis or an issue.
// Supports is nil for issue evidence.
type EvidenceEntry struct {
	TraceID   string `json:"trace_id" yaml:"trace_id"`
	Rationale string `json:"rationale" yaml:"rationale"`
	Supports  *bool  `json:"supports" yaml:"supports"`
}

// Hypothesis is a testable statement under investigation.
// Stored as hypothesis_<id>.yaml in the insights/ artifact directory.
type Hypothesis struct {
	HypothesisID string           `json:"hypothesis_id" yaml:"hypothesis_id"`
	Statement    string           `json:"statement" yaml:"statement"`
	Rationale    string           `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	TestingPlan  string           `json:"testing_plan" yaml:"testing_plan"`
	Status       HypothesisStatus `json:"status" yaml:"status"`
	Evidence     []EvidenceEntry  `json:"evidence" yaml:"evidence"`
	Metrics      map[string]any   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	CreatedAt    time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" yaml:"updated_at"`
	Metadata     map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewHypothesis creates a hypothesis in TESTING state with a fresh UUID.
func NewHypothesis(statement, rationale, testingPlan string) *Hypothesis {
	now := time.Now().UTC()
	return &Hypothesis{
		HypothesisID: uuid.NewString(),
		Statement:    statement,
		Rationale:    rationale,
		TestingPlan:  testingPlan,
		Status:       HypothesisTesting,
		Evidence:     []EvidenceEntry{},
		Metrics:      map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     map[string]any{},
	}
}

// AddEvidence appends an evidence entry and bumps the timestamp.
func (h *Hypothesis) AddEvidence(traceID, rationale string, supports bool) {
	s := supports
	h.Evidence = append(h.Evidence, EvidenceEntry{TraceID: traceID, Rationale: rationale, Supports: &s})
	h.Touch()
}

// Touch updates the updated_at timestamp.
func (h *Hypothesis) Touch() {
	h.UpdatedAt = time.Now().UTC()
}

// TraceIDs returns the unique trace IDs referenced by the evidence,
// in first-seen order.
func (h *Hypothesis) TraceIDs() []string {
	return uniqueTraceIDs(h.Evidence)
}

// TraceCount is the number of unique traces referenced as evidence.
func (h *Hypothesis) TraceCount() int {
	return len(h.TraceIDs())
}

// EvidenceCount is the number of evidence entries.
func (h *Hypothesis) EvidenceCount() int {
	return len(h.Evidence)
}

// SupportsCount is the number of supporting evidence entries.
func (h *Hypothesis) SupportsCount() int {
	n := 0
	for _, e := range h.Evidence {
		if e.Supports != nil && *e.Supports {
			n++
		}
	}
	return n
}

// RefutesCount is the number of refuting evidence entries.
func (h *Hypothesis) RefutesCount() int {
	n := 0
	for _, e := range h.Evidence {
		if e.Supports != nil && !*e.Supports {
			n++
		}
	}
	return n
}

// Issue is a validated problem discovered through investigation.
// Stored as issue_<id>.yaml in the experiment's parent insights run.
type Issue struct {
	IssueID      string          `json:"issue_id" yaml:"issue_id"`
	SourceRunID  string          `json:"source_run_id" yaml:"source_run_id"`
	HypothesisID string          `json:"hypothesis_id,omitempty" yaml:"hypothesis_id,omitempty"`
	Title        string          `json:"title" yaml:"title"`
	Description  string          `json:"description" yaml:"description"`
	Severity     IssueSeverity   `json:"severity" yaml:"severity"`
	Status       IssueStatus     `json:"status" yaml:"status"`
	Evidence     []EvidenceEntry `json:"evidence" yaml:"evidence"`
	Assessments  []string        `json:"assessments" yaml:"assessments"`
	Resolution   string          `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"updated_at"`
	Metadata     map[string]any  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewIssue creates an open issue with a fresh UUID.
func NewIssue(sourceRunID, title, description string, severity IssueSeverity) *Issue {
	now := time.Now().UTC()
	return &Issue{
		IssueID:     uuid.NewString(),
		SourceRunID: sourceRunID,
		Title:       title,
		Description: description,
		Severity:    severity,
		Status:      IssueOpen,
		Evidence:    []EvidenceEntry{},
		Assessments: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    map[string]any{},
	}
}

// Validate checks required fields and enum values.
func (i *Issue) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if i.Description == "" {
		return fmt.Errorf("description is required")
	}
	if i.SourceRunID == "" {
		return fmt.Errorf("source_run_id is required")
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid issue severity: %s", i.Severity)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid issue status: %s", i.Status)
	}
	return nil
}

// AddEvidence appends an evidence entry. Issue evidence never carries a
// supports flag.
func (i *Issue) AddEvidence(traceID, rationale string) {
	i.Evidence = append(i.Evidence, EvidenceEntry{TraceID: traceID, Rationale: rationale})
	i.Touch()
}

// AddAssessment records an assessment name once.
func (i *Issue) AddAssessment(assessment string) {
	for _, a := range i.Assessments {
		if a == assessment {
			return
		}
	}
	i.Assessments = append(i.Assessments, assessment)
	i.Touch()
}

// Resolve marks the issue resolved with a resolution description.
func (i *Issue) Resolve(resolution string) {
	i.Status = IssueResolved
	i.Resolution = resolution
	i.Touch()
}

// NormalizeEvidence forces supports to nil on all evidence entries.
// Applied after deserialization so hand-edited YAML cannot smuggle a
// supports flag into issue evidence.
func (i *Issue) NormalizeEvidence() {
	for idx := range i.Evidence {
		i.Evidence[idx].Supports = nil
	}
}

// Touch updates the updated_at timestamp.
func (i *Issue) Touch() {
	i.UpdatedAt = time.Now().UTC()
}

// TraceCount is the number of unique traces referenced as evidence.
func (i *Issue) TraceCount() int {
	return len(uniqueTraceIDs(i.Evidence))
}

// TraceIDs returns the unique trace IDs referenced by the evidence.
func (i *Issue) TraceIDs() []string {
	return uniqueTraceIDs(i.Evidence)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func uniqueTraceIDs(evidence []EvidenceEntry) []string {
	seen := make(map[string]struct{}, len(evidence))
	var ids []string
	for _, e := range evidence {
		if _, ok := seen[e.TraceID]; ok {
			continue
		}
		seen[e.TraceID] = struct{}{}
		ids = append(ids, e.TraceID)
	}
	return ids
}

// AnalysisSummary is the list view of an analysis.
type AnalysisSummary struct {
	RunID           string              `json:"run_id" yaml:"run_id"`
	Name            string              `json:"name" yaml:"name"`
	Description     string              `json:"description" yaml:"description"`
	Status          AnalysisStatus      `json:"status" yaml:"status"`
	CreatedAt       time.Time           `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" yaml:"updated_at"`
	HypothesisCount int                 `json:"hypothesis_count" yaml:"hypothesis_count"`
	ValidatedCount  int                 `json:"validated_count" yaml:"validated_count"`
	Hypotheses      []HypothesisSummary `json:"hypotheses" yaml:"hypotheses"`
}

// SummarizeAnalysis builds an AnalysisSummary from a full analysis and
// its hypothesis summaries.
func SummarizeAnalysis(runID string, a *Analysis, hypotheses []HypothesisSummary) AnalysisSummary {
	validated := 0
	for _, h := range hypotheses {
		if h.Status == HypothesisValidated {
			validated++
		}
	}
	if hypotheses == nil {
		hypotheses = []HypothesisSummary{}
	}
	return AnalysisSummary{
		RunID:           runID,
		Name:            a.Name,
		Description:     a.Description,
		Status:          a.Status,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		HypothesisCount: len(hypotheses),
		ValidatedCount:  validated,
		Hypotheses:      hypotheses,
	}
}

// HypothesisSummary is the list view of a hypothesis.
type HypothesisSummary struct {
	HypothesisID  string           `json:"hypothesis_id" yaml:"hypothesis_id"`
	Statement     string           `json:"statement" yaml:"statement"`
	TestingPlan   string           `json:"testing_plan,omitempty" yaml:"testing_plan,omitempty"`
	Status        HypothesisStatus `json:"status" yaml:"status"`
	TraceCount    int              `json:"trace_count" yaml:"trace_count"`
	EvidenceCount int              `json:"evidence_count" yaml:"evidence_count"`
	SupportsCount int              `json:"supports_count" yaml:"supports_count"`
	RefutesCount  int              `json:"refutes_count" yaml:"refutes_count"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"updated_at"`
}

// SummarizeHypothesis builds a HypothesisSummary from a full hypothesis.
func SummarizeHypothesis(h *Hypothesis) HypothesisSummary {
	return HypothesisSummary{
		HypothesisID:  h.HypothesisID,
		Statement:     h.Statement,
		TestingPlan:   h.TestingPlan,
		Status:        h.Status,
		TraceCount:    h.TraceCount(),
		EvidenceCount: h.EvidenceCount(),
		SupportsCount: h.SupportsCount(),
		RefutesCount:  h.RefutesCount(),
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
	}
}

// IssueSummary is the list view of an issue.
type IssueSummary struct {
	IssueID     string        `json:"issue_id" yaml:"issue_id"`
	Title       string        `json:"title" yaml:"title"`
	Severity    IssueSeverity `json:"severity" yaml:"severity"`
	Status      IssueStatus   `json:"status" yaml:"status"`
	TraceCount  int           `json:"trace_count" yaml:"trace_count"`
	SourceRunID string        `json:"source_run_id" yaml:"source_run_id"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"updated_at"`
}

// SummarizeIssue builds an IssueSummary from a full issue.
func SummarizeIssue(i *Issue) IssueSummary {
	return IssueSummary{
		IssueID:     i.IssueID,
		Title:       i.Title,
		Severity:    i.Severity,
		Status:      i.Status,
		TraceCount:  i.TraceCount(),
		SourceRunID: i.SourceRunID,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}
