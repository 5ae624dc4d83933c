package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tracewise/insights/internal/tracking"
)

// Tracker is the slice of the tracking API the insights layer uses.
// *tracking.Client satisfies it; tests substitute fakes.
type Tracker interface {
	CreateRun(ctx context.Context, req *tracking.CreateRunRequest) (*tracking.Run, error)
	GetRun(ctx context.Context, runID string) (*tracking.Run, error)
	SearchRuns(ctx context.Context, req *tracking.SearchRunsRequest) ([]*tracking.Run, error)
	SetRunTag(ctx context.Context, runID, key, value string) error
	UpdateRun(ctx context.Context, runID, status string) error
	SearchExperiments(ctx context.Context) ([]*tracking.Experiment, error)

	LogArtifact(ctx context.Context, runID, artifactPath string, data []byte) error
	DownloadArtifact(ctx context.Context, runID, artifactPath string) ([]byte, error)
	ListArtifacts(ctx context.Context, runID, dir string) ([]tracking.FileInfo, error)

	GetTrace(ctx context.Context, traceID string) (*tracking.Trace, error)
	LinkTracesToRun(ctx context.Context, traceIDs []string, runID string) error
}

var _ Tracker = (*tracking.Client)(nil)

// ErrNoAnalysis reports that a run has no analysis record yet.
var ErrNoAnalysis = errors.New("run does not contain an analysis; create an analysis first")

// previewFetchWorkers bounds concurrent trace fetches during preview.
const previewFetchWorkers = 8

// Client manages analyses, hypotheses, and issues on top of a tracking
// server. All state lives in YAML artifacts of tracking runs; the
// client itself is stateless.
type Client struct {
	t Tracker
}

// NewClient wraps a tracking client.
func NewClient(t Tracker) *Client {
	return &Client{t: t}
}

// EvidenceInput is one evidence entry supplied by a caller. Supports
// defaults to true for hypotheses and is discarded for issues.
type EvidenceInput struct {
	TraceID   string `json:"trace_id"`
	Rationale string `json:"rationale"`
	Supports  *bool  `json:"supports,omitempty"`
}

func (e *EvidenceInput) validate() error {
	if e.TraceID == "" || e.Rationale == "" {
		return fmt.Errorf("evidence must have trace_id and rationale fields")
	}
	return nil
}

func (c *Client) requireAnalysis(ctx context.Context, runID string) error {
	ok, err := runHasAnalysis(ctx, c.t, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNoAnalysis)
	}
	return nil
}

// CreateAnalysis creates a new analysis run nested under the
// experiment's parent insights run and returns the new run ID.
func (c *Client) CreateAnalysis(ctx context.Context, experimentID, runName, name, description string) (string, error) {
	runID, err := createAnalysisRun(ctx, c.t, experimentID, runName)
	if err != nil {
		return "", err
	}

	analysis := NewAnalysis(name, description)
	if err := analysis.Validate(); err != nil {
		return "", err
	}
	if err := saveYAML(ctx, c.t, runID, AnalysisFilename, analysis); err != nil {
		return "", err
	}
	// Tag for searchability; the YAML stays authoritative.
	if err := c.t.SetRunTag(ctx, runID, NameTag, name); err != nil {
		return "", err
	}
	return runID, nil
}

// CreateHypothesis creates a hypothesis inside an analysis run and
// returns the hypothesis ID. The run must already hold an analysis.
func (c *Client) CreateHypothesis(ctx context.Context, runID, statement, rationale, testingPlan string, evidence []EvidenceInput) (string, error) {
	if err := c.requireAnalysis(ctx, runID); err != nil {
		return "", err
	}

	h := NewHypothesis(statement, rationale, testingPlan)
	var traceIDs []string
	for i := range evidence {
		ev := &evidence[i]
		if err := ev.validate(); err != nil {
			return "", err
		}
		supports := true
		if ev.Supports != nil {
			supports = *ev.Supports
		}
		h.AddEvidence(ev.TraceID, ev.Rationale, supports)
		traceIDs = append(traceIDs, ev.TraceID)
	}

	if err := saveYAML(ctx, c.t, runID, HypothesisFilename(h.HypothesisID), h); err != nil {
		return "", err
	}
	c.linkTraces(ctx, traceIDs, runID)
	return h.HypothesisID, nil
}

// CreateIssue creates a validated issue in the experiment's parent run
// and returns the issue ID. sourceRunID is the analysis run that
// produced the issue.
func (c *Client) CreateIssue(ctx context.Context, sourceRunID, title, description string, severity IssueSeverity, hypothesisID string, evidence []EvidenceInput) (string, error) {
	if err := c.requireAnalysis(ctx, sourceRunID); err != nil {
		return "", err
	}
	parentID, err := c.resolveParent(ctx, sourceRunID)
	if err != nil {
		return "", err
	}

	issue := NewIssue(sourceRunID, title, description, severity)
	issue.HypothesisID = hypothesisID
	var traceIDs []string
	for i := range evidence {
		ev := &evidence[i]
		if err := ev.validate(); err != nil {
			return "", err
		}
		issue.AddEvidence(ev.TraceID, ev.Rationale)
		traceIDs = append(traceIDs, ev.TraceID)
	}
	if err := issue.Validate(); err != nil {
		return "", err
	}

	if err := saveYAML(ctx, c.t, parentID, IssueFilename(issue.IssueID), issue); err != nil {
		return "", err
	}
	c.linkTraces(ctx, traceIDs, parentID)
	return issue.IssueID, nil
}

// resolveParent finds the parent run of an analysis run, creating the
// experiment's parent insights run when the analysis is not nested.
// Passing the parent run itself resolves to that run.
func (c *Client) resolveParent(ctx context.Context, runID string) (string, error) {
	parentID, err := parentRunID(ctx, c.t, runID)
	if err != nil {
		return "", err
	}
	if parentID != "" {
		return parentID, nil
	}
	ok, err := isParentRun(ctx, c.t, runID)
	if err != nil {
		return "", err
	}
	if ok {
		return runID, nil
	}
	run, err := c.t.GetRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("resolve experiment for run %s: %w", runID, err)
	}
	return getOrCreateParentRun(ctx, c.t, run.Info.ExperimentID)
}

// linkTraces associates traces with a run. Linking is best effort;
// failures never fail the calling operation.
func (c *Client) linkTraces(ctx context.Context, traceIDs []string, runID string) {
	if len(traceIDs) == 0 {
		return
	}
	_ = c.t.LinkTracesToRun(ctx, traceIDs, runID)
}

// UpdateAnalysisRequest carries optional field updates; nil fields are
// left unchanged.
type UpdateAnalysisRequest struct {
	Name        *string
	Description *string
	Status      *AnalysisStatus
}

// UpdateAnalysis applies a partial update to a run's analysis record.
func (c *Client) UpdateAnalysis(ctx context.Context, runID string, req *UpdateAnalysisRequest) error {
	analysis, err := c.GetAnalysis(ctx, runID)
	if err != nil {
		return err
	}
	if analysis == nil {
		return fmt.Errorf("no analysis found in run %s", runID)
	}

	if req.Name != nil {
		analysis.Name = *req.Name
	}
	if req.Description != nil {
		analysis.Description = *req.Description
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return fmt.Errorf("invalid analysis status: %s", *req.Status)
		}
		analysis.Status = *req.Status
	}
	analysis.Touch()
	return saveYAML(ctx, c.t, runID, AnalysisFilename, analysis)
}

// UpdateHypothesisRequest carries optional field updates. Evidence
// entries are appended, never replaced.
type UpdateHypothesisRequest struct {
	Status      *HypothesisStatus
	Rationale   *string
	TestingPlan *string
	Evidence    []EvidenceInput
}

// UpdateHypothesis applies a partial update to a hypothesis.
func (c *Client) UpdateHypothesis(ctx context.Context, runID, hypothesisID string, req *UpdateHypothesisRequest) error {
	h, err := c.GetHypothesis(ctx, runID, hypothesisID)
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("hypothesis %s not found in run %s", hypothesisID, runID)
	}

	if req.Status != nil {
		if !req.Status.IsValid() {
			return fmt.Errorf("invalid hypothesis status: %s", *req.Status)
		}
		h.Status = *req.Status
	}
	if req.Rationale != nil {
		h.Rationale = *req.Rationale
	}
	if req.TestingPlan != nil {
		h.TestingPlan = *req.TestingPlan
	}

	var newTraceIDs []string
	for i := range req.Evidence {
		ev := &req.Evidence[i]
		if err := ev.validate(); err != nil {
			return err
		}
		supports := true
		if ev.Supports != nil {
			supports = *ev.Supports
		}
		h.AddEvidence(ev.TraceID, ev.Rationale, supports)
		newTraceIDs = append(newTraceIDs, ev.TraceID)
	}
	h.Touch()

	if err := saveYAML(ctx, c.t, runID, HypothesisFilename(hypothesisID), h); err != nil {
		return err
	}
	c.linkTraces(ctx, newTraceIDs, runID)
	return nil
}

// UpdateIssueRequest carries optional field updates. Setting Resolution
// also transitions the issue to RESOLVED.
type UpdateIssueRequest struct {
	Severity   *IssueSeverity
	Status     *IssueStatus
	Resolution *string
	Evidence   []EvidenceInput
}

// UpdateIssue applies a partial update to an issue stored in the
// parent run. runID may be any analysis run of the experiment.
func (c *Client) UpdateIssue(ctx context.Context, runID, issueID string, req *UpdateIssueRequest) error {
	parentID, err := c.resolveParent(ctx, runID)
	if err != nil {
		return err
	}

	var issue Issue
	if err := loadYAML(ctx, c.t, parentID, IssueFilename(issueID), &issue); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return fmt.Errorf("issue %s not found", issueID)
		}
		return err
	}
	issue.NormalizeEvidence()

	if req.Severity != nil {
		if !req.Severity.IsValid() {
			return fmt.Errorf("invalid issue severity: %s", *req.Severity)
		}
		issue.Severity = *req.Severity
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return fmt.Errorf("invalid issue status: %s", *req.Status)
		}
		issue.Status = *req.Status
	}
	if req.Resolution != nil {
		issue.Resolve(*req.Resolution)
	}

	var newTraceIDs []string
	for i := range req.Evidence {
		ev := &req.Evidence[i]
		if err := ev.validate(); err != nil {
			return err
		}
		issue.AddEvidence(ev.TraceID, ev.Rationale)
		newTraceIDs = append(newTraceIDs, ev.TraceID)
	}
	issue.Touch()

	if err := saveYAML(ctx, c.t, parentID, IssueFilename(issueID), &issue); err != nil {
		return err
	}
	c.linkTraces(ctx, newTraceIDs, parentID)
	return nil
}

// ListAnalyses returns summaries of all analyses in an experiment,
// each with its hypothesis summaries embedded.
func (c *Client) ListAnalyses(ctx context.Context, experimentID string) ([]AnalysisSummary, error) {
	runs, err := listAnalysisRuns(ctx, c.t, experimentID)
	if err != nil {
		return nil, err
	}

	summaries := []AnalysisSummary{}
	for _, run := range runs {
		analysis, err := c.GetAnalysis(ctx, run.Info.RunID)
		if err != nil {
			return nil, err
		}
		if analysis == nil {
			continue
		}
		hypotheses, err := c.ListHypotheses(ctx, run.Info.RunID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, SummarizeAnalysis(run.Info.RunID, analysis, hypotheses))
	}
	return summaries, nil
}

// ListHypotheses returns summaries of all hypotheses in an analysis run.
func (c *Client) ListHypotheses(ctx context.Context, runID string) ([]HypothesisSummary, error) {
	files, err := listYAMLFiles(ctx, c.t, runID, "hypothesis_")
	if err != nil {
		return nil, err
	}
	summaries := []HypothesisSummary{}
	for _, filename := range files {
		var h Hypothesis
		if err := loadYAML(ctx, c.t, runID, filename, &h); err != nil {
			if errors.Is(err, tracking.ErrNotFound) {
				continue
			}
			return nil, err
		}
		summaries = append(summaries, SummarizeHypothesis(&h))
	}
	return summaries, nil
}

// ListIssues returns summaries of all issues in an experiment, sorted
// by trace count descending.
func (c *Client) ListIssues(ctx context.Context, experimentID string) ([]IssueSummary, error) {
	parentID, err := getOrCreateParentRun(ctx, c.t, experimentID)
	if err != nil {
		return nil, err
	}
	files, err := listYAMLFiles(ctx, c.t, parentID, "issue_")
	if err != nil {
		return nil, err
	}

	summaries := []IssueSummary{}
	for _, filename := range files {
		var issue Issue
		if err := loadYAML(ctx, c.t, parentID, filename, &issue); err != nil {
			if errors.Is(err, tracking.ErrNotFound) {
				continue
			}
			return nil, err
		}
		issue.NormalizeEvidence()
		summaries = append(summaries, SummarizeIssue(&issue))
	}

	sort.SliceStable(summaries, func(a, b int) bool {
		return summaries[a].TraceCount > summaries[b].TraceCount
	})
	return summaries, nil
}

// GetAnalysis returns the analysis stored in a run, or nil when the
// run has none.
func (c *Client) GetAnalysis(ctx context.Context, runID string) (*Analysis, error) {
	var a Analysis
	if err := loadYAML(ctx, c.t, runID, AnalysisFilename, &a); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetHypothesis returns a hypothesis by ID, or nil when absent.
func (c *Client) GetHypothesis(ctx context.Context, runID, hypothesisID string) (*Hypothesis, error) {
	var h Hypothesis
	if err := loadYAML(ctx, c.t, runID, HypothesisFilename(hypothesisID), &h); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

// GetIssue looks an issue up by ID across the parent runs of all
// experiments visible to the caller. Returns nil when not found.
func (c *Client) GetIssue(ctx context.Context, issueID string) (*Issue, error) {
	experiments, err := c.t.SearchExperiments(ctx)
	if err != nil {
		return nil, err
	}
	for _, exp := range experiments {
		runs, err := c.t.SearchRuns(ctx, &tracking.SearchRunsRequest{
			ExperimentIDs: []string{exp.ExperimentID},
			Filter:        fmt.Sprintf("tags.%s = '%s'", TypeTag, typeParent),
			RunViewType:   tracking.ViewActiveOnly,
			MaxResults:    1,
		})
		if err != nil || len(runs) == 0 {
			continue
		}
		var issue Issue
		if err := loadYAML(ctx, c.t, runs[0].Info.RunID, IssueFilename(issueID), &issue); err != nil {
			continue
		}
		issue.NormalizeEvidence()
		return &issue, nil
	}
	return nil, nil
}

// PreviewHypotheses fetches the traces referenced as evidence by all
// hypotheses of an analysis run, up to maxTraces. Traces that cannot
// be fetched are skipped.
func (c *Client) PreviewHypotheses(ctx context.Context, runID string, maxTraces int) ([]*tracking.Trace, error) {
	files, err := listYAMLFiles(ctx, c.t, runID, "hypothesis_")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var traceIDs []string
	for _, filename := range files {
		var h Hypothesis
		if err := loadYAML(ctx, c.t, runID, filename, &h); err != nil {
			continue
		}
		for _, id := range h.TraceIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				traceIDs = append(traceIDs, id)
			}
		}
	}
	return c.fetchTraces(ctx, traceIDs, maxTraces)
}

// PreviewIssues fetches the traces referenced as evidence by all
// issues of an experiment, up to maxTraces.
func (c *Client) PreviewIssues(ctx context.Context, experimentID string, maxTraces int) ([]*tracking.Trace, error) {
	parentID, err := getOrCreateParentRun(ctx, c.t, experimentID)
	if err != nil {
		return nil, err
	}
	files, err := listYAMLFiles(ctx, c.t, parentID, "issue_")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var traceIDs []string
	for _, filename := range files {
		var issue Issue
		if err := loadYAML(ctx, c.t, parentID, filename, &issue); err != nil {
			continue
		}
		for _, id := range issue.TraceIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				traceIDs = append(traceIDs, id)
			}
		}
	}
	return c.fetchTraces(ctx, traceIDs, maxTraces)
}

// fetchTraces fetches up to maxTraces traces concurrently, skipping
// any that fail. Result order follows the input IDs.
func (c *Client) fetchTraces(ctx context.Context, traceIDs []string, maxTraces int) ([]*tracking.Trace, error) {
	if maxTraces > 0 && len(traceIDs) > maxTraces {
		traceIDs = traceIDs[:maxTraces]
	}
	results := make([]*tracking.Trace, len(traceIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(previewFetchWorkers)
	for i, id := range traceIDs {
		i, id := i, id
		g.Go(func() error {
			trace, err := c.t.GetTrace(gctx, id)
			if err != nil {
				return nil // skip and continue
			}
			results[i] = trace
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	traces := make([]*tracking.Trace, 0, len(results))
	for _, tr := range results {
		if tr != nil {
			traces = append(traces, tr)
		}
	}
	return traces, nil
}

// GetBaselineCensus returns the run's baseline census, or nil when the
// run has none.
func (c *Client) GetBaselineCensus(ctx context.Context, runID string) (*BaselineCensus, error) {
	var census BaselineCensus
	if err := loadYAML(ctx, c.t, runID, CensusFilename, &census); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &census, nil
}

// SaveBaselineCensus stores a census on an analysis run and logs the
// SQL that produced it to sql_queries.yaml. The run must already hold
// an analysis.
func (c *Client) SaveBaselineCensus(ctx context.Context, runID string, census *BaselineCensus, queries []string) (string, error) {
	if err := c.requireAnalysis(ctx, runID); err != nil {
		return "", err
	}
	if err := saveYAML(ctx, c.t, runID, CensusFilename, census); err != nil {
		return "", err
	}
	for _, q := range queries {
		if err := appendSQLQuery(ctx, c.t, runID, q); err != nil {
			return "", err
		}
	}
	return CensusFilename, nil
}

// UpdateBaselineCensusRequest carries optional census updates applied
// without re-querying the warehouse.
type UpdateBaselineCensusRequest struct {
	TableName *string
	Metadata  map[string]any
}

// UpdateBaselineCensus patches the stored census metadata and
// refreshes its created_at timestamp.
func (c *Client) UpdateBaselineCensus(ctx context.Context, runID string, req *UpdateBaselineCensusRequest) (string, error) {
	if err := c.requireAnalysis(ctx, runID); err != nil {
		return "", err
	}
	census, err := c.GetBaselineCensus(ctx, runID)
	if err != nil {
		return "", err
	}
	if census == nil {
		return "", fmt.Errorf("no baseline census found in run %s", runID)
	}

	if req.TableName != nil {
		census.Metadata.TableName = *req.TableName
	}
	if len(req.Metadata) > 0 {
		if census.Metadata.AdditionalMetadata == nil {
			census.Metadata.AdditionalMetadata = map[string]any{}
		}
		for k, v := range req.Metadata {
			census.Metadata.AdditionalMetadata[k] = v
		}
	}
	census.Metadata.CreatedAt = nowUTC()

	if err := saveYAML(ctx, c.t, runID, CensusFilename, census); err != nil {
		return "", err
	}
	return CensusFilename, nil
}
