package insights

import (
	"context"
	"fmt"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewise/insights/internal/tracking"
)

// fakeTracker is an in-memory tracking server for client tests.
type fakeTracker struct {
	nextID      int
	runs        map[string]*tracking.Run
	artifacts   map[string]map[string][]byte // runID -> path -> data
	traces      map[string]*tracking.Trace
	experiments []*tracking.Experiment
	linked      map[string][]string // runID -> trace IDs
}

func newFakeTracker(experimentIDs ...string) *fakeTracker {
	f := &fakeTracker{
		runs:      map[string]*tracking.Run{},
		artifacts: map[string]map[string][]byte{},
		traces:    map[string]*tracking.Trace{},
		linked:    map[string][]string{},
	}
	for _, id := range experimentIDs {
		f.experiments = append(f.experiments, &tracking.Experiment{ExperimentID: id, Name: "exp-" + id})
	}
	return f
}

func (f *fakeTracker) CreateRun(ctx context.Context, req *tracking.CreateRunRequest) (*tracking.Run, error) {
	f.nextID++
	run := &tracking.Run{
		Info: tracking.RunInfo{
			RunID:        fmt.Sprintf("run-%d", f.nextID),
			RunName:      req.RunName,
			ExperimentID: req.ExperimentID,
			Status:       tracking.RunStatusRunning,
		},
		Data: tracking.RunData{Tags: req.Tags},
	}
	f.runs[run.Info.RunID] = run
	return run, nil
}

func (f *fakeTracker) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return run, nil
}

// matchFilter supports the conjunctive tag-equality filters the
// insights layer issues.
func matchFilter(run *tracking.Run, filter string) bool {
	if filter == "" {
		return true
	}
	for _, clause := range strings.Split(filter, " AND ") {
		parts := strings.SplitN(clause, " = ", 2)
		if len(parts) != 2 {
			return false
		}
		key := strings.TrimPrefix(strings.TrimSpace(parts[0]), "tags.")
		value := strings.Trim(strings.TrimSpace(parts[1]), "'")
		if run.Tag(key) != value {
			return false
		}
	}
	return true
}

func (f *fakeTracker) SearchRuns(ctx context.Context, req *tracking.SearchRunsRequest) ([]*tracking.Run, error) {
	experiments := map[string]bool{}
	for _, id := range req.ExperimentIDs {
		experiments[id] = true
	}
	var out []*tracking.Run
	for i := 1; i <= f.nextID; i++ {
		run, ok := f.runs[fmt.Sprintf("run-%d", i)]
		if !ok || !experiments[run.Info.ExperimentID] {
			continue
		}
		if matchFilter(run, req.Filter) {
			out = append(out, run)
		}
	}
	if req.MaxResults > 0 && len(out) > req.MaxResults {
		out = out[:req.MaxResults]
	}
	return out, nil
}

func (f *fakeTracker) SetRunTag(ctx context.Context, runID, key, value string) error {
	run, ok := f.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	for i, t := range run.Data.Tags {
		if t.Key == key {
			run.Data.Tags[i].Value = value
			return nil
		}
	}
	run.Data.Tags = append(run.Data.Tags, tracking.RunTag{Key: key, Value: value})
	return nil
}

func (f *fakeTracker) UpdateRun(ctx context.Context, runID, status string) error {
	run, ok := f.runs[runID]
	if !ok {
		return tracking.ErrNotFound
	}
	run.Info.Status = status
	return nil
}

func (f *fakeTracker) SearchExperiments(ctx context.Context) ([]*tracking.Experiment, error) {
	return f.experiments, nil
}

func (f *fakeTracker) LogArtifact(ctx context.Context, runID, artifactPath string, data []byte) error {
	if _, ok := f.runs[runID]; !ok {
		return tracking.ErrNotFound
	}
	if f.artifacts[runID] == nil {
		f.artifacts[runID] = map[string][]byte{}
	}
	f.artifacts[runID][artifactPath] = data
	return nil
}

func (f *fakeTracker) DownloadArtifact(ctx context.Context, runID, artifactPath string) ([]byte, error) {
	data, ok := f.artifacts[runID][artifactPath]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return data, nil
}

func (f *fakeTracker) ListArtifacts(ctx context.Context, runID, dir string) ([]tracking.FileInfo, error) {
	files, ok := f.artifacts[runID]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	var out []tracking.FileInfo
	for p := range files {
		if path.Dir(p) == dir {
			out = append(out, tracking.FileInfo{Path: p, FileSize: int64(len(files[p]))})
		}
	}
	return out, nil
}

func (f *fakeTracker) GetTrace(ctx context.Context, traceID string) (*tracking.Trace, error) {
	tr, ok := f.traces[traceID]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return tr, nil
}

func (f *fakeTracker) LinkTracesToRun(ctx context.Context, traceIDs []string, runID string) error {
	f.linked[runID] = append(f.linked[runID], traceIDs...)
	return nil
}

var _ Tracker = (*fakeTracker)(nil)

func (f *fakeTracker) addTrace(id string, state tracking.TraceState) {
	f.traces[id] = &tracking.Trace{Info: tracking.TraceInfo{TraceID: id, State: state}}
}

// parentRuns returns the IDs of runs tagged as insights parents.
func (f *fakeTracker) parentRuns() []string {
	var ids []string
	for id, run := range f.runs {
		if run.Tag(TypeTag) == "parent" {
			ids = append(ids, id)
		}
	}
	return ids
}

func TestCreateAnalysisNestsUnderParent(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "latency check", "Latency analysis", "Why is p95 up")
	require.NoError(t, err)

	// A singleton parent run was created and closed.
	parents := ft.parentRuns()
	require.Len(t, parents, 1)
	parent := ft.runs[parents[0]]
	assert.Equal(t, "Insights", parent.Info.RunName)
	assert.Equal(t, tracking.RunStatusFinished, parent.Info.Status)
	assert.Equal(t, "true", parent.Tag(ParentTag))

	// The analysis run nests under it and carries the name tag.
	run := ft.runs[runID]
	require.NotNil(t, run)
	assert.Equal(t, parents[0], run.Tag(ParentRunTag))
	assert.Equal(t, "analysis", run.Tag(TypeTag))
	assert.Equal(t, "Latency analysis", run.Tag(NameTag))

	// And the YAML record is in place.
	loaded, err := client.GetAnalysis(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Latency analysis", loaded.Name)
	assert.Equal(t, AnalysisActive, loaded.Status)
}

func TestCreateAnalysisReusesParent(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	_, err := client.CreateAnalysis(ctx, "exp-1", "a", "First", "d")
	require.NoError(t, err)
	_, err = client.CreateAnalysis(ctx, "exp-1", "b", "Second", "d")
	require.NoError(t, err)

	assert.Len(t, ft.parentRuns(), 1, "parent run must be a singleton per experiment")
}

func TestCreateHypothesisRequiresAnalysis(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	run, err := ft.CreateRun(ctx, &tracking.CreateRunRequest{ExperimentID: "exp-1", RunName: "bare"})
	require.NoError(t, err)

	_, err = client.CreateHypothesis(ctx, run.Info.RunID, "stmt", "why", "plan", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAnalysis)
}

func TestCreateHypothesisDefaultsSupports(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	refutes := false
	hypID, err := client.CreateHypothesis(ctx, runID, "Long prompts fail", "context overflow", "sample traces",
		[]EvidenceInput{
			{TraceID: "tr-1", Rationale: "supports by default"},
			{TraceID: "tr-2", Rationale: "explicit refute", Supports: &refutes},
		})
	require.NoError(t, err)

	h, err := client.GetHypothesis(ctx, runID, hypID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, HypothesisTesting, h.Status)
	assert.Equal(t, 1, h.SupportsCount())
	assert.Equal(t, 1, h.RefutesCount())

	// Evidence traces were linked to the analysis run.
	assert.ElementsMatch(t, []string{"tr-1", "tr-2"}, ft.linked[runID])
}

func TestCreateHypothesisRejectsBadEvidence(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	_, err = client.CreateHypothesis(ctx, runID, "s", "r", "p",
		[]EvidenceInput{{TraceID: "tr-1"}}) // missing rationale
	require.Error(t, err)
}

func TestCreateIssueStoredOnParent(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	issueID, err := client.CreateIssue(ctx, runID, "Timeouts", "tool calls time out", SeverityHigh, "hyp-1",
		[]EvidenceInput{{TraceID: "tr-1", Rationale: "timed out"}})
	require.NoError(t, err)

	parents := ft.parentRuns()
	require.Len(t, parents, 1)
	_, ok := ft.artifacts[parents[0]][path.Join(ArtifactDir, IssueFilename(issueID))]
	assert.True(t, ok, "issue YAML must live on the parent run")

	issue, err := client.GetIssue(ctx, issueID)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, IssueOpen, issue.Status)
	assert.Equal(t, "hyp-1", issue.HypothesisID)
	assert.Equal(t, runID, issue.SourceRunID)
	// Issue evidence never carries a supports flag.
	for _, e := range issue.Evidence {
		assert.Nil(t, e.Supports)
	}
}

func TestUpdateAnalysis(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	completed := AnalysisCompleted
	newName := "A2"
	require.NoError(t, client.UpdateAnalysis(ctx, runID, &UpdateAnalysisRequest{
		Name:   &newName,
		Status: &completed,
	}))

	a, err := client.GetAnalysis(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "A2", a.Name)
	assert.Equal(t, AnalysisCompleted, a.Status)
	assert.True(t, a.UpdatedAt.After(a.CreatedAt) || a.UpdatedAt.Equal(a.CreatedAt))
}

func TestUpdateHypothesisAppendsEvidence(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)
	hypID, err := client.CreateHypothesis(ctx, runID, "s", "r", "p",
		[]EvidenceInput{{TraceID: "tr-1", Rationale: "first"}})
	require.NoError(t, err)

	validated := HypothesisValidated
	require.NoError(t, client.UpdateHypothesis(ctx, runID, hypID, &UpdateHypothesisRequest{
		Status:   &validated,
		Evidence: []EvidenceInput{{TraceID: "tr-2", Rationale: "second"}},
	}))

	h, err := client.GetHypothesis(ctx, runID, hypID)
	require.NoError(t, err)
	assert.Equal(t, HypothesisValidated, h.Status)
	assert.Equal(t, 2, h.EvidenceCount())
}

func TestUpdateIssueResolution(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)
	issueID, err := client.CreateIssue(ctx, runID, "T", "d", SeverityMedium, "", nil)
	require.NoError(t, err)

	resolution := "fixed upstream"
	require.NoError(t, client.UpdateIssue(ctx, runID, issueID, &UpdateIssueRequest{
		Resolution: &resolution,
	}))

	issue, err := client.GetIssue(ctx, issueID)
	require.NoError(t, err)
	assert.Equal(t, IssueResolved, issue.Status)
	assert.Equal(t, "fixed upstream", issue.Resolution)
}

func TestUpdateIssueViaParentRun(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)
	issueID, err := client.CreateIssue(ctx, runID, "T", "d", SeverityMedium, "", nil)
	require.NoError(t, err)

	parents := ft.parentRuns()
	require.Len(t, parents, 1)

	// Addressing the parent run directly patches the same issue.
	sev := SeverityCritical
	require.NoError(t, client.UpdateIssue(ctx, parents[0], issueID, &UpdateIssueRequest{
		Severity: &sev,
	}))

	issue, err := client.GetIssue(ctx, issueID)
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, issue.Severity)
	assert.Len(t, ft.parentRuns(), 1, "no duplicate parent run")
}

func TestListAnalysesEmbedsHypotheses(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)
	_, err = client.CreateHypothesis(ctx, runID, "s1", "r", "p", nil)
	require.NoError(t, err)
	_, err = client.CreateHypothesis(ctx, runID, "s2", "r", "p", nil)
	require.NoError(t, err)

	analyses, err := client.ListAnalyses(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, runID, analyses[0].RunID)
	assert.Equal(t, 2, analyses[0].HypothesisCount)
	assert.Len(t, analyses[0].Hypotheses, 2)
}

func TestListIssuesSortedByTraceCount(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	small, err := client.CreateIssue(ctx, runID, "Small", "d", SeverityLow, "",
		[]EvidenceInput{{TraceID: "tr-1", Rationale: "x"}})
	require.NoError(t, err)
	big, err := client.CreateIssue(ctx, runID, "Big", "d", SeverityHigh, "",
		[]EvidenceInput{
			{TraceID: "tr-1", Rationale: "x"},
			{TraceID: "tr-2", Rationale: "x"},
			{TraceID: "tr-3", Rationale: "x"},
		})
	require.NoError(t, err)

	issues, err := client.ListIssues(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, big, issues[0].IssueID)
	assert.Equal(t, small, issues[1].IssueID)
}

func TestGetAnalysisMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	run, err := ft.CreateRun(ctx, &tracking.CreateRunRequest{ExperimentID: "exp-1"})
	require.NoError(t, err)

	a, err := client.GetAnalysis(ctx, run.Info.RunID)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestGetIssueScansExperiments(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1", "exp-2")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-2", "r", "A", "d")
	require.NoError(t, err)
	issueID, err := client.CreateIssue(ctx, runID, "Cross", "d", SeverityLow, "", nil)
	require.NoError(t, err)

	issue, err := client.GetIssue(ctx, issueID)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, "Cross", issue.Title)

	missing, err := client.GetIssue(ctx, "no-such-issue")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPreviewHypothesesSkipsFailures(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)
	_, err = client.CreateHypothesis(ctx, runID, "s", "r", "p",
		[]EvidenceInput{
			{TraceID: "tr-1", Rationale: "x"},
			{TraceID: "tr-missing", Rationale: "x"},
			{TraceID: "tr-2", Rationale: "x"},
		})
	require.NoError(t, err)

	ft.addTrace("tr-1", tracking.TraceStateOK)
	ft.addTrace("tr-2", tracking.TraceStateError)

	traces, err := client.PreviewHypotheses(ctx, runID, 100)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "tr-1", traces[0].Info.TraceID)
	assert.Equal(t, "tr-2", traces[1].Info.TraceID)
}

func TestPreviewHypothesesHonorsMaxTraces(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	var evidence []EvidenceInput
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("tr-%d", i)
		ft.addTrace(id, tracking.TraceStateOK)
		evidence = append(evidence, EvidenceInput{TraceID: id, Rationale: "x"})
	}
	_, err = client.CreateHypothesis(ctx, runID, "s", "r", "p", evidence)
	require.NoError(t, err)

	traces, err := client.PreviewHypotheses(ctx, runID, 2)
	require.NoError(t, err)
	assert.Len(t, traces, 2)
}

func TestBaselineCensusRoundTrip(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)

	census := &BaselineCensus{
		Metadata: CensusMetadata{TableName: "prod.traces"},
		OperationalMetrics: OperationalMetrics{
			TotalTraces: 100,
			ErrorCount:  5,
		},
	}
	_, err = client.SaveBaselineCensus(ctx, runID, census, []string{"SELECT 1", "SELECT 2"})
	require.NoError(t, err)

	loaded, err := client.GetBaselineCensus(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "prod.traces", loaded.Metadata.TableName)
	assert.Equal(t, int64(100), loaded.OperationalMetrics.TotalTraces)

	// Both queries were appended to the SQL log.
	data, err := ft.DownloadArtifact(ctx, runID, path.Join(ArtifactDir, SQLQueriesFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "SELECT 1")
	assert.Contains(t, string(data), "SELECT 2")
}

func TestUpdateBaselineCensusPatchesMetadata(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTracker("exp-1")
	client := NewClient(ft)

	runID, err := client.CreateAnalysis(ctx, "exp-1", "r", "A", "d")
	require.NoError(t, err)
	_, err = client.SaveBaselineCensus(ctx, runID, &BaselineCensus{
		Metadata:           CensusMetadata{TableName: "old.table"},
		OperationalMetrics: OperationalMetrics{TotalTraces: 7},
	}, nil)
	require.NoError(t, err)

	newTable := "new.table"
	_, err = client.UpdateBaselineCensus(ctx, runID, &UpdateBaselineCensusRequest{
		TableName: &newTable,
		Metadata:  map[string]any{"owner": "ops"},
	})
	require.NoError(t, err)

	census, err := client.GetBaselineCensus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "new.table", census.Metadata.TableName)
	assert.Equal(t, "ops", census.Metadata.AdditionalMetadata["owner"])
	// Metrics are untouched without a regenerate.
	assert.Equal(t, int64(7), census.OperationalMetrics.TotalTraces)
}
