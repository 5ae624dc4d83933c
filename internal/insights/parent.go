package insights

import (
	"context"
	"fmt"

	"github.com/tracewise/insights/internal/tracking"
)

// Tags identifying insights runs on the tracking server.
const (
	TypeTag      = "mlflow.insights.type"
	ParentTag    = "mlflow.insights.parent"
	NameTag      = "mlflow.insights.name"
	NoteTag      = "mlflow.note"
	ParentRunTag = "mlflow.parentRunId"

	typeParent   = "parent"
	typeAnalysis = "analysis"

	parentRunName = "Insights"
)

// getOrCreateParentRun returns the experiment's singleton parent
// insights run, creating it on first use. All analysis runs nest under
// it and issues are stored in its artifacts.
func getOrCreateParentRun(ctx context.Context, t Tracker, experimentID string) (string, error) {
	runs, err := t.SearchRuns(ctx, &tracking.SearchRunsRequest{
		ExperimentIDs: []string{experimentID},
		Filter:        fmt.Sprintf("tags.%s = '%s'", TypeTag, typeParent),
		RunViewType:   tracking.ViewActiveOnly,
		MaxResults:    1,
	})
	if err != nil {
		return "", fmt.Errorf("search parent run: %w", err)
	}
	if len(runs) > 0 {
		return runs[0].Info.RunID, nil
	}

	run, err := t.CreateRun(ctx, &tracking.CreateRunRequest{
		ExperimentID: experimentID,
		RunName:      parentRunName,
		Tags: []tracking.RunTag{
			{Key: TypeTag, Value: typeParent},
			{Key: ParentTag, Value: "true"},
			{Key: NoteTag, Value: "Parent run for all insights analyses and issues in this experiment"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create parent run: %w", err)
	}
	// The parent run only holds artifacts; close it right away.
	if err := t.UpdateRun(ctx, run.Info.RunID, tracking.RunStatusFinished); err != nil {
		return "", fmt.Errorf("finish parent run: %w", err)
	}
	return run.Info.RunID, nil
}

// parentRunID resolves the parent run of an analysis run via its
// mlflow.parentRunId tag. Returns "" when the run has no parent.
func parentRunID(ctx context.Context, t Tracker, analysisRunID string) (string, error) {
	run, err := t.GetRun(ctx, analysisRunID)
	if err != nil {
		return "", err
	}
	return run.Tag(ParentRunTag), nil
}

// createAnalysisRun creates a new run nested under the experiment's
// parent insights run and returns its ID.
func createAnalysisRun(ctx context.Context, t Tracker, experimentID, runName string) (string, error) {
	parentID, err := getOrCreateParentRun(ctx, t, experimentID)
	if err != nil {
		return "", err
	}
	run, err := t.CreateRun(ctx, &tracking.CreateRunRequest{
		ExperimentID: experimentID,
		RunName:      runName,
		Tags: []tracking.RunTag{
			{Key: TypeTag, Value: typeAnalysis},
			{Key: ParentRunTag, Value: parentID},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create analysis run: %w", err)
	}
	return run.Info.RunID, nil
}

// listAnalysisRuns returns all analysis runs nested under the
// experiment's parent insights run.
func listAnalysisRuns(ctx context.Context, t Tracker, experimentID string) ([]*tracking.Run, error) {
	parentID, err := getOrCreateParentRun(ctx, t, experimentID)
	if err != nil {
		return nil, err
	}
	return t.SearchRuns(ctx, &tracking.SearchRunsRequest{
		ExperimentIDs: []string{experimentID},
		Filter: fmt.Sprintf("tags.%s = '%s' AND tags.%s = '%s'",
			ParentRunTag, parentID, TypeTag, typeAnalysis),
		RunViewType: tracking.ViewActiveOnly,
	})
}

// isParentRun reports whether the run is an insights parent run.
func isParentRun(ctx context.Context, t Tracker, runID string) (bool, error) {
	run, err := t.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Tag(TypeTag) == typeParent, nil
}
