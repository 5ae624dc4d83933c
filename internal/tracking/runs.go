package tracking

import (
	"context"
	"net/http"
	"time"
)

// Run statuses as reported by the tracking server.
const (
	RunStatusRunning  = "RUNNING"
	RunStatusFinished = "FINISHED"
	RunStatusFailed   = "FAILED"
)

// ViewType filters runs by lifecycle stage in search calls.
type ViewType string

const (
	ViewActiveOnly  ViewType = "ACTIVE_ONLY"
	ViewDeletedOnly ViewType = "DELETED_ONLY"
	ViewAll         ViewType = "ALL"
)

// RunTag is a key/value tag on a run.
type RunTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RunInfo holds the metadata of a run.
type RunInfo struct {
	RunID          string `json:"run_id"`
	RunName        string `json:"run_name,omitempty"`
	ExperimentID   string `json:"experiment_id"`
	Status         string `json:"status,omitempty"`
	StartTime      int64  `json:"start_time,omitempty"` // unix millis
	EndTime        int64  `json:"end_time,omitempty"`   // unix millis
	ArtifactURI    string `json:"artifact_uri,omitempty"`
	LifecycleStage string `json:"lifecycle_stage,omitempty"`
}

// RunData holds the logged content of a run. Only tags are used here.
type RunData struct {
	Tags []RunTag `json:"tags,omitempty"`
}

// Run is a tracking run.
type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

// Tag returns the value of a tag, or "" when absent.
func (r *Run) Tag(key string) string {
	for _, t := range r.Data.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// Experiment is a tracking experiment.
type Experiment struct {
	ExperimentID     string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	LifecycleStage   string `json:"lifecycle_stage,omitempty"`
}

// CreateRunRequest holds parameters for CreateRun.
type CreateRunRequest struct {
	ExperimentID string   `json:"experiment_id"`
	RunName      string   `json:"run_name,omitempty"`
	StartTime    int64    `json:"start_time,omitempty"`
	Tags         []RunTag `json:"tags,omitempty"`
}

// CreateRun creates a new run in an experiment.
func (c *Client) CreateRun(ctx context.Context, req *CreateRunRequest) (*Run, error) {
	if req.StartTime == 0 {
		req.StartTime = time.Now().UnixMilli()
	}
	var resp struct {
		Run Run `json:"run"`
	}
	err := c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/2.0/mlflow/runs/create",
		body:   req,
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// GetRun fetches a run by ID.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	err := c.http.do(ctx, &request{
		method: http.MethodGet,
		path:   "/api/2.0/mlflow/runs/get",
		query:  urlValues("run_id", runID),
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// SearchRunsRequest holds parameters for SearchRuns.
type SearchRunsRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
	Filter        string   `json:"filter,omitempty"`
	RunViewType   ViewType `json:"run_view_type,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
	OrderBy       []string `json:"order_by,omitempty"`
	PageToken     string   `json:"page_token,omitempty"`
}

// SearchRuns searches runs with a tracking filter string, following
// pagination until the server is exhausted or MaxResults is reached.
func (c *Client) SearchRuns(ctx context.Context, req *SearchRunsRequest) ([]*Run, error) {
	var all []*Run
	pageReq := *req
	for {
		var resp struct {
			Runs          []*Run `json:"runs"`
			NextPageToken string `json:"next_page_token"`
		}
		err := c.http.do(ctx, &request{
			method: http.MethodPost,
			path:   "/api/2.0/mlflow/runs/search",
			body:   &pageReq,
			result: &resp,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Runs...)
		if resp.NextPageToken == "" || (req.MaxResults > 0 && len(all) >= req.MaxResults) {
			break
		}
		pageReq.PageToken = resp.NextPageToken
	}
	if req.MaxResults > 0 && len(all) > req.MaxResults {
		all = all[:req.MaxResults]
	}
	return all, nil
}

// SetRunTag sets a tag on a run.
func (c *Client) SetRunTag(ctx context.Context, runID, key, value string) error {
	return c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/2.0/mlflow/runs/set-tag",
		body: map[string]string{
			"run_id": runID,
			"key":    key,
			"value":  value,
		},
	})
}

// UpdateRun updates the status of a run, terminating it when status is
// a terminal state.
func (c *Client) UpdateRun(ctx context.Context, runID, status string) error {
	return c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/2.0/mlflow/runs/update",
		body: map[string]any{
			"run_id":   runID,
			"status":   status,
			"end_time": time.Now().UnixMilli(),
		},
	})
}

// GetExperiment fetches an experiment by ID.
func (c *Client) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	var resp struct {
		Experiment Experiment `json:"experiment"`
	}
	err := c.http.do(ctx, &request{
		method: http.MethodGet,
		path:   "/api/2.0/mlflow/experiments/get",
		query:  urlValues("experiment_id", experimentID),
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Experiment, nil
}

// SearchExperiments lists experiments visible to the caller.
func (c *Client) SearchExperiments(ctx context.Context) ([]*Experiment, error) {
	var all []*Experiment
	pageToken := ""
	for {
		var resp struct {
			Experiments   []*Experiment `json:"experiments"`
			NextPageToken string        `json:"next_page_token"`
		}
		body := map[string]any{"max_results": 1000}
		if pageToken != "" {
			body["page_token"] = pageToken
		}
		err := c.http.do(ctx, &request{
			method: http.MethodPost,
			path:   "/api/2.0/mlflow/experiments/search",
			body:   body,
			result: &resp,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Experiments...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return all, nil
}
