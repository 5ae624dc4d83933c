package tracking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TraceState is the terminal state of a trace.
type TraceState string

const (
	TraceStateOK         TraceState = "OK"
	TraceStateError      TraceState = "ERROR"
	TraceStateInProgress TraceState = "IN_PROGRESS"
)

// Assessment is feedback or an expectation attached to a trace.
type Assessment struct {
	AssessmentID   string         `json:"assessment_id,omitempty"`
	AssessmentName string         `json:"assessment_name"`
	TraceID        string         `json:"trace_id,omitempty"`
	SpanID         string         `json:"span_id,omitempty"`
	Value          any            `json:"value,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// TraceInfo is the metadata of one trace.
type TraceInfo struct {
	TraceID             string            `json:"trace_id"`
	ExperimentID        string            `json:"experiment_id,omitempty"`
	RequestTime         time.Time         `json:"request_time,omitzero"`
	ExecutionDurationMS int64             `json:"execution_duration_ms,omitempty"`
	State               TraceState        `json:"state,omitempty"`
	RequestPreview      string            `json:"request_preview,omitempty"`
	ResponsePreview     string            `json:"response_preview,omitempty"`
	TraceMetadata       map[string]string `json:"trace_metadata,omitempty"`
	Tags                map[string]string `json:"tags,omitempty"`
	Assessments         []Assessment      `json:"assessments,omitempty"`
}

// Trace is a trace as returned by the 3.0 API. Span data stays on the
// server; the insights layer only consumes trace metadata.
type Trace struct {
	Info TraceInfo `json:"trace_info"`
}

// SearchTracesRequest holds parameters for SearchTraces.
type SearchTracesRequest struct {
	ExperimentIDs []string `json:"experiment_ids,omitempty"`
	Filter        string   `json:"filter,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
	OrderBy       []string `json:"order_by,omitempty"`
	PageToken     string   `json:"page_token,omitempty"`
	RunID         string   `json:"run_id,omitempty"`
}

// SearchTracesResponse is one page of search results.
type SearchTracesResponse struct {
	Traces        []*Trace `json:"traces"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// SearchTraces returns one page of traces matching the request.
func (c *Client) SearchTraces(ctx context.Context, req *SearchTracesRequest) (*SearchTracesResponse, error) {
	var resp SearchTracesResponse
	err := c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/3.0/mlflow/traces/search",
		body:   req,
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTrace fetches a single trace by ID.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*Trace, error) {
	var resp struct {
		Trace Trace `json:"trace"`
	}
	err := c.http.do(ctx, &request{
		method: http.MethodGet,
		path:   "/api/3.0/mlflow/traces/" + url.PathEscape(traceID),
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Trace, nil
}

// DeleteTracesRequest holds parameters for DeleteTraces. Either TraceIDs
// or MaxTimestampMillis (optionally with MaxTraces) must be set.
type DeleteTracesRequest struct {
	ExperimentID       string   `json:"experiment_id"`
	TraceIDs           []string `json:"trace_ids,omitempty"`
	MaxTimestampMillis int64    `json:"max_timestamp_millis,omitempty"`
	MaxTraces          int      `json:"max_traces,omitempty"`
}

// DeleteTraces deletes traces and returns the number deleted.
func (c *Client) DeleteTraces(ctx context.Context, req *DeleteTracesRequest) (int, error) {
	if len(req.TraceIDs) == 0 && req.MaxTimestampMillis == 0 {
		return 0, fmt.Errorf("delete traces: either trace IDs or a max timestamp is required")
	}
	var resp struct {
		TracesDeleted int `json:"traces_deleted"`
	}
	err := c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/3.0/mlflow/traces/delete-traces",
		body:   req,
		result: &resp,
	})
	if err != nil {
		return 0, err
	}
	return resp.TracesDeleted, nil
}

// SetTraceTag sets a tag on a trace.
func (c *Client) SetTraceTag(ctx context.Context, traceID, key, value string) error {
	return c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/3.0/mlflow/traces/" + url.PathEscape(traceID) + "/tags",
		body:   map[string]string{"key": key, "value": value},
	})
}

// DeleteTraceTag removes a tag from a trace.
func (c *Client) DeleteTraceTag(ctx context.Context, traceID, key string) error {
	return c.http.do(ctx, &request{
		method: http.MethodDelete,
		path:   "/api/3.0/mlflow/traces/" + url.PathEscape(traceID) + "/tags",
		query:  urlValues("key", key),
	})
}

// LinkTracesToRun associates traces with a run.
func (c *Client) LinkTracesToRun(ctx context.Context, traceIDs []string, runID string) error {
	return c.http.do(ctx, &request{
		method: http.MethodPost,
		path:   "/api/3.0/mlflow/traces/link-to-run",
		body: map[string]any{
			"run_id":    runID,
			"trace_ids": traceIDs,
		},
	})
}
