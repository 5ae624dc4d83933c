package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tracewise/insights/internal/insights"
	"github.com/tracewise/insights/internal/tracking"
)

// InsightsService is the slice of the SDK the REST handlers need.
type InsightsService interface {
	ListAnalyses(ctx context.Context, experimentID string) ([]insights.AnalysisSummary, error)
	GetAnalysis(ctx context.Context, runID string) (*insights.Analysis, error)
	ListHypotheses(ctx context.Context, runID string) ([]insights.HypothesisSummary, error)
	GetHypothesis(ctx context.Context, runID, hypothesisID string) (*insights.Hypothesis, error)
	PreviewHypotheses(ctx context.Context, runID string, maxTraces int) ([]*tracking.Trace, error)
	ListIssues(ctx context.Context, experimentID string) ([]insights.IssueSummary, error)
	GetIssue(ctx context.Context, issueID string) (*insights.Issue, error)
	PreviewIssues(ctx context.Context, experimentID string, maxTraces int) ([]*tracking.Trace, error)
}

var _ InsightsService = (*insights.Client)(nil)

const defaultMaxTraces = 100

// Request/response payloads for the agentic endpoints.

type listAnalysesRequest struct {
	ExperimentID string `json:"experiment_id"`
}

type listAnalysesResponse struct {
	Analyses []insights.AnalysisSummary `json:"analyses"`
}

type getAnalysisRequest struct {
	InsightsRunID string `json:"insights_run_id"`
}

type getAnalysisResponse struct {
	Analysis *insights.Analysis `json:"analysis"`
}

type listHypothesesRequest struct {
	InsightsRunID string `json:"insights_run_id"`
}

type listHypothesesResponse struct {
	Hypotheses []insights.HypothesisSummary `json:"hypotheses"`
}

type getHypothesisRequest struct {
	InsightsRunID string `json:"insights_run_id"`
	HypothesisID  string `json:"hypothesis_id"`
}

type getHypothesisResponse struct {
	Hypothesis *insights.Hypothesis `json:"hypothesis"`
}

type previewHypothesesRequest struct {
	InsightsRunID string `json:"insights_run_id"`
	MaxTraces     int    `json:"max_traces"`
}

type listIssuesRequest struct {
	ExperimentID string `json:"experiment_id"`
}

type listIssuesResponse struct {
	Issues []insights.IssueSummary `json:"issues"`
}

type getIssueRequest struct {
	IssueID string `json:"issue_id"`
}

type getIssueResponse struct {
	Issue *insights.Issue `json:"issue"`
}

type previewIssuesRequest struct {
	ExperimentID string `json:"experiment_id"`
	MaxTraces    int    `json:"max_traces"`
}

// traceDigest is the condensed trace shape preview endpoints return.
type traceDigest struct {
	TraceID         string `json:"trace_id"`
	State           string `json:"state"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	TimestampMS     int64  `json:"timestamp_ms"`
}

type previewResponse struct {
	Traces        []traceDigest `json:"traces"`
	TotalCount    int           `json:"total_count"`
	ReturnedCount int           `json:"returned_count"`
}

// decodeBody decodes a JSON request body, tolerating an empty body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error(), false)
		return false
	}
	return true
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	var req listAnalysesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	analyses, err := s.insights.ListAnalyses(r.Context(), req.ExperimentID)
	if err != nil {
		s.serviceError(w, r, "list analyses", err)
		return
	}
	if analyses == nil {
		analyses = []insights.AnalysisSummary{}
	}
	respondJSON(w, http.StatusOK, listAnalysesResponse{Analyses: analyses})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	var req getAnalysisRequest
	if !decodeBody(w, r, &req) {
		return
	}
	analysis, err := s.insights.GetAnalysis(r.Context(), req.InsightsRunID)
	if err != nil {
		s.serviceError(w, r, "get analysis", err)
		return
	}
	respondJSON(w, http.StatusOK, getAnalysisResponse{Analysis: analysis})
}

func (s *Server) handleListHypotheses(w http.ResponseWriter, r *http.Request) {
	var req listHypothesesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hypotheses, err := s.insights.ListHypotheses(r.Context(), req.InsightsRunID)
	if err != nil {
		s.serviceError(w, r, "list hypotheses", err)
		return
	}
	if hypotheses == nil {
		hypotheses = []insights.HypothesisSummary{}
	}
	respondJSON(w, http.StatusOK, listHypothesesResponse{Hypotheses: hypotheses})
}

func (s *Server) handleGetHypothesis(w http.ResponseWriter, r *http.Request) {
	var req getHypothesisRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hypothesis, err := s.insights.GetHypothesis(r.Context(), req.InsightsRunID, req.HypothesisID)
	if err != nil {
		s.serviceError(w, r, "get hypothesis", err)
		return
	}
	respondJSON(w, http.StatusOK, getHypothesisResponse{Hypothesis: hypothesis})
}

func (s *Server) handlePreviewHypotheses(w http.ResponseWriter, r *http.Request) {
	req := previewHypothesesRequest{MaxTraces: defaultMaxTraces}
	if !decodeBody(w, r, &req) {
		return
	}
	traces, err := s.insights.PreviewHypotheses(r.Context(), req.InsightsRunID, req.MaxTraces)
	if err != nil {
		s.serviceError(w, r, "preview hypotheses", err)
		return
	}
	respondJSON(w, http.StatusOK, digestTraces(traces))
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	var req listIssuesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	issues, err := s.insights.ListIssues(r.Context(), req.ExperimentID)
	if err != nil {
		s.serviceError(w, r, "list issues", err)
		return
	}
	if issues == nil {
		issues = []insights.IssueSummary{}
	}
	respondJSON(w, http.StatusOK, listIssuesResponse{Issues: issues})
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	var req getIssueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	issue, err := s.insights.GetIssue(r.Context(), req.IssueID)
	if err != nil {
		s.serviceError(w, r, "get issue", err)
		return
	}
	respondJSON(w, http.StatusOK, getIssueResponse{Issue: issue})
}

func (s *Server) handlePreviewIssues(w http.ResponseWriter, r *http.Request) {
	req := previewIssuesRequest{MaxTraces: defaultMaxTraces}
	if !decodeBody(w, r, &req) {
		return
	}
	traces, err := s.insights.PreviewIssues(r.Context(), req.ExperimentID, req.MaxTraces)
	if err != nil {
		s.serviceError(w, r, "preview issues", err)
		return
	}
	respondJSON(w, http.StatusOK, digestTraces(traces))
}

func digestTraces(traces []*tracking.Trace) previewResponse {
	digests := make([]traceDigest, 0, len(traces))
	for _, tr := range traces {
		digests = append(digests, traceDigest{
			TraceID:         tr.Info.TraceID,
			State:           string(tr.Info.State),
			ExecutionTimeMS: tr.Info.ExecutionDurationMS,
			TimestampMS:     tr.Info.RequestTime.UnixMilli(),
		})
	}
	return previewResponse{
		Traces:        digests,
		TotalCount:    len(traces),
		ReturnedCount: len(digests),
	}
}

func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error("insights operation failed", "op", op, "error", err)
	WriteError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), false)
}
