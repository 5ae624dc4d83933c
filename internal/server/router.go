package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const agenticPrefix = "/api/3.0/mlflow/traces/insights/agentic"

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// System endpoints (no rate limiting)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// Agentic API endpoints, POST only
	mux.HandleFunc(agenticPrefix+"/analyses/list", s.post(s.handleListAnalyses))
	mux.HandleFunc(agenticPrefix+"/analyses/get", s.post(s.handleGetAnalysis))
	mux.HandleFunc(agenticPrefix+"/hypotheses/list", s.post(s.handleListHypotheses))
	mux.HandleFunc(agenticPrefix+"/hypotheses/get", s.post(s.handleGetHypothesis))
	mux.HandleFunc(agenticPrefix+"/hypotheses/preview", s.post(s.handlePreviewHypotheses))
	mux.HandleFunc(agenticPrefix+"/issues/list", s.post(s.handleListIssues))
	mux.HandleFunc(agenticPrefix+"/issues/get", s.post(s.handleGetIssue))
	mux.HandleFunc(agenticPrefix+"/issues/preview", s.post(s.handlePreviewIssues))

	return mux
}

// post enforces the POST method and applies the standard middleware.
func (s *Server) post(next http.HandlerFunc) http.HandlerFunc {
	return s.withMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", false)
			return
		}
		next(w, r)
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
