package insights

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tracewise/insights/internal/tracking"
)

// ArtifactDir is the artifact directory every insights file lives under.
const ArtifactDir = "insights"

// AnalysisFilename is the artifact name of the analysis record.
const AnalysisFilename = "analysis.yaml"

// SQLQueriesFilename is the append-only log of census SQL.
const SQLQueriesFilename = "sql_queries.yaml"

// HypothesisFilename returns the artifact name for a hypothesis ID.
func HypothesisFilename(hypothesisID string) string {
	return fmt.Sprintf("hypothesis_%s.yaml", hypothesisID)
}

// IssueFilename returns the artifact name for an issue ID.
func IssueFilename(issueID string) string {
	return fmt.Sprintf("issue_%s.yaml", issueID)
}

// saveYAML marshals v and uploads it to insights/<filename> on the run.
func saveYAML(ctx context.Context, t Tracker, runID, filename string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filename, err)
	}
	if err := t.LogArtifact(ctx, runID, path.Join(ArtifactDir, filename), data); err != nil {
		return fmt.Errorf("upload %s to run %s: %w", filename, runID, err)
	}
	return nil
}

// loadYAML downloads insights/<filename> from the run and unmarshals it
// into out. Returns an error wrapping tracking.ErrNotFound when the
// artifact does not exist.
func loadYAML(ctx context.Context, t Tracker, runID, filename string, out any) error {
	data, err := t.DownloadArtifact(ctx, runID, path.Join(ArtifactDir, filename))
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s from run %s: %w", filename, runID, err)
	}
	return nil
}

// listYAMLFiles returns insights/ artifact filenames with the given
// prefix. A missing insights/ directory yields an empty list.
func listYAMLFiles(ctx context.Context, t Tracker, runID, prefix string) ([]string, error) {
	files, err := t.ListArtifacts(ctx, runID, ArtifactDir)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, f := range files {
		if f.IsDir {
			continue
		}
		name := path.Base(f.Path)
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".yaml") {
			names = append(names, name)
		}
	}
	return names, nil
}

// runHasAnalysis reports whether the run carries an analysis record.
func runHasAnalysis(ctx context.Context, t Tracker, runID string) (bool, error) {
	_, err := t.DownloadArtifact(ctx, runID, path.Join(ArtifactDir, AnalysisFilename))
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// sqlQueryRecord is one appended entry of sql_queries.yaml.
type sqlQueryRecord struct {
	Timestamp string `yaml:"timestamp"`
	Query     string `yaml:"query"`
}

// appendSQLQuery logs a SQL query to the run's sql_queries.yaml
// artifact, creating it on first use.
func appendSQLQuery(ctx context.Context, t Tracker, runID, query string) error {
	var records []sqlQueryRecord
	data, err := t.DownloadArtifact(ctx, runID, path.Join(ArtifactDir, SQLQueriesFilename))
	if err == nil {
		// Ignore parse errors on the existing log rather than losing the new entry.
		_ = yaml.Unmarshal(data, &records)
	} else if !errors.Is(err, tracking.ErrNotFound) {
		return err
	}

	records = append(records, sqlQueryRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Query:     query,
	})
	return saveYAML(ctx, t, runID, SQLQueriesFilename, records)
}
