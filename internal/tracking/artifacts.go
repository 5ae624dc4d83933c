package tracking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
)

// FileInfo describes one artifact of a run.
type FileInfo struct {
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	FileSize int64  `json:"file_size,omitempty"`
}

func urlValues(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}

// LogArtifact uploads data as an artifact of a run under artifactPath,
// e.g. "insights/analysis.yaml". Uploads go through the tracking
// server's proxied artifact endpoint, so the server must be running
// with artifact serving enabled.
func (c *Client) LogArtifact(ctx context.Context, runID, artifactPath string, data []byte) error {
	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("resolve run for artifact upload: %w", err)
	}
	p := fmt.Sprintf("/api/2.0/mlflow-artifacts/artifacts/%s/%s/artifacts/%s",
		url.PathEscape(run.Info.ExperimentID), url.PathEscape(runID), escapeArtifactPath(artifactPath))
	return c.http.do(ctx, &request{
		method: http.MethodPut,
		path:   p,
		raw:    data,
	})
}

// DownloadArtifact fetches the raw bytes of a run artifact.
// Returns an error wrapping ErrNotFound when the artifact is absent.
func (c *Client) DownloadArtifact(ctx context.Context, runID, artifactPath string) ([]byte, error) {
	var body []byte
	err := c.http.do(ctx, &request{
		method: http.MethodGet,
		path:   "/get-artifact",
		query:  urlValues("run_id", runID, "path", artifactPath),
		sink:   &body,
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ListArtifacts lists the artifacts of a run below dir ("" for the root).
func (c *Client) ListArtifacts(ctx context.Context, runID, dir string) ([]FileInfo, error) {
	q := urlValues("run_id", runID)
	if dir != "" {
		q.Set("path", dir)
	}
	var resp struct {
		RootURI string     `json:"root_uri"`
		Files   []FileInfo `json:"files"`
	}
	err := c.http.do(ctx, &request{
		method: http.MethodGet,
		path:   "/api/2.0/mlflow/artifacts/list",
		query:  q,
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// escapeArtifactPath escapes each segment while keeping the slashes
// that separate artifact directories.
func escapeArtifactPath(p string) string {
	clean := path.Clean(p)
	segs := ""
	for i, seg := range splitPath(clean) {
		if i > 0 {
			segs += "/"
		}
		segs += url.PathEscape(seg)
	}
	return segs
}

func splitPath(p string) []string {
	var out []string
	for p != "" {
		dir, file := path.Split(p)
		out = append([]string{file}, out...)
		p = path.Clean(dir)
		if p == "." || p == "/" {
			break
		}
	}
	return out
}
