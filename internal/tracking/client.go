package tracking

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment variables honored by DefaultConfig.
const (
	EnvTrackingURI   = "MLFLOW_TRACKING_URI"
	EnvTrackingToken = "MLFLOW_TRACKING_TOKEN"
	EnvExperimentID  = "MLFLOW_EXPERIMENT_ID"
)

// DefaultTrackingURI is used when MLFLOW_TRACKING_URI is not set.
const DefaultTrackingURI = "http://localhost:5000"

// Config holds connection settings for an MLflow tracking server.
type Config struct {
	// TrackingURI is the base URL of the tracking server, e.g. http://localhost:5000.
	TrackingURI string

	// Token, when set, is sent as a Bearer token on every request.
	Token string

	// HTTPClient allows callers to supply their own transport. A client
	// with a 30s timeout is used when nil.
	HTTPClient *http.Client

	// MaxRetries bounds retries of retryable failures (429, 5xx, network).
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff between retries.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config populated from the environment.
func DefaultConfig() *Config {
	cfg := &Config{
		TrackingURI: DefaultTrackingURI,
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
	}
	if uri := os.Getenv(EnvTrackingURI); uri != "" {
		cfg.TrackingURI = uri
	}
	if tok := os.Getenv(EnvTrackingToken); tok != "" {
		cfg.Token = tok
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.TrackingURI == "" {
		c.TrackingURI = DefaultTrackingURI
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.TrackingURI, "http://") && !strings.HasPrefix(c.TrackingURI, "https://") {
		return fmt.Errorf("tracking URI must be an http(s) URL, got %q", c.TrackingURI)
	}
	return nil
}

// Client is a REST client for the MLflow tracking API. It covers the
// subset of the API the insights layer needs: runs, experiments,
// artifacts, and traces.
type Client struct {
	http *httpClient
}

// NewClient creates a tracking client. A nil config reads settings from
// the environment.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfgCopy := *cfg
	cfgCopy.applyDefaults()
	if err := cfgCopy.validate(); err != nil {
		return nil, err
	}
	return &Client{http: newHTTPClient(&cfgCopy)}, nil
}

// BaseURL returns the tracking server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.http.baseURL
}
