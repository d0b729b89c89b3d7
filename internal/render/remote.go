package render

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/answerscope/answerscope/internal/apperr"
)

// RemoteConfig configures the remote headless-render service strategy.
type RemoteConfig struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// RemoteStrategy delegates rendering to an external headless-browser HTTP
// service. Used when the managed browser is unavailable.
type RemoteStrategy struct {
	config RemoteConfig
	client *http.Client
}

// NewRemoteStrategy creates the remote render strategy.
func NewRemoteStrategy(config RemoteConfig) *RemoteStrategy {
	if config.Timeout <= 0 {
		config.Timeout = 25 * time.Second
	}
	return &RemoteStrategy{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Name implements Strategy.
func (r *RemoteStrategy) Name() string { return "remote" }

// Available implements Strategy.
func (r *RemoteStrategy) Available() bool { return r.config.Endpoint != "" }

type remoteRequest struct {
	URL       string `json:"url"`
	UserAgent string `json:"user_agent,omitempty"`
	WaitIdle  bool   `json:"wait_idle"`
}

type remoteResponse struct {
	StatusCode int    `json:"status_code"`
	HTML       string `json:"html"`
	FinalURL   string `json:"final_url,omitempty"`
}

// Render implements Strategy.
func (r *RemoteStrategy) Render(ctx context.Context, url, userAgent string) (*Snapshot, error) {
	start := time.Now()

	payload, err := json.Marshal(remoteRequest{URL: url, UserAgent: userAgent, WaitIdle: true})
	if err != nil {
		return nil, apperr.New(apperr.PhaseError, url, "remote_render", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.New(apperr.FetchConnection, url, "remote_render", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.Classify(err, url, "remote_render")
	}
	defer resp.Body.Close()

	if httpErr := apperr.FromStatus(resp.StatusCode, url); httpErr != nil {
		httpErr.Operation = "remote_render"
		return nil, httpErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return nil, apperr.Classify(err, url, "remote_render")
	}

	var decoded remoteResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apperr.New(apperr.PhaseError, url, "remote_render", "decode response", err)
	}

	finalURL := decoded.FinalURL
	if finalURL == "" {
		finalURL = url
	}
	return &Snapshot{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: decoded.StatusCode,
		HTML:       decoded.HTML,
		LoadTime:   time.Since(start),
	}, nil
}

const maxRemoteBody = 8 * 1024 * 1024
