// Package rerank applies a cross-encoder scoring model to
// (query, chunk) pairs and layers spec-defined entity/intent boosts
// on top of its raw scores.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ragcore/ragcore/pkg/apperr"
)

const component = "rerank"

// CrossEncoder jointly scores (query, document) pairs. Implementations
// are expected to return raw scores already normalized to [0,1] via
// the model's documented activation.
type CrossEncoder interface {
	Score(ctx context.Context, query string, documents []string) ([]float32, error)
	Available(ctx context.Context) bool
	Close() error
}

// HTTPCrossEncoderConfig configures an HTTPCrossEncoder.
type HTTPCrossEncoderConfig struct {
	Endpoint        string
	Model           string
	Timeout         time.Duration
	SkipHealthCheck bool
}

// DefaultHTTPCrossEncoderConfig mirrors common self-hosted
// cross-encoder serving defaults.
func DefaultHTTPCrossEncoderConfig() HTTPCrossEncoderConfig {
	return HTTPCrossEncoderConfig{
		Endpoint: "http://localhost:9659",
		Model:    "cross-encoder-small",
		Timeout:  60 * time.Second,
	}
}

// HTTPCrossEncoder calls a co-located cross-encoder scoring service
// over HTTP: POST {endpoint}/rerank with {query, documents}.
type HTTPCrossEncoder struct {
	client *http.Client
	cfg    HTTPCrossEncoderConfig

	mu     sync.RWMutex
	closed bool
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"score"`
	} `json:"results"`
}

// NewHTTPCrossEncoder constructs a client and, unless SkipHealthCheck
// is set, verifies the service is reachable via GET {endpoint}/health.
func NewHTTPCrossEncoder(ctx context.Context, cfg HTTPCrossEncoderConfig) (*HTTPCrossEncoder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultHTTPCrossEncoderConfig().Endpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPCrossEncoderConfig().Timeout
	}
	enc := &HTTPCrossEncoder{client: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}

	if !cfg.SkipHealthCheck {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint+"/health", nil)
		if err != nil {
			return nil, apperr.New(apperr.Permanent, component, "NewHTTPCrossEncoder", "build health request", err)
		}
		resp, err := enc.client.Do(req)
		if err != nil {
			return nil, apperr.New(apperr.Transient, component, "NewHTTPCrossEncoder", "health check failed", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, apperr.New(apperr.Transient, component, "NewHTTPCrossEncoder", fmt.Sprintf("health check returned %d", resp.StatusCode), nil)
		}
	}
	return enc, nil
}

// Score implements CrossEncoder.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, apperr.New(apperr.Permanent, component, "Score", "cross-encoder client is closed", nil)
	}
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: e.cfg.Model})
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "Score", "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "Score", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "Score", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.Transient, component, "Score", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.Permanent, component, "Score", "decode response", err)
	}

	scores := make([]float32, len(documents))
	for _, r := range parsed.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.Score
		}
	}
	return scores, nil
}

// Available reports whether the service currently responds to health
// checks.
func (e *HTTPCrossEncoder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close marks the client closed; subsequent Score calls fail fast.
func (e *HTTPCrossEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// NoOpCrossEncoder assigns decreasing scores by input order. cmd/ragcore
// uses it when no cross-encoder endpoint is configured.
type NoOpCrossEncoder struct{}

func (NoOpCrossEncoder) Score(_ context.Context, _ string, documents []string) ([]float32, error) {
	scores := make([]float32, len(documents))
	for i := range documents {
		s := 1.0 - float32(i)*0.01
		if s < 0 {
			s = 0
		}
		scores[i] = s
	}
	return scores, nil
}

func (NoOpCrossEncoder) Available(context.Context) bool { return true }
func (NoOpCrossEncoder) Close() error                   { return nil }
