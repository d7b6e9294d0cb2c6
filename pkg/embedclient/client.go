// Package embedclient implements the Embedding Generator component: a
// single-model HTTP client (Ollama-style /api/embeddings protocol)
// with exponential-backoff retry, batching one request per input
// text. Embedding calls are independent per call so, unlike Ollama's
// known llama-runner crash under concurrent requests, no global
// serialization lock is required here.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ragcore/ragcore/pkg/apperr"
)

const component = "embedclient"

// RetryConfig is the default retry policy: max 3 attempts, base 500ms
// exponential backoff, +/-20% jitter.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, JitterFactor: 0.2}
}

// Config configures the embedding client.
type Config struct {
	Host      string
	Model     string
	Dimension int
	Timeout   time.Duration
	Retry     RetryConfig
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry = DefaultRetryConfig()
	}
}

// Client embeds text via an Ollama-compatible /api/embeddings
// endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) Dimension() int { return c.cfg.Dimension }
func (c *Client) Model() string  { return c.cfg.Model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed converts text to a vector embedding, retrying transient
// failures per the configured RetryConfig.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vec, err := c.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		if attempt >= c.cfg.Retry.MaxRetries {
			return nil, apperr.New(apperr.Transient, component, "Embed", fmt.Sprintf("exhausted %d retries", attempt+1), lastErr)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(c.cfg.Retry, attempt)):
		}
	}
	return nil, lastErr
}

// EmbedBatch embeds each text independently; callers needing
// concurrency fan this out themselves (pkg/queryembed does, via
// errgroup).
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "embedOnce", "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "embedOnce", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "embedOnce", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		kind := apperr.Permanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = apperr.Transient
		}
		return nil, apperr.New(kind, component, "embedOnce", fmt.Sprintf("status %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.Permanent, component, "embedOnce", "decode response", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, apperr.New(apperr.Transient, component, "embedOnce", "empty embedding in response", nil)
	}
	return parsed.Embedding, nil
}

func isRetryable(err error) bool {
	return apperr.KindOf(err) == apperr.Transient
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * cfg.BaseDelay
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * float64(delay) * cfg.JitterFactor)
	if rand.Float64() < 0.5 {
		delay -= jitter
	} else {
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
