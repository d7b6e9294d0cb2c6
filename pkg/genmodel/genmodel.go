// Package genmodel provides the generative-model abstraction used by
// the query expander and the answerer; callers pick the tier per
// request. Both tiers share one interface and the same decoding
// parameters; only the model name differs.
package genmodel

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/ragcore/ragcore/pkg/apperr"
)

const component = "genmodel"

// Model generates text completions from a system/user prompt pair.
type Model interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
	Close() error
}

// Tier selects which configured model a caller wants.
type Tier string

const (
	TierFull Tier = "full" // larger, higher-quality model
	TierFast Tier = "fast" // smaller, lower-latency model
)

// Config configures the Gemini-backed provider for both tiers.
type Config struct {
	APIKey      string
	FullModel   string
	FastModel   string
	Temperature float64
	MaxTokens   int
}

func (c *Config) setDefaults() {
	if c.FullModel == "" {
		c.FullModel = "gemini-2.0-flash"
	}
	if c.FastModel == "" {
		c.FastModel = "gemini-2.0-flash-lite"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
}

// Registry resolves a Tier to a configured genai-backed Model.
type Registry struct {
	client *genai.Client
	models map[Tier]*geminiModel
}

// NewRegistry dials one genai client shared by both tiers (the SDK
// multiplexes requests per model name over the same client).
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.Permanent, component, "NewRegistry", "api_key is required", nil)
	}
	cfg.setDefaults()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "NewRegistry", "create genai client", err)
	}

	reg := &Registry{client: client, models: map[Tier]*geminiModel{}}
	reg.models[TierFull] = &geminiModel{client: client, name: cfg.FullModel, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
	reg.models[TierFast] = &geminiModel{client: client, name: cfg.FastModel, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
	return reg, nil
}

// Get returns the Model for tier.
func (r *Registry) Get(tier Tier) (Model, error) {
	m, ok := r.models[tier]
	if !ok {
		return nil, apperr.New(apperr.Permanent, component, "Get", fmt.Sprintf("unknown tier %q", tier), nil)
	}
	return m, nil
}

// Close does nothing and returns nil; the shared genai client is not
// closed.
func (r *Registry) Close() error { return nil }

// geminiModel implements Model via google.golang.org/genai.
type geminiModel struct {
	client      *genai.Client
	name        string
	temperature float64
	maxTokens   int
}

func (m *geminiModel) Name() string { return m.name }
func (m *geminiModel) Close() error { return nil }

func (m *geminiModel) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(m.maxTokens),
	}
	if m.temperature > 0 {
		t := float32(m.temperature)
		cfg.Temperature = &t
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.name, contents, cfg)
	if err != nil {
		return "", apperr.New(apperr.Transient, component, "Generate", fmt.Sprintf("model %s", m.name), err)
	}
	text := resp.Text()
	if text == "" {
		return "", apperr.New(apperr.Transient, component, "Generate", "empty completion", nil)
	}
	return text, nil
}

var _ Model = (*geminiModel)(nil)
