// Package expansion implements the Query Expander component: one
// generative-model call that turns a raw question into multi-query
// paraphrases, a hypothetical answer (HyDE), an intent label, and a
// deduplicated entity list.
package expansion

import (
	"context"
	"strings"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/genmodel"
)

const component = "expansion"

var validIntents = map[string]bool{
	"DEFINITION": true, "MECHANISM": true, "COMPARISON": true,
	"APPLICATION": true, "STUDY_DETAIL": true, "CRITIQUE": true, "UNKNOWN": true,
}

// ParsedExpansion is the Expander's output structure.
type ParsedExpansion struct {
	Expanded      []string
	Hyde          string
	Intent        string
	Entities      []string
	ParseWarning  bool
}

// PromptBuilder renders the query_expansion template with the
// original query substituted in. Implemented by pkg/prompt's
// registry; kept as a narrow interface here to avoid an import cycle.
type PromptBuilder interface {
	Render(ctx context.Context, functionTag string, vars map[string]string) (string, error)
}

// Expander calls the generative model it was built with (the HTTP
// handlers pick its tier per request) and parses its
// response, retrying once on parse failure before falling back to an
// UNKNOWN/empty result with ParseWarning set.
type Expander struct {
	model   genmodel.Model
	prompts PromptBuilder
}

func New(model genmodel.Model, prompts PromptBuilder) *Expander {
	return &Expander{model: model, prompts: prompts}
}

// Expand renders the query_expansion prompt, calls the model once,
// and parses the response, retrying the call once on parse failure.
func (e *Expander) Expand(ctx context.Context, originalQuery string) (*ParsedExpansion, error) {
	if strings.TrimSpace(originalQuery) == "" {
		return nil, apperr.New(apperr.PreconditionFailed, component, "Expand", "original_query is empty", nil)
	}

	prompt, err := e.prompts.Render(ctx, "query_expansion", map[string]string{"original_query": originalQuery})
	if err != nil {
		return nil, err
	}

	response, err := e.model.Generate(ctx, expansionSystemPrompt, prompt)
	if err == nil {
		if parsed, ok := parseExpansion(response); ok {
			return parsed, nil
		}
	}

	// Retry once on parse failure. The underlying model call doesn't
	// expose a temperature override, so the reattempt relies on
	// resampling from a fresh call.
	response, err = e.model.Generate(ctx, expansionSystemPrompt, prompt)
	if err == nil {
		if parsed, ok := parseExpansion(response); ok {
			return parsed, nil
		}
	}

	return &ParsedExpansion{Intent: "UNKNOWN", ParseWarning: true}, nil
}

const expansionSystemPrompt = "You expand search queries for a document retrieval system. Respond with a single JSON object with keys \"expanded\" (array of 3-5 paraphrases), \"hyde\" (a 2-4 sentence hypothetical answer), \"intent\" (one of DEFINITION, MECHANISM, COMPARISON, APPLICATION, STUDY_DETAIL, CRITIQUE, UNKNOWN), and \"entities\" (array of key terms)."

// ParseManual parses a model response pasted in by hand (the
// expansion/manual endpoint), applying the same JSON-or-labeled
// parsing and UNKNOWN/parse-warning fallback as Expand's own retry
// path, but without a second model call to retry against.
func ParseManual(response string) *ParsedExpansion {
	if parsed, ok := parseExpansion(response); ok {
		return parsed
	}
	return &ParsedExpansion{Intent: "UNKNOWN", ParseWarning: true}
}

// parseExpansion tries the JSON-framed parser first, falling back to
// a labeled-section parser for responses that don't return valid
// JSON.
func parseExpansion(response string) (*ParsedExpansion, bool) {
	if parsed, ok := parseJSONExpansion(response); ok {
		return parsed, true
	}
	if parsed, ok := parseLabeledExpansion(response); ok {
		return parsed, true
	}
	return nil, false
}

func dedupeFold(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := strings.ToLower(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func normalizeIntent(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if validIntents[s] {
		return s
	}
	return "UNKNOWN"
}
