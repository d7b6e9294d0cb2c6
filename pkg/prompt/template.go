// Package prompt implements the Prompt Builder component: a small
// template registry backed by the prompt_templates table, with a
// compiled-in fallback per function tag, plus the augmentation prompt
// assembly.
package prompt

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/querystate"
)

const component = "prompt"

// TemplateStore is the subset of querystate.Store the registry needs.
type TemplateStore interface {
	ActiveTemplate(ctx context.Context, functionTag string) (*querystate.PromptTemplate, error)
}

// fallbacks holds the compiled-in template text used when no active
// row exists for a function tag.
var fallbacks = map[string]string{
	"rag_augmentation": ragAugmentationFallback,
	"query_expansion":  queryExpansionFallback,
}

const ragAugmentationFallback = `Answer the question using only the numbered sources below. Cite every claim you draw from a source with its [S#] label. Clearly separate claims supported by the sources from any general-knowledge additions you make — label the latter explicitly. Shape the tone and depth of your answer to the question's intent ({intent}).

Question: {query}

Sources:
{contexts}

Known entities: {entities_str}`

const queryExpansionFallback = `Expand the following question into search-friendly paraphrases and a hypothetical answer.

Question: {original_query}`

var placeholderRE = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Builder resolves and fills templates. It is safe for concurrent use.
type Builder struct {
	store              TemplateStore
	contextTokenBudget int
	encoding           *tiktoken.Tiktoken
}

// defaultContextTokenBudget bounds context_blocks before substitution
// to a conservative prompt-window share.
const defaultContextTokenBudget = 6000

// New builds a Builder backed by store (nil disables the active-row
// lookup and uses only the compiled-in fallbacks). contextTokenBudget
// caps the contexts block in tokens before substitution; 0 uses
// defaultContextTokenBudget.
func New(store TemplateStore, contextTokenBudget int) (*Builder, error) {
	if contextTokenBudget <= 0 {
		contextTokenBudget = defaultContextTokenBudget
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "New", "load tiktoken encoding", err)
	}
	return &Builder{store: store, contextTokenBudget: contextTokenBudget, encoding: enc}, nil
}

// trimToBudget truncates text to at most b.contextTokenBudget tokens,
// leaving it untouched if it already fits.
func (b *Builder) trimToBudget(text string) string {
	tokens := b.encoding.Encode(text, nil, nil)
	if len(tokens) <= b.contextTokenBudget {
		return text
	}
	return b.encoding.Decode(tokens[:b.contextTokenBudget])
}

// Render resolves the active template for functionTag (falling back to
// the compiled-in text when none is active), validates that every
// {placeholder} referenced in the template has a corresponding entry
// in vars, and substitutes them.
func (b *Builder) Render(ctx context.Context, functionTag string, vars map[string]string) (string, error) {
	text, err := b.resolve(ctx, functionTag)
	if err != nil {
		return "", err
	}

	for _, m := range placeholderRE.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := vars[name]; !ok {
			return "", apperr.New(apperr.Permanent, component, "Render", "template "+functionTag+" references undefined variable {"+name+"}", nil)
		}
	}

	out := text
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out, nil
}

func (b *Builder) resolve(ctx context.Context, functionTag string) (string, error) {
	if b.store != nil {
		t, err := b.store.ActiveTemplate(ctx, functionTag)
		if err == nil {
			return t.TemplateContent, nil
		}
		if apperr.KindOf(err) != apperr.NotFound {
			return "", err
		}
	}
	fallback, ok := fallbacks[functionTag]
	if !ok {
		return "", apperr.New(apperr.Permanent, component, "resolve", "no active or fallback template for "+functionTag, nil)
	}
	return fallback, nil
}
