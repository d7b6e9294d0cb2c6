package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/querystate"
)

type stubTemplateStore struct {
	templates map[string]*querystate.PromptTemplate
}

func (s *stubTemplateStore) ActiveTemplate(_ context.Context, functionTag string) (*querystate.PromptTemplate, error) {
	if t, ok := s.templates[functionTag]; ok {
		return t, nil
	}
	return nil, apperr.New(apperr.NotFound, "test", "ActiveTemplate", "none active", nil)
}

type stubWorkTitler struct{ titles map[string]string }

func (s *stubWorkTitler) WorkTitle(_ context.Context, workID string) (string, error) {
	return s.titles[workID], nil
}

func TestRenderUsesActiveTemplateOverFallback(t *testing.T) {
	store := &stubTemplateStore{templates: map[string]*querystate.PromptTemplate{
		"query_expansion": {FunctionTag: "query_expansion", TemplateContent: "Custom: {original_query}"},
	}}
	b, err := New(store, 0)
	require.NoError(t, err)

	out, err := b.Render(context.Background(), "query_expansion", map[string]string{"original_query": "what is X"})
	require.NoError(t, err)
	require.Equal(t, "Custom: what is X", out)
}

func TestRenderFallsBackWhenNoActiveTemplate(t *testing.T) {
	b, err := New(&stubTemplateStore{templates: map[string]*querystate.PromptTemplate{}}, 0)
	require.NoError(t, err)

	out, err := b.Render(context.Background(), "query_expansion", map[string]string{"original_query": "what is X"})
	require.NoError(t, err)
	require.Contains(t, out, "what is X")
}

func TestRenderRejectsMissingVariable(t *testing.T) {
	store := &stubTemplateStore{templates: map[string]*querystate.PromptTemplate{
		"rag_augmentation": {FunctionTag: "rag_augmentation", TemplateContent: "Q: {query} ctx: {contexts}"},
	}}
	b, err := New(store, 0)
	require.NoError(t, err)

	_, err = b.Render(context.Background(), "rag_augmentation", map[string]string{"query": "x"})
	require.Error(t, err)
}

func TestBuildAugmentationPromptPrefersCleanContext(t *testing.T) {
	b, err := New(&stubTemplateStore{templates: map[string]*querystate.PromptTemplate{}}, 0)
	require.NoError(t, err)

	q := &querystate.Query{
		OriginalQuery: "what is entropy",
		Intent:        querystate.IntentDefinition,
		Entities:      []string{"entropy"},
		CleanRetrievalContext: []querystate.ConsolidatedGroup{
			{WorkID: "w1", WorkTitle: "Thermodynamics", Content: "Entropy\n\nEntropy is a measure of disorder.", StartLine: 1, EndLine: 10, Score: 0.9},
		},
		RetrievedContext: []querystate.RetrievedChunk{
			{WorkID: "w2", Content: "should not appear", StartLine: 1, EndLine: 2},
		},
	}

	out, count, err := b.BuildAugmentationPrompt(context.Background(), &stubWorkTitler{}, q, 5)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Contains(t, out, "[S1] Source: Thermodynamics -- Entropy")
	require.Contains(t, out, "Entropy is a measure of disorder.")
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "what is entropy")
	require.Contains(t, out, "entropy")
}

func TestBuildAugmentationPromptFallsBackToRetrievedContext(t *testing.T) {
	b, err := New(&stubTemplateStore{templates: map[string]*querystate.PromptTemplate{}}, 0)
	require.NoError(t, err)

	q := &querystate.Query{
		OriginalQuery: "what is entropy",
		RetrievedContext: []querystate.RetrievedChunk{
			{WorkID: "w1", Content: "Heading\n\nSome body text.", StartLine: 1, EndLine: 5},
		},
	}

	out, count, err := b.BuildAugmentationPrompt(context.Background(), &stubWorkTitler{titles: map[string]string{"w1": "Some Work"}}, q, 5)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Contains(t, out, "Source: Some Work -- Heading")
}

func TestBuildAugmentationPromptTopNTruncates(t *testing.T) {
	b, err := New(&stubTemplateStore{templates: map[string]*querystate.PromptTemplate{}}, 0)
	require.NoError(t, err)

	groups := make([]querystate.ConsolidatedGroup, 0, 10)
	for i := 0; i < 10; i++ {
		groups = append(groups, querystate.ConsolidatedGroup{WorkID: "w", Content: "Line\n\ntext", StartLine: i, EndLine: i + 1})
	}
	q := &querystate.Query{OriginalQuery: "q", CleanRetrievalContext: groups}

	_, count, err := b.BuildAugmentationPrompt(context.Background(), nil, q, 3)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestSplitFirstLineStripsHeadingAndBlankLines(t *testing.T) {
	first, rest := splitFirstLine("\n\nTitle\n\nBody line one.\nBody line two.\n\n\n")
	require.Equal(t, "Title", first)
	require.Equal(t, "Body line one.\nBody line two.", rest)
}

func TestRenderFailsWithoutStoreOrFallback(t *testing.T) {
	b, err := New(nil, 0)
	require.NoError(t, err)
	_, err = b.Render(context.Background(), "no_such_tag", nil)
	require.Error(t, err)
}

func TestFallbackTemplatesReferenceExpectedPlaceholders(t *testing.T) {
	require.True(t, strings.Contains(ragAugmentationFallback, "{query}"))
	require.True(t, strings.Contains(queryExpansionFallback, "{original_query}"))
}
