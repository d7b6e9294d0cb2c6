package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubEncoder struct {
	scores    []float32
	available bool
}

func (s stubEncoder) Score(context.Context, string, []string) ([]float32, error) { return s.scores, nil }
func (s stubEncoder) Available(context.Context) bool                             { return s.available }
func (s stubEncoder) Close() error                                               { return nil }

func TestRerankFinalScoreIsAdditive(t *testing.T) {
	enc := stubEncoder{scores: []float32{0.6}, available: true}
	r := New(enc, DefaultConfig())

	out := r.Rerank(context.Background(), "q", []Candidate{{ChunkID: "c1", Text: "working memory is defined as a system"}}, []string{"working memory"}, "DEFINITION")
	require.Len(t, out, 1)
	require.InDelta(t, out[0].RerankScore+out[0].EntityBoost+out[0].IntentBoost, out[0].FinalScore, 1e-9)
	require.InDelta(t, 0.1, out[0].EntityBoost, 1e-9)
	require.InDelta(t, 0.05, out[0].IntentBoost, 1e-9)
}

func TestRerankFallsBackToRRFWhenUnavailable(t *testing.T) {
	enc := stubEncoder{available: false}
	r := New(enc, DefaultConfig())

	candidates := []Candidate{{ChunkID: "a", Text: "plain", RRFScore: 0.4}, {ChunkID: "b", Text: "plain", RRFScore: 0.9}}
	out := r.Rerank(context.Background(), "q", candidates, nil, "UNKNOWN")
	require.Equal(t, "b", out[0].ChunkID)
	require.Equal(t, 0.9, out[0].RerankScore)
}

func TestRerankSortTieBreak(t *testing.T) {
	enc := stubEncoder{scores: []float32{0.5, 0.5}, available: true}
	r := New(enc, DefaultConfig())
	candidates := []Candidate{{ChunkID: "z"}, {ChunkID: "a"}}
	out := r.Rerank(context.Background(), "q", candidates, nil, "")
	require.Equal(t, "a", out[0].ChunkID)
}

func TestEntityBoostWholeWordCaseInsensitive(t *testing.T) {
	r := New(NoOpCrossEncoder{}, DefaultConfig())
	require.Greater(t, r.entityBoost([]string{"memory"}, "Working Memory is key"), 0.0)
	require.Equal(t, 0.0, r.entityBoost([]string{"memory"}, "memorytest has nothing"))
}

func TestComparisonIntentBoostRequiresCoOccurrence(t *testing.T) {
	r := New(NoOpCrossEncoder{}, DefaultConfig())
	c := Candidate{Text: "A short passage mentioning dopamine near serotonin here."}
	require.Equal(t, r.cfg.IntentBoost, r.intentBoost("COMPARISON", c, []string{"dopamine", "serotonin"}))

	far := Candidate{Text: "dopamine " + string(make([]byte, 400)) + " serotonin"}
	require.Equal(t, 0.0, r.intentBoost("COMPARISON", far, []string{"dopamine", "serotonin"}))
}
