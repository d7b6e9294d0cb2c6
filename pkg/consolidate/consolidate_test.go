package consolidate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/corpus"
	"github.com/ragcore/ragcore/pkg/querystate"
)

type fakeGateway struct {
	chunks     map[string]*corpus.Chunk
	works      map[string]*corpus.Work
	slices     map[string]string
	staleWorks map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		chunks:     map[string]*corpus.Chunk{},
		works:      map[string]*corpus.Work{},
		slices:     map[string]string{},
		staleWorks: map[string]bool{},
	}
}

func (f *fakeGateway) GetChunks(_ context.Context, ids []string) (map[string]*corpus.Chunk, error) {
	out := map[string]*corpus.Chunk{}
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeGateway) GetParentChunks(_ context.Context, childIDs []string) (map[string]*corpus.Chunk, error) {
	out := map[string]*corpus.Chunk{}
	for _, id := range childIDs {
		c, ok := f.chunks[id]
		if !ok || c.ParentID == "" {
			continue
		}
		if p, ok := f.chunks[c.ParentID]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeGateway) GetWork(_ context.Context, workID string) (*corpus.Work, error) {
	if w, ok := f.works[workID]; ok {
		return w, nil
	}
	return &corpus.Work{ID: workID, Title: "Untitled"}, nil
}

func (f *fakeGateway) ReadSanitizedSlice(_ context.Context, workID string, start, end int) (string, error) {
	if f.staleWorks[workID] {
		return "", apperr.New(apperr.StaleSource, "corpus", "ReadSanitizedSlice", "stale", nil)
	}
	if text, ok := f.slices[sliceKey(workID, start, end)]; ok {
		return text, nil
	}
	return "", nil
}

func sliceKey(workID string, start, end int) string {
	return fmt.Sprintf("%s:%d:%d", workID, start, end)
}

func TestComputeCoverageBoundaryExactlyHalf(t *testing.T) {
	parent := &corpus.Chunk{ID: "p", StartLine: 1, EndLine: 100}
	members := []querystate.RetrievedChunk{{StartLine: 1, EndLine: 50}}
	require.Equal(t, 0.5, computeCoverage(members, parent))
}

func TestAdjacencyGapBoundary(t *testing.T) {
	members := []querystate.RetrievedChunk{
		{ChunkID: "a", StartLine: 10, EndLine: 20},
		{ChunkID: "b", StartLine: 27, EndLine: 35}, // gap = 27-20 = 7 -> merges
	}
	groups := mergeAdjacent(bucketKey{workID: "w", parentID: "p"}, members)
	require.Len(t, groups, 1)
	require.Equal(t, []string{"a", "b"}, groups[0].ChunkIDs)

	members2 := []querystate.RetrievedChunk{
		{ChunkID: "a", StartLine: 10, EndLine: 20},
		{ChunkID: "b", StartLine: 28, EndLine: 35}, // gap = 8 -> does not merge
	}
	groups2 := mergeAdjacent(bucketKey{workID: "w", parentID: "p"}, members2)
	require.Len(t, groups2, 2)
}

func TestUniqueLineCountSumsDisjointRanges(t *testing.T) {
	members := []querystate.RetrievedChunk{
		{StartLine: 100, EndLine: 160},
		{StartLine: 165, EndLine: 180},
		{StartLine: 185, EndLine: 200},
	}
	require.Equal(t, 93, uniqueLineCount(members))
}

func TestConsolidateParentReplacementOnHighCoverage(t *testing.T) {
	gw := newFakeGateway()
	gw.chunks["p"] = &corpus.Chunk{ID: "p", WorkID: "w1", Level: corpus.LevelH1, Content: "Background\nmore", StartLine: 100, EndLine: 200}
	gw.chunks["c1"] = &corpus.Chunk{ID: "c1", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, StartLine: 100, EndLine: 160}
	gw.chunks["c2"] = &corpus.Chunk{ID: "c2", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, StartLine: 165, EndLine: 180}
	gw.chunks["c3"] = &corpus.Chunk{ID: "c3", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, StartLine: 185, EndLine: 200}
	gw.slices[sliceKey("w1", 100, 200)] = makeLong("parent body", 400)

	retrieved := []querystate.RetrievedChunk{
		{ChunkID: "c1", WorkID: "w1", ParentID: "p", StartLine: 100, EndLine: 160, FinalScore: 0.9},
		{ChunkID: "c2", WorkID: "w1", ParentID: "p", StartLine: 165, EndLine: 180, FinalScore: 0.5},
		{ChunkID: "c3", WorkID: "w1", ParentID: "p", StartLine: 185, EndLine: 200, FinalScore: 0.3},
	}

	groups, warnings, err := Consolidate(context.Background(), gw, retrieved)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, groups, 1)
	require.Equal(t, []string{"p"}, groups[0].ChunkIDs)
	require.Equal(t, 0.9, groups[0].Score)
}

func TestConsolidateStaleSourceFallsBackToStoredContent(t *testing.T) {
	gw := newFakeGateway()
	gw.chunks["p"] = &corpus.Chunk{ID: "p", WorkID: "w1", Level: corpus.LevelH1, Content: "Intro", StartLine: 1, EndLine: 1000}
	gw.chunks["c1"] = &corpus.Chunk{ID: "c1", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, Content: makeLong("stored content", 400), StartLine: 10, EndLine: 20}
	gw.staleWorks["w1"] = true

	retrieved := []querystate.RetrievedChunk{
		{ChunkID: "c1", WorkID: "w1", ParentID: "p", StartLine: 10, EndLine: 20, FinalScore: 0.4},
	}

	groups, warnings, err := Consolidate(context.Background(), gw, retrieved)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Len(t, groups, 1)
	require.Contains(t, groups[0].Content, "stored content")
}

func TestConsolidateDropsBelowMinContentChars(t *testing.T) {
	gw := newFakeGateway()
	gw.chunks["p"] = &corpus.Chunk{ID: "p", WorkID: "w1", Level: corpus.LevelH1, Content: "Intro", StartLine: 1, EndLine: 1000}
	gw.chunks["c1"] = &corpus.Chunk{ID: "c1", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, StartLine: 10, EndLine: 11}
	gw.slices[sliceKey("w1", 10, 11)] = makeLong("x", minContentChars-1)

	retrieved := []querystate.RetrievedChunk{
		{ChunkID: "c1", WorkID: "w1", ParentID: "p", StartLine: 10, EndLine: 11, FinalScore: 0.4},
	}
	groups, _, err := Consolidate(context.Background(), gw, retrieved)
	require.NoError(t, err)
	require.Empty(t, groups)
}

func makeLong(seed string, n int) string {
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, seed...)
	}
	return string(out[:n])
}
