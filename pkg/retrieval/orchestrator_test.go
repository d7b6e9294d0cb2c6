package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/corpus"
	"github.com/ragcore/ragcore/pkg/querystate"
	"github.com/ragcore/ragcore/pkg/rerank"
)

type fakeDense struct {
	byTarget map[string][]DenseResult
}

func (f *fakeDense) Search(_ context.Context, _ string, vector []float32, _ int) ([]DenseResult, error) {
	key := "default"
	if len(vector) > 0 {
		key = vectorKey(vector)
	}
	return f.byTarget[key], nil
}

func vectorKey(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	if v[0] == 1 {
		return "original"
	}
	return "other"
}

type fakeLexical struct{ hits []LexicalResult }

func (f *fakeLexical) Search(_ context.Context, _ string, _ int) ([]LexicalResult, error) {
	return f.hits, nil
}

type fakeGateway struct {
	chunks  map[string]*corpus.Chunk
	parents map[string]*corpus.Chunk // keyed by child chunk ID
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
		if p, ok := f.parents[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeStore struct{ saved *querystate.Query }

func (f *fakeStore) Save(_ context.Context, q *querystate.Query) error {
	f.saved = q
	return nil
}

func TestRunRejectsUnembeddedQuery(t *testing.T) {
	o := New(&fakeDense{}, &fakeLexical{}, &fakeGateway{}, rerank.New(rerank.NoOpCrossEncoder{}, rerank.DefaultConfig()), &fakeStore{}, Config{})
	_, err := o.Run(context.Background(), &querystate.Query{})
	require.Error(t, err)
}

func TestRunFusesAndPersistsRetrievedChunks(t *testing.T) {
	dense := &fakeDense{byTarget: map[string][]DenseResult{
		"original": {{ChunkID: "c1", Score: 0.9}, {ChunkID: "c2", Score: 0.5}},
	}}
	lex := &fakeLexical{hits: []LexicalResult{{ChunkID: "c2", Score: 3.0}}}
	gw := &fakeGateway{chunks: map[string]*corpus.Chunk{
		"c1": {ID: "c1", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, Content: "alpha content", StartLine: 1, EndLine: 5, VectorStatus: corpus.VecDone},
		"c2": {ID: "c2", WorkID: "w1", ParentID: "p", Level: corpus.LevelChunk, Content: "beta content", StartLine: 6, EndLine: 10, VectorStatus: corpus.VecDone},
	}}
	store := &fakeStore{}

	o := New(dense, lex, gw, rerank.New(rerank.NoOpCrossEncoder{}, rerank.DefaultConfig()), store, Config{})

	q := &querystate.Query{OriginalQuery: "what is alpha", VectorStatus: querystate.VecDone, EmbeddingOriginal: []float32{1, 0}}
	out, err := o.Run(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.NotNil(t, store.saved)
	require.Equal(t, out, q.RetrievedContext)
}

func TestRunReturnsNoCandidatesWhenBothSourcesEmpty(t *testing.T) {
	o := New(&fakeDense{}, &fakeLexical{}, &fakeGateway{}, rerank.New(rerank.NoOpCrossEncoder{}, rerank.DefaultConfig()), &fakeStore{}, Config{})
	q := &querystate.Query{OriginalQuery: "x", VectorStatus: querystate.VecDone, EmbeddingOriginal: []float32{1}}
	_, err := o.Run(context.Background(), q)
	require.Error(t, err)
}
