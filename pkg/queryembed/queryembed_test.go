package queryembed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/querystate"
)

type stubEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vecs[text], nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type stubStore struct {
	saved *querystate.Query
}

func (s *stubStore) Save(_ context.Context, q *querystate.Query) error {
	s.saved = q
	return nil
}

func TestEmbedSetsVecDoneOnSuccess(t *testing.T) {
	embedder := &stubEmbedder{vecs: map[string][]float32{
		"original": {1, 2},
		"variant":  {3, 4},
		"hyde doc": {5, 6},
	}}
	store := &stubStore{}
	q := &querystate.Query{OriginalQuery: "original", ExpandedQueries: []string{"variant"}, HydeAnswer: "hyde doc"}

	err := Embed(context.Background(), embedder, store, q)
	require.NoError(t, err)
	require.Equal(t, querystate.VecDone, q.VectorStatus)
	require.Equal(t, []float32{1, 2}, q.EmbeddingOriginal)
	require.Equal(t, [][]float32{{3, 4}}, q.EmbeddingsMQE)
	require.Equal(t, []float32{5, 6}, q.EmbeddingHyde)
	require.Same(t, q, store.saved)
}

func TestEmbedSetsVecErrOnTransientFailure(t *testing.T) {
	embedder := &stubEmbedder{err: apperr.New(apperr.Transient, "test", "op", "boom", nil)}
	store := &stubStore{}
	q := &querystate.Query{OriginalQuery: "original"}

	err := Embed(context.Background(), embedder, store, q)
	require.Error(t, err)
	require.Equal(t, querystate.VecErr, q.VectorStatus)
	require.NotNil(t, store.saved)
}

func TestEmbedPropagatesPermanentFailureWithoutPersisting(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("not classified")}
	store := &stubStore{}
	q := &querystate.Query{OriginalQuery: "original"}

	err := Embed(context.Background(), embedder, store, q)
	require.Error(t, err)
	require.Nil(t, store.saved)
}

func TestEmbedRejectsEmptyOriginalQuery(t *testing.T) {
	err := Embed(context.Background(), &stubEmbedder{}, &stubStore{}, &querystate.Query{})
	require.Error(t, err)
}
