package lexsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchMatchesContentField(t *testing.T) {
	ix, err := Open("")
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Upsert(context.Background(), []Document{
		{ChunkID: "c1", Content: "working memory supports short term recall"},
		{ChunkID: "c2", Content: "long term potentiation strengthens synapses"},
	}))

	results, err := ix.Search(context.Background(), "working memory", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "c1", results[0].ChunkID)
}

func TestSearchEmptyQueryReturnsNoResults(t *testing.T) {
	ix, err := Open("")
	require.NoError(t, err)
	defer ix.Close()

	results, err := ix.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	ix, err := Open("")
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Upsert(context.Background(), []Document{{ChunkID: "c1", Content: "dopamine receptor binding"}}))
	require.NoError(t, ix.Delete(context.Background(), []string{"c1"}))

	results, err := ix.Search(context.Background(), "dopamine", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchAfterCloseFails(t *testing.T) {
	ix, err := Open("")
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	_, err = ix.Search(context.Background(), "anything", 10)
	require.Error(t, err)
}
