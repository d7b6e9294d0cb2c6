// Package queryembed implements the Query Embedder component: embeds
// a Query's original text, its expanded variants, and its HyDE
// answer, then persists the result atomically.
package queryembed

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/querystate"
)

const component = "queryembed"

// Embedder is the subset of embedclient.Client the orchestration
// needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the subset of querystate.Store needed to persist results.
type Store interface {
	Save(ctx context.Context, q *querystate.Query) error
}

// Embed embeds original_query, batch-embeds expanded_queries,
// conditionally embeds hyde_answer, then sets vector_status and
// persists atomically.
func Embed(ctx context.Context, embedder Embedder, store Store, q *querystate.Query) error {
	if q.OriginalQuery == "" {
		return apperr.New(apperr.PreconditionFailed, component, "Embed", "original_query is empty", nil)
	}

	var (
		original []float32
		mqe      [][]float32
		hyde     []float32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		original, err = embedder.Embed(gctx, q.OriginalQuery)
		return err
	})
	if len(q.ExpandedQueries) > 0 {
		g.Go(func() error {
			var err error
			mqe, err = embedder.EmbedBatch(gctx, q.ExpandedQueries)
			return err
		})
	}
	if q.HydeAnswer != "" {
		g.Go(func() error {
			var err error
			hyde, err = embedder.Embed(gctx, q.HydeAnswer)
			return err
		})
	}

	err := g.Wait()

	q.EmbeddingOriginal = original
	q.EmbeddingsMQE = mqe
	q.EmbeddingHyde = hyde

	if err != nil && apperr.KindOf(err) == apperr.Transient {
		q.VectorStatus = querystate.VecErr
	} else if err == nil {
		q.VectorStatus = querystate.VecDone
	} else {
		return err
	}

	querystate.TransitionTo(q, querystate.StateEmbedded)

	if saveErr := store.Save(ctx, q); saveErr != nil {
		return saveErr
	}
	if q.VectorStatus == querystate.VecErr {
		return apperr.New(apperr.Transient, component, "Embed", "embedding failed, partial state persisted for debugging", err)
	}
	return nil
}
