// Package retrieval implements the Retrieval Orchestrator component:
// fans out dense and lexical searches across a Query's embeddings,
// max-pools and RRF-fuses the results, reranks, and persists the
// final RetrievedChunk set.
package retrieval

import (
	"context"
	"fmt"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/corpus"
	"github.com/ragcore/ragcore/pkg/fusion"
	"github.com/ragcore/ragcore/pkg/querystate"
	"github.com/ragcore/ragcore/pkg/rerank"
)

const component = "retrieval"

// DenseSearcher is the subset of densevec.Store the orchestrator
// needs.
type DenseSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]DenseResult, error)
}

// DenseResult mirrors densevec.Result without importing the package
// directly, so callers can adapt either densevec.Store or a fake.
type DenseResult struct {
	ChunkID string
	Score   float64
}

// LexicalSearcher is the subset of lexsearch.Index the orchestrator
// needs.
type LexicalSearcher interface {
	Search(ctx context.Context, queryText string, limit int) ([]LexicalResult, error)
}

type LexicalResult struct {
	ChunkID string
	Score   float64
}

// Gateway is the subset of corpus.Gateway needed to load chunk text
// and heading ancestry for reranking.
type Gateway interface {
	GetChunks(ctx context.Context, ids []string) (map[string]*corpus.Chunk, error)
	GetParentChunks(ctx context.Context, childIDs []string) (map[string]*corpus.Chunk, error)
}

// Store persists the orchestrator's output onto the Query.
type Store interface {
	Save(ctx context.Context, q *querystate.Query) error
}

// Config holds the orchestrator's pool sizes and fusion/rerank knobs.
type Config struct {
	DensePoolSize   int // per-embedding dense search limit, default 50
	LexicalPoolSize int // per-query lexical search limit, default 50
	Collection      string
	FusionK         int // RRF k, default 60
	FuseTopK        int // K_fuse, default 30
	RerankTopK      int // K_rerank, default 15
}

func (c *Config) setDefaults() {
	if c.DensePoolSize == 0 {
		c.DensePoolSize = 50
	}
	if c.LexicalPoolSize == 0 {
		c.LexicalPoolSize = 50
	}
	if c.FusionK == 0 {
		c.FusionK = 60
	}
	if c.FuseTopK == 0 {
		c.FuseTopK = 30
	}
	if c.RerankTopK == 0 {
		c.RerankTopK = 15
	}
}

// Orchestrator runs the dense/lexical fan-out, fusion, and rerank
// pipeline and persists the final retrieved chunks onto the Query.
type Orchestrator struct {
	dense    DenseSearcher
	lexical  LexicalSearcher
	gateway  Gateway
	reranker *rerank.Reranker
	store    Store
	cfg      Config
}

func New(dense DenseSearcher, lexical LexicalSearcher, gateway Gateway, reranker *rerank.Reranker, store Store, cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{dense: dense, lexical: lexical, gateway: gateway, reranker: reranker, store: store, cfg: cfg}
}

type embeddingTarget struct {
	id     string
	vector []float32
}

func (t embeddingTarget) GetID() string { return t.id }

type lexicalTarget struct {
	id   string
	text string
}

func (t lexicalTarget) GetID() string { return t.id }

// Run executes the full fan-out → pool → fuse → rerank → persist
// pipeline and returns the final RetrievedChunk set.
func (o *Orchestrator) Run(ctx context.Context, q *querystate.Query) ([]querystate.RetrievedChunk, error) {
	if q.VectorStatus != querystate.VecDone || len(q.EmbeddingOriginal) == 0 {
		return nil, apperr.New(apperr.PreconditionFailed, component, "Run", "query is not embedded", nil)
	}

	denseTargets := []embeddingTarget{{id: "original", vector: q.EmbeddingOriginal}}
	for i, v := range q.EmbeddingsMQE {
		denseTargets = append(denseTargets, embeddingTarget{id: fmt.Sprintf("mqe-%d", i), vector: v})
	}
	if len(q.EmbeddingHyde) > 0 {
		denseTargets = append(denseTargets, embeddingTarget{id: "hyde", vector: q.EmbeddingHyde})
	}

	denseOut := parallelSearch(ctx, denseTargets, func(ctx context.Context, t embeddingTarget) ([]fusion.Ranked, error) {
		hits, err := o.dense.Search(ctx, o.cfg.Collection, t.vector, o.cfg.DensePoolSize)
		if err != nil {
			return nil, err
		}
		ranked := make([]fusion.Ranked, len(hits))
		for i, h := range hits {
			ranked[i] = fusion.Ranked{ID: h.ChunkID, Score: h.Score}
		}
		return ranked, nil
	})

	lexTargets := []lexicalTarget{{id: "original", text: q.OriginalQuery}}
	for i, eq := range q.ExpandedQueries {
		lexTargets = append(lexTargets, lexicalTarget{id: fmt.Sprintf("expanded-%d", i), text: eq})
	}
	lexOut := parallelSearch(ctx, lexTargets, func(ctx context.Context, t lexicalTarget) ([]fusion.Ranked, error) {
		hits, err := o.lexical.Search(ctx, t.text, o.cfg.LexicalPoolSize)
		if err != nil {
			return nil, err
		}
		ranked := make([]fusion.Ranked, len(hits))
		for i, h := range hits {
			ranked[i] = fusion.Ranked{ID: h.ChunkID, Score: h.Score}
		}
		return ranked, nil
	})

	var denseLists, lexLists [][]fusion.Ranked
	for _, r := range denseOut {
		if r.Err == nil {
			denseLists = append(denseLists, r.Results)
		}
	}
	for _, r := range lexOut {
		if r.Err == nil {
			lexLists = append(lexLists, r.Results)
		}
	}

	pooledDense := fusion.MaxPool(denseLists)
	pooledLexical := fusion.MaxPool(lexLists)

	if len(pooledDense) == 0 && len(pooledLexical) == 0 {
		return nil, apperr.New(apperr.NoCandidates, component, "Run", "dense and lexical search both returned nothing", nil)
	}

	fused := fusion.ReciprocalRankFusion([][]fusion.Ranked{pooledDense, pooledLexical}, o.cfg.FusionK, o.cfg.FuseTopK)

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	chunks, err := o.gateway.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	parents, err := o.gateway.GetParentChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]rerank.Candidate, 0, len(fused))
	for _, f := range fused {
		c, ok := chunks[f.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, rerank.Candidate{
			ChunkID:           f.ID,
			Text:              c.Content,
			RRFScore:          f.RRFScore,
			FirstHeadingLevel: headingAncestorLevel(parents, f.ID),
		})
	}

	reranked := o.reranker.Rerank(ctx, q.OriginalQuery, candidates, q.Entities, string(q.Intent))
	if len(reranked) > o.cfg.RerankTopK {
		reranked = reranked[:o.cfg.RerankTopK]
	}

	retrieved := make([]querystate.RetrievedChunk, 0, len(reranked))
	for _, s := range reranked {
		c, ok := chunks[s.ChunkID]
		if !ok {
			continue
		}
		retrieved = append(retrieved, querystate.RetrievedChunk{
			ChunkID:            c.ID,
			WorkID:             c.WorkID,
			ParentID:           c.ParentID,
			Content:            c.Content,
			HeadingBreadcrumbs: c.HeadingBreadcrumbs,
			StartLine:          c.StartLine,
			EndLine:            c.EndLine,
			Level:              string(c.Level),
			RRFScore:           rrfScoreFor(fused, c.ID),
			RerankScore:        s.RerankScore,
			EntityBoost:        s.EntityBoost,
			FinalScore:         s.FinalScore,
		})
	}

	q.RetrievedContext = retrieved
	querystate.TransitionTo(q, querystate.StateRetrieved)

	if err := o.store.Save(ctx, q); err != nil {
		return nil, err
	}
	return retrieved, nil
}

func rrfScoreFor(fused []fusion.Fused, id string) float64 {
	for _, f := range fused {
		if f.ID == id {
			return f.RRFScore
		}
	}
	return 0
}

// headingAncestorLevel reports the level of chunkID's parent heading
// chunk (e.g. "H1"), or the empty string if it has none. Every
// retrievable chunk has a non-null parent_id, so this is the heading
// section immediately containing the candidate, not the candidate's
// own level (content chunks are always level "chunk").
func headingAncestorLevel(parents map[string]*corpus.Chunk, chunkID string) string {
	p, ok := parents[chunkID]
	if !ok {
		return ""
	}
	return string(p.Level)
}
