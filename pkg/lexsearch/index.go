// Package lexsearch implements the Lexical Searcher component: a
// bleve-backed inverted index over chunk content, scored by bleve's
// default BM25-style similarity, returning ranked chunk ids.
package lexsearch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/ragcore/ragcore/pkg/apperr"
)

const component = "lexsearch"

// indexedDoc is the document bleve actually stores. Only Content is
// mapped and indexed with the English analyzer; heading_breadcrumbs
// stays out of the index entirely so structural headings never
// contribute to lexical scoring (see DESIGN.md).
type indexedDoc struct {
	Content string `json:"content"`
}

// Document is one chunk offered to the index.
type Document struct {
	ChunkID string
	Content string
}

// Result is one ranked hit.
type Result struct {
	ChunkID string
	Score   float64
}

// Index wraps a bleve index restricted to a single "content" field.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Open creates or opens a bleve index at path. An empty path creates
// an in-memory index, used for tests and for corpora small enough
// that a persistent lexical index isn't worth the disk I/O.
func Open(path string) (*Index, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "Open", "build index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, apperr.New(apperr.Permanent, component, "Open", "create index directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "Open", "open or create bleve index", err)
	}
	return &Index{index: idx, path: path}, nil
}

// buildMapping restricts indexing to a "content" field using bleve's
// built-in English analyzer (stemming + stop-word removal), leaving
// every other field (e.g. any heading_breadcrumbs a caller might
// otherwise be tempted to index) untouched.
func buildMapping() (*mapping.IndexMappingImpl, error) {
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = "en"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.Dynamic = false

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	m.DefaultAnalyzer = "en"
	return m, nil
}

// Upsert indexes or reindexes the given chunks in a single batch.
func (ix *Index) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return apperr.New(apperr.Permanent, component, "Upsert", "index is closed", nil)
	}

	batch := ix.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ChunkID, indexedDoc{Content: d.Content}); err != nil {
			return apperr.New(apperr.Permanent, component, "Upsert", fmt.Sprintf("index chunk %s", d.ChunkID), err)
		}
	}
	if err := ix.index.Batch(batch); err != nil {
		return apperr.New(apperr.Transient, component, "Upsert", "execute batch", err)
	}
	return nil
}

// Delete removes chunks from the index, e.g. on work re-ingestion.
func (ix *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return apperr.New(apperr.Permanent, component, "Delete", "index is closed", nil)
	}
	batch := ix.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := ix.index.Batch(batch); err != nil {
		return apperr.New(apperr.Transient, component, "Delete", "execute batch", err)
	}
	return nil
}

// Search runs a lexical query against the content field only and
// returns up to limit ranked (chunk_id, rank_score) hits.
func (ix *Index) Search(ctx context.Context, queryText string, limit int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, apperr.New(apperr.Permanent, component, "Search", "index is closed", nil)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 40
	}

	q := bleve.NewMatchQuery(queryText)
	q.SetField("content")

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "Search", "bleve search failed", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{ChunkID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Close releases the underlying bleve index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.index.Close()
}
