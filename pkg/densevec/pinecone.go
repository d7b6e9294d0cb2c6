package densevec

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"

	"github.com/ragcore/ragcore/pkg/apperr"
)

// PineconeConfig configures the Pinecone dense store.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host,omitempty"`
	IndexName string `yaml:"index_name"`
}

// PineconeStore implements Store against a managed Pinecone index.
// Pinecone indexes must already exist (created via console or API);
// EnsureCollection only verifies presence.
type PineconeStore struct {
	client    *pinecone.Client
	indexName string
}

func NewPineconeStore(ctx context.Context, cfg PineconeConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.Permanent, component, "NewPineconeStore", "api_key is required", nil)
	}
	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "NewPineconeStore", "create client", err)
	}
	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "ragcore"
	}
	return &PineconeStore{client: client, indexName: indexName}, nil
}

func (s *PineconeStore) Name() string { return string(BackendPinecone) }

func (s *PineconeStore) EnsureCollection(ctx context.Context, collection string, vectorDimension int) error {
	name := s.resolve(collection)
	indexes, err := s.client.ListIndexes(ctx)
	if err != nil {
		return apperr.New(apperr.Transient, component, "EnsureCollection", "list indexes", err)
	}
	for _, idx := range indexes {
		if idx.Name == name {
			return nil
		}
	}
	return apperr.New(apperr.Permanent, component, "EnsureCollection", fmt.Sprintf("index %s does not exist; create via Pinecone console", name), nil)
}

func (s *PineconeStore) connect(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	name := s.resolve(collection)
	idx, err := s.client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "connect", fmt.Sprintf("describe index %s", name), err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: idx.Host})
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "connect", "open index connection", err)
	}
	return conn, nil
}

func (s *PineconeStore) resolve(collection string) string {
	if collection == "" {
		return s.indexName
	}
	return collection
}

func (s *PineconeStore) Upsert(ctx context.Context, collection, chunkID string, vector []float32) error {
	conn, err := s.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: chunkID, Values: vector}})
	if err != nil {
		return apperr.New(apperr.Transient, component, "Upsert", fmt.Sprintf("upsert chunk %s", chunkID), err)
	}
	return nil
}

func (s *PineconeStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	conn, err := s.connect(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:        vector,
		TopK:          uint32(topK),
		IncludeValues: false,
	})
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "Search", "query by vector", err)
	}
	out := make([]Result, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		out = append(out, Result{ChunkID: m.Vector.Id, Score: toSimilarity(float64(m.Score))})
	}
	return out, nil
}

func (s *PineconeStore) Delete(ctx context.Context, collection, chunkID string) error {
	conn, err := s.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{chunkID}); err != nil {
		return apperr.New(apperr.Transient, component, "Delete", fmt.Sprintf("delete chunk %s", chunkID), err)
	}
	return nil
}

func (s *PineconeStore) Close() error { return nil }

var _ Store = (*PineconeStore)(nil)
