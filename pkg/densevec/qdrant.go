package densevec

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ragcore/ragcore/pkg/apperr"
)

// QdrantConfig configures the Qdrant dense store.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// QdrantStore implements Store against a Qdrant cluster, storing
// cosine-distance collections sized to the embedding model's
// dimension.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
}

// NewQdrantStore dials the configured Qdrant gRPC endpoint.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "NewQdrantStore", fmt.Sprintf("dial %s:%d", cfg.Host, cfg.Port), err)
	}
	return &QdrantStore{client: client, cfg: cfg}, nil
}

func (s *QdrantStore) Name() string { return string(BackendQdrant) }

func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorDimension int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return apperr.New(apperr.Transient, component, "EnsureCollection", "check existence", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorDimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return apperr.New(apperr.Transient, component, "EnsureCollection", "create collection", err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection, chunkID string, vector []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(chunkID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: map[string]*qdrant.Value{"chunk_id": qdrant.NewValueString(chunkID)},
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return apperr.New(apperr.Transient, component, "Upsert", fmt.Sprintf("upsert chunk %s", chunkID), err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	res, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, apperr.New(apperr.Transient, component, "Search", "search points", err)
	}
	return convertQdrantResults(res.Result), nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection, chunkID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: chunkID}}}},
			},
		},
	})
	if err != nil {
		return apperr.New(apperr.Transient, component, "Delete", fmt.Sprintf("delete chunk %s", chunkID), err)
	}
	return nil
}

func (s *QdrantStore) Close() error { return s.client.Close() }

func convertQdrantResults(points []*qdrant.ScoredPoint) []Result {
	out := make([]Result, 0, len(points))
	for _, p := range points {
		var id string
		if p.Id != nil {
			switch v := p.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = v.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", v.Num)
			}
		}
		out = append(out, Result{ChunkID: id, Score: toSimilarity(float64(p.Score))})
	}
	return out
}

var _ Store = (*QdrantStore)(nil)
