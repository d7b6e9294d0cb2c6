// Command ragcore runs the RAG query pipeline's HTTP server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ragcore/ragcore/pkg/answer"
	"github.com/ragcore/ragcore/pkg/consolidate"
	"github.com/ragcore/ragcore/pkg/corpus"
	"github.com/ragcore/ragcore/pkg/densevec"
	"github.com/ragcore/ragcore/pkg/embedclient"
	"github.com/ragcore/ragcore/pkg/genmodel"
	"github.com/ragcore/ragcore/pkg/httpapi"
	"github.com/ragcore/ragcore/pkg/lexsearch"
	"github.com/ragcore/ragcore/pkg/logger"
	"github.com/ragcore/ragcore/pkg/obs"
	"github.com/ragcore/ragcore/pkg/prompt"
	"github.com/ragcore/ragcore/pkg/querystate"
	"github.com/ragcore/ragcore/pkg/ragcfg"
	"github.com/ragcore/ragcore/pkg/rerank"
	"github.com/ragcore/ragcore/pkg/retrieval"
)

func main() {
	configPath := flag.String("config", "ragcore.yaml", "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to an optional dotenv overlay")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")
	logFormat := flag.String("log-format", "simple", "simple or verbose")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger.Init(level, os.Stderr, *logFormat)

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("ragcore exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	cfg, err := ragcfg.Load(configPath, envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open(cfg.Database.Dialect, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	corpusGW, err := corpus.New(db, cfg.Database.Dialect)
	if err != nil {
		return fmt.Errorf("build corpus gateway: %w", err)
	}

	queries, err := querystate.NewStore(db, cfg.Database.Dialect)
	if err != nil {
		return fmt.Errorf("build query state store: %w", err)
	}

	embedTimeout, err := time.ParseDuration(cfg.Embedding.Timeout)
	if err != nil {
		return fmt.Errorf("parse embedding.timeout: %w", err)
	}
	embedder := embedclient.New(embedclient.Config{
		Host:    cfg.Embedding.Endpoint,
		Model:   cfg.Embedding.Model,
		Timeout: embedTimeout,
	})

	ctx := context.Background()

	denseStore, err := densevec.New(ctx, densevec.Config{
		Backend: densevec.Backend(cfg.Dense.Backend),
		Qdrant:  densevec.QdrantConfig{Host: cfg.Dense.Qdrant.Host, Port: cfg.Dense.Qdrant.Port},
		Pinecone: densevec.PineconeConfig{
			APIKey: cfg.Dense.Pinecone.APIKey,
			Host:   cfg.Dense.Pinecone.Host,
		},
	})
	if err != nil {
		return fmt.Errorf("build dense store: %w", err)
	}
	defer denseStore.Close()

	var lexIndex *lexsearch.Index
	lexIndex, err = lexsearch.Open(cfg.Lexical.IndexPath)
	if err != nil {
		return fmt.Errorf("build lexical index: %w", err)
	}
	defer lexIndex.Close()

	models, err := genmodel.NewRegistry(ctx, genmodel.Config{
		APIKey:    cfg.Generative.APIKey,
		FullModel: cfg.Generative.FullModel,
		FastModel: cfg.Generative.FastModel,
	})
	if err != nil {
		return fmt.Errorf("build generative model registry: %w", err)
	}
	defer models.Close()

	var crossEncoder rerank.CrossEncoder = rerank.NoOpCrossEncoder{}
	if cfg.Rerank.Endpoint != "" {
		ceCfg := rerank.DefaultHTTPCrossEncoderConfig()
		ceCfg.Endpoint = cfg.Rerank.Endpoint
		httpCE, ceErr := rerank.NewHTTPCrossEncoder(ctx, ceCfg)
		if ceErr != nil {
			return fmt.Errorf("build cross encoder: %w", ceErr)
		}
		defer httpCE.Close()
		crossEncoder = httpCE
	}
	reranker := rerank.New(crossEncoder, rerank.Config{
		EntityBoost: cfg.Rerank.EntityBoost,
		IntentBoost: cfg.Rerank.IntentBoost,
		TopK:        cfg.Retrieval.RerankTopN,
	})

	orchestrator := retrieval.New(
		denseSearcherAdapter{denseStore},
		lexicalSearcherAdapter{lexIndex},
		corpusGW,
		reranker,
		queries,
		retrieval.Config{
			DensePoolSize:   cfg.Retrieval.DensePoolSize,
			LexicalPoolSize: cfg.Retrieval.LexicalPoolSize,
			Collection:      cfg.Dense.Collection,
			FusionK:         cfg.Retrieval.FusionK,
			FuseTopK:        cfg.Retrieval.FinalTopN,
			RerankTopK:      cfg.Retrieval.RerankTopN,
		},
	)

	promptBuilder, err := prompt.New(queries, 0)
	if err != nil {
		return fmt.Errorf("build prompt builder: %w", err)
	}

	answerer := answer.New(models, queries)

	metrics := obs.NewMetrics()
	tracerProvider, shutdownTracer, err := obs.InitTracer(obs.TracerConfig{Enabled: true, ServiceName: "ragcore"})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	server := httpapi.New(httpapi.Deps{
		Addr:         cfg.HTTP.Addr,
		Queries:      queries,
		CorpusGW:     corpusGW,
		Models:       models,
		Embedder:     embedder,
		Orchestrator: orchestrator,
		Prompts:      promptBuilder,
		Answerer:     answerer,
		Metrics:      metrics,
		Tracer:       tracerProvider.Tracer("ragcore/httpapi"),
	})

	serverCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(serverCtx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// denseSearcherAdapter adapts densevec.Store to retrieval.DenseSearcher,
// mapping densevec.Result onto retrieval's dependency-free mirror type.
type denseSearcherAdapter struct {
	store densevec.Store
}

func (a denseSearcherAdapter) Search(ctx context.Context, collection string, vector []float32, topK int) ([]retrieval.DenseResult, error) {
	results, err := a.store.Search(ctx, collection, vector, topK)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.DenseResult, len(results))
	for i, r := range results {
		out[i] = retrieval.DenseResult{ChunkID: r.ChunkID, Score: r.Score}
	}
	return out, nil
}

// lexicalSearcherAdapter adapts lexsearch.Index to retrieval.LexicalSearcher.
type lexicalSearcherAdapter struct {
	index *lexsearch.Index
}

func (a lexicalSearcherAdapter) Search(ctx context.Context, queryText string, limit int) ([]retrieval.LexicalResult, error) {
	results, err := a.index.Search(ctx, queryText, limit)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.LexicalResult, len(results))
	for i, r := range results {
		out[i] = retrieval.LexicalResult{ChunkID: r.ChunkID, Score: r.Score}
	}
	return out, nil
}

var _ = consolidate.Consolidate // exercised via httpapi.Server, kept visible here for wiring clarity
