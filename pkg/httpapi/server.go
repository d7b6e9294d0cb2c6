// Package httpapi exposes the query pipeline over plain net/http,
// one endpoint per pipeline component.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/ragcore/ragcore/pkg/answer"
	"github.com/ragcore/ragcore/pkg/corpus"
	"github.com/ragcore/ragcore/pkg/genmodel"
	"github.com/ragcore/ragcore/pkg/logger"
	"github.com/ragcore/ragcore/pkg/obs"
	"github.com/ragcore/ragcore/pkg/prompt"
	"github.com/ragcore/ragcore/pkg/queryembed"
	"github.com/ragcore/ragcore/pkg/querystate"
	"github.com/ragcore/ragcore/pkg/retrieval"
)

// QueryStore is the subset of querystate.Store the HTTP surface
// drives directly.
type QueryStore interface {
	CreateQuery(ctx context.Context, originalQuery string) (*querystate.Query, error)
	GetQuery(ctx context.Context, id string) (*querystate.Query, error)
	Save(ctx context.Context, q *querystate.Query) error
	CreateResult(ctx context.Context, queryID, responseText string) (*querystate.Result, error)
	ListResults(ctx context.Context, queryID string) ([]querystate.Result, error)
}

// ModelRegistry resolves a generative-model tier, shared by the
// expansion and answer endpoints.
type ModelRegistry interface {
	Get(tier genmodel.Tier) (genmodel.Model, error)
}

// workTitler adapts corpus.Gateway to pkg/prompt's narrow WorkTitler
// interface.
type workTitler struct {
	gw *corpus.Gateway
}

func (w workTitler) WorkTitle(ctx context.Context, workID string) (string, error) {
	work, err := w.gw.GetWork(ctx, workID)
	if err != nil {
		return "", err
	}
	return work.Title, nil
}

// Server holds every wired pipeline component and serves the REST
// surface in front of them: setupRoutes registers each handler, and
// corsMiddleware/loggingMiddleware wrap the whole mux.
type Server struct {
	addr string

	queries      QueryStore
	corpusGW     *corpus.Gateway
	models       ModelRegistry
	embedder     queryembed.Embedder
	orchestrator *retrieval.Orchestrator
	prompts      *prompt.Builder
	answerer     *answer.Answerer

	metrics *obs.Metrics
	tracer  trace.Tracer

	mux    *http.ServeMux
	server *http.Server
}

// Deps bundles Server's constructor dependencies.
type Deps struct {
	Addr         string
	Queries      QueryStore
	CorpusGW     *corpus.Gateway
	Models       ModelRegistry
	Embedder     queryembed.Embedder
	Orchestrator *retrieval.Orchestrator
	Prompts      *prompt.Builder
	Answerer     *answer.Answerer
	Metrics      *obs.Metrics
	Tracer       trace.Tracer
}

func New(d Deps) *Server {
	s := &Server{
		addr:         d.Addr,
		queries:      d.Queries,
		corpusGW:     d.CorpusGW,
		models:       d.Models,
		embedder:     d.Embedder,
		orchestrator: d.Orchestrator,
		prompts:      d.Prompts,
		answerer:     d.Answerer,
		metrics:      d.Metrics,
		tracer:       d.Tracer,
	}
	s.mux = s.setupRoutes()
	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var handler http.Handler = s.mux
	handler = obs.HTTPMiddleware(s.mux, s.metrics, s.tracer)(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = middleware.RequestID(handler)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Component(component).Info("HTTP server starting", "address", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Component(component).Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the route mux for tests, without the middleware
// that Start wraps around it.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /rag/expansion/run", s.handleExpansionRun)
	mux.HandleFunc("POST /rag/expansion/manual", s.handleExpansionManual)
	mux.HandleFunc("POST /rag/queries/{id}/embed", s.handleEmbed)
	mux.HandleFunc("POST /rag/queries/{id}/retrieve", s.handleRetrieve)
	mux.HandleFunc("POST /rag/queries/{id}/consolidate", s.handleConsolidate)
	mux.HandleFunc("GET /rag/queries/{id}/augment/prompt", s.handleAugmentPrompt)
	mux.HandleFunc("POST /rag/queries/{id}/augment/run", s.handleAugmentRun)
	mux.HandleFunc("POST /rag/queries/{id}/augment/manual", s.handleAugmentManual)
	mux.HandleFunc("GET /rag/queries/{id}", s.handleGetQuery)
	mux.HandleFunc("GET /rag/queries/{id}/results", s.handleListResults)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// corsMiddleware adds permissive CORS headers allowing any origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Component(component).Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
