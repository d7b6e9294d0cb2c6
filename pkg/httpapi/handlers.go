package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/consolidate"
	"github.com/ragcore/ragcore/pkg/expansion"
	"github.com/ragcore/ragcore/pkg/genmodel"
	"github.com/ragcore/ragcore/pkg/queryembed"
	"github.com/ragcore/ragcore/pkg/querystate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates an apperr.Kind into the matching HTTP status.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.NotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case apperr.PreconditionFailed:
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case apperr.Transient, apperr.Permanent:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case apperr.Cancelled:
		w.WriteHeader(499)
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// --- POST /rag/expansion/run ---

type expansionRunRequest struct {
	OriginalQuery string `json:"original_query"`
	UseFullModel  bool   `json:"use_full_model"`
}

type expansionResponse struct {
	QueryID         string   `json:"query_id"`
	ExpandedQueries []string `json:"expanded_queries"`
	HydeAnswer      string   `json:"hyde_answer"`
	Intent          string   `json:"intent"`
	Entities        []string `json:"entities"`
}

func (s *Server) handleExpansionRun(w http.ResponseWriter, r *http.Request) {
	var req expansionRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	tier := genmodel.TierFull
	if !req.UseFullModel {
		tier = genmodel.TierFast
	}
	model, err := s.models.Get(tier)
	if err != nil {
		writeError(w, err)
		return
	}

	expander := expansion.New(model, s.prompts)
	parsed, err := expander.Expand(r.Context(), req.OriginalQuery)
	if err != nil {
		writeError(w, err)
		return
	}

	q, err := s.queries.CreateQuery(r.Context(), req.OriginalQuery)
	if err != nil {
		writeError(w, err)
		return
	}
	applyExpansion(q, parsed)
	if err := s.queries.Save(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, expansionResponse{
		QueryID:         q.ID,
		ExpandedQueries: q.ExpandedQueries,
		HydeAnswer:      q.HydeAnswer,
		Intent:          string(q.Intent),
		Entities:        q.Entities,
	})
}

func applyExpansion(q *querystate.Query, parsed *expansion.ParsedExpansion) {
	q.ExpandedQueries = parsed.Expanded
	q.HydeAnswer = parsed.Hyde
	q.Intent = querystate.Intent(parsed.Intent)
	q.Entities = parsed.Entities
	q.ParseWarning = parsed.ParseWarning
	querystate.TransitionTo(q, querystate.StateExpanded)
}

// --- POST /rag/expansion/manual ---

type expansionManualRequest struct {
	OriginalQuery string `json:"original_query"`
	LLMResponse   string `json:"llm_response"`
}

type expansionManualResponse struct {
	QueryID string `json:"query_id"`
}

func (s *Server) handleExpansionManual(w http.ResponseWriter, r *http.Request) {
	var req expansionManualRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.OriginalQuery == "" {
		writeError(w, apperr.New(apperr.PreconditionFailed, component, "handleExpansionManual", "original_query is empty", nil))
		return
	}

	parsed := expansion.ParseManual(req.LLMResponse)

	q, err := s.queries.CreateQuery(r.Context(), req.OriginalQuery)
	if err != nil {
		writeError(w, err)
		return
	}
	applyExpansion(q, parsed)
	if err := s.queries.Save(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, expansionManualResponse{QueryID: q.ID})
}

// --- POST /rag/queries/{id}/embed ---

type embedResponse struct {
	VectorStatus string `json:"vector_status"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := queryembed.Embed(r.Context(), s.embedder, embedStoreAdapter{s.queries}, q); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, embedResponse{VectorStatus: string(q.VectorStatus)})
}

// embedStoreAdapter narrows QueryStore to queryembed.Store (Save only).
type embedStoreAdapter struct{ store QueryStore }

func (a embedStoreAdapter) Save(ctx context.Context, q *querystate.Query) error {
	return a.store.Save(ctx, q)
}

// --- POST /rag/queries/{id}/retrieve ---

type retrieveResponse struct {
	ChunksRetrieved int `json:"chunks_retrieved"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	chunks, err := s.orchestrator.Run(r.Context(), q)
	if err != nil && apperr.KindOf(err) == apperr.NoCandidates {
		q.RetrievedContext = nil
		querystate.TransitionTo(q, querystate.StateRetrieved)
		if err := s.queries.Save(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, retrieveResponse{ChunksRetrieved: 0})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{ChunksRetrieved: len(chunks)})
}

// --- POST /rag/queries/{id}/consolidate ---

type consolidateResponse struct {
	OriginalCount     int `json:"original_count"`
	ConsolidatedCount int `json:"consolidated_count"`
	Warnings          []string `json:"warnings,omitempty"`
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	groups, warnings, err := consolidate.Consolidate(r.Context(), s.corpusGW, q.RetrievedContext)
	if err != nil {
		writeError(w, err)
		return
	}
	originalCount := len(q.RetrievedContext)
	q.CleanRetrievalContext = groups
	q.Warnings = append(q.Warnings, warnings...)
	querystate.TransitionTo(q, querystate.StateConsolidated)
	if err := s.queries.Save(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, consolidateResponse{OriginalCount: originalCount, ConsolidatedCount: len(groups), Warnings: warnings})
}

// --- GET /rag/queries/{id}/augment/prompt ---

type augmentPromptResponse struct {
	Prompt       string `json:"prompt"`
	ContextCount int    `json:"context_count"`
}

func (s *Server) handleAugmentPrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	topN := parseTopN(r)

	prompt, contextCount, err := s.prompts.BuildAugmentationPrompt(r.Context(), workTitler{s.corpusGW}, q, topN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, augmentPromptResponse{Prompt: prompt, ContextCount: contextCount})
}

func parseTopN(r *http.Request) int {
	if v := r.URL.Query().Get("top_n"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// --- POST /rag/queries/{id}/augment/run ---

type augmentRunRequest struct {
	TopN         int  `json:"top_n"`
	UseFullModel bool `json:"use_full_model"`
}

type augmentRunResponse struct {
	ResultID     string `json:"result_id"`
	ResponseText string `json:"response_text"`
}

func (s *Server) handleAugmentRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req augmentRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	prompt, _, err := s.prompts.BuildAugmentationPrompt(r.Context(), workTitler{s.corpusGW}, q, req.TopN)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.answerer.Answer(r.Context(), q, prompt, req.UseFullModel)
	if err != nil {
		writeError(w, err)
		return
	}

	querystate.TransitionTo(q, querystate.StateAnswered)
	if err := s.queries.Save(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, augmentRunResponse{ResultID: result.ID, ResponseText: result.ResponseText})
}

// --- POST /rag/queries/{id}/augment/manual ---

type augmentManualRequest struct {
	TopN         int    `json:"top_n"`
	ResponseText string `json:"response_text"`
}

type augmentManualResponse struct {
	ResultID string `json:"result_id"`
}

func (s *Server) handleAugmentManual(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req augmentManualRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.ResponseText == "" {
		writeError(w, apperr.New(apperr.PreconditionFailed, component, "handleAugmentManual", "response_text is empty", nil))
		return
	}

	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.queries.CreateResult(r.Context(), q.ID, req.ResponseText)
	if err != nil {
		writeError(w, err)
		return
	}

	querystate.TransitionTo(q, querystate.StateAnswered)
	if err := s.queries.Save(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, augmentManualResponse{ResultID: result.ID})
}

// --- GET /rag/queries/{id} ---

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q, err := s.queries.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- GET /rag/queries/{id}/results ---

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	results, err := s.queries.ListResults(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []querystate.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

const component = "httpapi"
