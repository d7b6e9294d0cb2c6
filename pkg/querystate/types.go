// Package querystate defines the Query entity, its state machine, and
// its SQL persistence.
package querystate

import "time"

// State is a Query's position in the pipeline.
type State string

const (
	StateCreated      State = "created"
	StateExpanded     State = "expanded"
	StateEmbedded     State = "embedded"
	StateRetrieved    State = "retrieved"
	StateConsolidated State = "consolidated"
	StateAnswered     State = "answered"
)

// order gives each State a rank for "is this state reached" checks.
var order = map[State]int{
	StateCreated:      0,
	StateExpanded:      1,
	StateEmbedded:      2,
	StateRetrieved:     3,
	StateConsolidated:  4,
	StateAnswered:      5,
}

// Intent classifies a question's shape; it biases reranking and
// answer style.
type Intent string

const (
	IntentDefinition  Intent = "DEFINITION"
	IntentMechanism   Intent = "MECHANISM"
	IntentComparison  Intent = "COMPARISON"
	IntentApplication Intent = "APPLICATION"
	IntentStudyDetail Intent = "STUDY_DETAIL"
	IntentCritique    Intent = "CRITIQUE"
	IntentUnknown     Intent = "UNKNOWN"
)

// VectorStatus mirrors corpus.VectorStatus for Query embeddings.
type VectorStatus string

const (
	VecNone VectorStatus = "no_vec"
	VecTodo VectorStatus = "to_vec"
	VecDone VectorStatus = "vec"
	VecErr  VectorStatus = "vec_err"
)

// RetrievedChunk is one scored candidate persisted inside
// Query.RetrievedContext.
type RetrievedChunk struct {
	ChunkID            string  `json:"chunk_id"`
	WorkID             string  `json:"work_id"`
	ParentID           string  `json:"parent_id,omitempty"`
	Content            string  `json:"content"`
	HeadingBreadcrumbs string  `json:"heading_breadcrumbs,omitempty"`
	StartLine          int     `json:"start_line"`
	EndLine            int     `json:"end_line"`
	Level              string  `json:"level"`
	RRFScore           float64 `json:"rrf_score"`
	RerankScore        float64 `json:"rerank_score"`
	EntityBoost        float64 `json:"entity_boost"`
	FinalScore         float64 `json:"final_score"`
}

// ConsolidatedGroup is one post-consolidation evidence group persisted
// inside Query.CleanRetrievalContext.
type ConsolidatedGroup struct {
	ChunkIDs     []string `json:"chunk_ids"`
	ParentID     string   `json:"parent_id,omitempty"`
	WorkID       string   `json:"work_id"`
	WorkTitle    string   `json:"work_title,omitempty"`
	Content      string   `json:"content"`
	StartLine    int      `json:"start_line"`
	EndLine      int       `json:"end_line"`
	Score        float64  `json:"score"`
	HeadingChain []string `json:"heading_chain,omitempty"`
}

// Query is a persistent record of one user question and everything
// derived from it.
type Query struct {
	ID                    string              `json:"id"`
	State                 State               `json:"state"`
	OriginalQuery         string              `json:"original_query"`
	ExpandedQueries       []string            `json:"expanded_queries,omitempty"`
	HydeAnswer            string              `json:"hyde_answer,omitempty"`
	Intent                Intent              `json:"intent,omitempty"`
	Entities              []string            `json:"entities,omitempty"`
	ParseWarning          bool                `json:"parse_warning,omitempty"`
	EmbeddingOriginal     []float32           `json:"embedding_original,omitempty"`
	EmbeddingsMQE         [][]float32         `json:"embeddings_mqe,omitempty"`
	EmbeddingHyde         []float32           `json:"embedding_hyde,omitempty"`
	VectorStatus          VectorStatus        `json:"vector_status"`
	RetrievedContext      []RetrievedChunk    `json:"retrieved_context,omitempty"`
	CleanRetrievalContext []ConsolidatedGroup `json:"clean_retrieval_context,omitempty"`
	Warnings              []string            `json:"warnings,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// Result is an answer produced for a Query.
type Result struct {
	ID           string    `json:"id"`
	QueryID      string    `json:"query_id"`
	ResponseText string    `json:"response_text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PromptTemplate is one versioned row of the prompt_templates table.
type PromptTemplate struct {
	ID              string    `json:"id"`
	FunctionTag     string    `json:"function_tag"`
	Version         int       `json:"version"`
	Title           string    `json:"title"`
	TemplateContent string    `json:"template_content"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Reached reports whether s1 is at or beyond s2 in the pipeline order.
func Reached(s1, s2 State) bool { return order[s1] >= order[s2] }
