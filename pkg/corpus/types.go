// Package corpus exposes read-only access to ingested Works and
// Chunks, and the sanitized-file enrichment read used by consolidation.
package corpus

import "time"

// VectorStatus mirrors the Chunk/Query vector lifecycle.
type VectorStatus string

const (
	VecNone VectorStatus = "no_vec"
	VecTodo VectorStatus = "to_vec"
	VecDone VectorStatus = "vec"
	VecErr  VectorStatus = "vec_err"
)

// Level tags a Chunk as a heading (H1..H5) or a content chunk.
type Level string

const (
	LevelH1    Level = "H1"
	LevelH2    Level = "H2"
	LevelH3    Level = "H3"
	LevelH4    Level = "H4"
	LevelH5    Level = "H5"
	LevelChunk Level = "chunk"
)

// FileRef locates a read-only file associated with a Work, with the
// content hash used to detect staleness.
type FileRef struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Work is an ingested document, immutable from the RAG core's
// perspective.
type Work struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Authors       string             `json:"authors"`
	Year          int                `json:"year"`
	Files         map[string]FileRef `json:"files"`
	Bibliographic map[string]any     `json:"bibliographic,omitempty"`
}

// SanitizedFile returns the "sanitized" file reference, if present.
func (w *Work) SanitizedFile() (FileRef, bool) {
	f, ok := w.Files["sanitized"]
	return f, ok
}

// Chunk is an addressable unit of retrievable text.
type Chunk struct {
	ID                 string       `json:"id"`
	WorkID             string       `json:"work_id"`
	ParentID           string       `json:"parent_id,omitempty"`
	Level              Level        `json:"level"`
	Content            string       `json:"content"`
	HeadingBreadcrumbs string       `json:"heading_breadcrumbs,omitempty"`
	StartLine          int          `json:"start_line"`
	EndLine            int          `json:"end_line"`
	VectorStatus       VectorStatus `json:"vector_status"`
	Embedding          []float32    `json:"-"`
}

// Span is the inclusive line count of the chunk.
func (c *Chunk) Span() int { return c.EndLine - c.StartLine + 1 }

// IsContent reports whether c is a content chunk (level == "chunk").
func (c *Chunk) IsContent() bool { return c.Level == LevelChunk }

// EligibleForDenseRetrieval reports whether a chunk is eligible to
// appear in dense retrieval results.
func (c *Chunk) EligibleForDenseRetrieval() bool {
	return c.ParentID != "" && c.VectorStatus == VecDone
}

// EligibleForLexicalRetrieval additionally requires indexing.
func (c *Chunk) EligibleForLexicalRetrieval() bool {
	return c.EligibleForDenseRetrieval()
}

// Timestamps is embedded by entities that track creation/update time.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
