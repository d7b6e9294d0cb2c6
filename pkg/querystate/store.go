package querystate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragcore/ragcore/pkg/apperr"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const createQueriesSchemaSQL = `
CREATE TABLE IF NOT EXISTS queries (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	original_query TEXT NOT NULL,
	expanded_queries_json TEXT,
	hyde_answer TEXT,
	intent TEXT,
	entities_json TEXT,
	parse_warning INTEGER NOT NULL DEFAULT 0,
	embedding_original_json TEXT,
	embeddings_mqe_json TEXT,
	embedding_hyde_json TEXT,
	vector_status TEXT NOT NULL,
	retrieved_context_json TEXT,
	clean_retrieval_context_json TEXT,
	warnings_json TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const createResultsSchemaSQL = `
CREATE TABLE IF NOT EXISTS results (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL,
	response_text TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const createResultsQueryIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_results_query ON results(query_id)`

const createPromptTemplatesSchemaSQL = `
CREATE TABLE IF NOT EXISTS prompt_templates (
	id TEXT PRIMARY KEY,
	function_tag TEXT NOT NULL,
	version INTEGER NOT NULL,
	title TEXT,
	template_content TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Store persists Query, Result, and PromptTemplate rows. Writes to a
// single Query are serialized through a per-id striped lock (a real
// mutex, held only for the duration of the write) rather than a
// single global lock, so unrelated Queries proceed concurrently.
type Store struct {
	db      *sql.DB
	dialect string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

const storeComponent = "querystate"

// NewStore opens a Store and ensures its schema exists.
func NewStore(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, apperr.New(apperr.Permanent, storeComponent, "NewStore", "nil database handle", nil)
	}
	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, apperr.New(apperr.Permanent, storeComponent, "NewStore", fmt.Sprintf("unsupported dialect %q", dialect), nil)
	}
	s := &Store{db: db, dialect: dialect, locks: make(map[string]*sync.Mutex)}
	if err := s.initSchema(); err != nil {
		return nil, apperr.New(apperr.Permanent, storeComponent, "NewStore", "schema init failed", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range []string{
		createQueriesSchemaSQL,
		createResultsSchemaSQL,
		createResultsQueryIndexSQL,
		createPromptTemplatesSchemaSQL,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) lockFor(queryID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[queryID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[queryID] = m
	}
	return m
}

// CreateQuery inserts a brand-new Query in state `created`.
func (s *Store) CreateQuery(ctx context.Context, originalQuery string) (*Query, error) {
	now := time.Now()
	q := &Query{
		ID:            uuid.NewString(),
		State:         StateCreated,
		OriginalQuery: originalQuery,
		VectorStatus:  VecNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.insert(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Store) insert(ctx context.Context, q *Query) error {
	lock := s.lockFor(q.ID)
	lock.Lock()
	defer lock.Unlock()

	expandedJSON, err := json.Marshal(q.ExpandedQueries)
	if err != nil {
		return apperr.New(apperr.Permanent, storeComponent, "insert", "marshal expanded_queries", err)
	}
	entitiesJSON, _ := json.Marshal(q.Entities)
	embedOrigJSON, _ := json.Marshal(q.EmbeddingOriginal)
	embedMQEJSON, _ := json.Marshal(q.EmbeddingsMQE)
	embedHydeJSON, _ := json.Marshal(q.EmbeddingHyde)
	retrievedJSON, _ := json.Marshal(q.RetrievedContext)
	cleanJSON, _ := json.Marshal(q.CleanRetrievalContext)
	warningsJSON, _ := json.Marshal(q.Warnings)

	query := s.rebind(`INSERT INTO queries
		(id, state, original_query, expanded_queries_json, hyde_answer, intent, entities_json, parse_warning,
		 embedding_original_json, embeddings_mqe_json, embedding_hyde_json, vector_status,
		 retrieved_context_json, clean_retrieval_context_json, warnings_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		q.ID, q.State, q.OriginalQuery, string(expandedJSON), q.HydeAnswer, string(q.Intent), string(entitiesJSON),
		boolToInt(q.ParseWarning), string(embedOrigJSON), string(embedMQEJSON), string(embedHydeJSON), string(q.VectorStatus),
		string(retrievedJSON), string(cleanJSON), string(warningsJSON), q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return apperr.New(apperr.Permanent, storeComponent, "insert", "insert query row", err)
	}
	return nil
}

// Save overwrites a Query's mutable fields in a single atomic write,
// so a stage never leaves the row half-updated.
func (s *Store) Save(ctx context.Context, q *Query) error {
	lock := s.lockFor(q.ID)
	lock.Lock()
	defer lock.Unlock()

	q.UpdatedAt = time.Now()
	expandedJSON, _ := json.Marshal(q.ExpandedQueries)
	entitiesJSON, _ := json.Marshal(q.Entities)
	embedOrigJSON, _ := json.Marshal(q.EmbeddingOriginal)
	embedMQEJSON, _ := json.Marshal(q.EmbeddingsMQE)
	embedHydeJSON, _ := json.Marshal(q.EmbeddingHyde)
	retrievedJSON, _ := json.Marshal(q.RetrievedContext)
	cleanJSON, _ := json.Marshal(q.CleanRetrievalContext)
	warningsJSON, _ := json.Marshal(q.Warnings)

	query := s.rebind(`UPDATE queries SET
		state = ?, expanded_queries_json = ?, hyde_answer = ?, intent = ?, entities_json = ?, parse_warning = ?,
		embedding_original_json = ?, embeddings_mqe_json = ?, embedding_hyde_json = ?, vector_status = ?,
		retrieved_context_json = ?, clean_retrieval_context_json = ?, warnings_json = ?, updated_at = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		q.State, string(expandedJSON), q.HydeAnswer, string(q.Intent), string(entitiesJSON), boolToInt(q.ParseWarning),
		string(embedOrigJSON), string(embedMQEJSON), string(embedHydeJSON), string(q.VectorStatus),
		string(retrievedJSON), string(cleanJSON), string(warningsJSON), q.UpdatedAt, q.ID)
	if err != nil {
		return apperr.New(apperr.Permanent, storeComponent, "Save", "update query row", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, storeComponent, "Save", "query not found: "+q.ID, nil)
	}
	return nil
}

const querySelectSQL = `SELECT id, state, original_query, expanded_queries_json, hyde_answer, intent, entities_json,
	parse_warning, embedding_original_json, embeddings_mqe_json, embedding_hyde_json, vector_status,
	retrieved_context_json, clean_retrieval_context_json, warnings_json, created_at, updated_at FROM queries`

// GetQuery returns a Query by id.
func (s *Store) GetQuery(ctx context.Context, id string) (*Query, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(querySelectSQL+" WHERE id = ?"), id)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, storeComponent, "GetQuery", "query not found: "+id, nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.Permanent, storeComponent, "GetQuery", "scan failed", err)
	}
	return q, nil
}

// CreateResult persists a new Result tied to a Query.
func (s *Store) CreateResult(ctx context.Context, queryID, responseText string) (*Result, error) {
	now := time.Now()
	r := &Result{ID: uuid.NewString(), QueryID: queryID, ResponseText: responseText, CreatedAt: now, UpdatedAt: now}
	query := s.rebind(`INSERT INTO results (id, query_id, response_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.QueryID, r.ResponseText, r.CreatedAt, r.UpdatedAt); err != nil {
		return nil, apperr.New(apperr.Permanent, storeComponent, "CreateResult", "insert result row", err)
	}
	return r, nil
}

// ListResults returns all Results for a Query, most recent first.
func (s *Store) ListResults(ctx context.Context, queryID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, query_id, response_text, created_at, updated_at FROM results WHERE query_id = ? ORDER BY created_at DESC`), queryID)
	if err != nil {
		return nil, apperr.New(apperr.Permanent, storeComponent, "ListResults", "query failed", err)
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.QueryID, &r.ResponseText, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperr.New(apperr.Permanent, storeComponent, "ListResults", "scan failed", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveTemplate returns the currently active PromptTemplate for a
// function tag, or apperr.NotFound if none is active.
func (s *Store) ActiveTemplate(ctx context.Context, functionTag string) (*PromptTemplate, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, function_tag, version, title, template_content, is_active, created_at, updated_at
		FROM prompt_templates WHERE function_tag = ? AND is_active = 1`), functionTag)
	var t PromptTemplate
	var isActive int
	err := row.Scan(&t.ID, &t.FunctionTag, &t.Version, &t.Title, &t.TemplateContent, &isActive, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, storeComponent, "ActiveTemplate", "no active template for "+functionTag, nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.Permanent, storeComponent, "ActiveTemplate", "scan failed", err)
	}
	t.IsActive = isActive != 0
	return &t, nil
}

// PutTemplate inserts a new template version and, if is_active is
// set, deactivates any previously active version for the same tag, so
// at most one version per function_tag is ever active.
func (s *Store) PutTemplate(ctx context.Context, t *PromptTemplate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.New(apperr.Permanent, storeComponent, "PutTemplate", "begin tx", err)
	}
	defer tx.Rollback()

	if t.IsActive {
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE prompt_templates SET is_active = 0 WHERE function_tag = ?`), t.FunctionTag); err != nil {
			return apperr.New(apperr.Permanent, storeComponent, "PutTemplate", "deactivate previous", err)
		}
	}
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.NewString()
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	query := s.rebind(`INSERT INTO prompt_templates (id, function_tag, version, title, template_content, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, t.ID, t.FunctionTag, t.Version, t.Title, t.TemplateContent, boolToInt(t.IsActive), t.CreatedAt, t.UpdatedAt); err != nil {
		return apperr.New(apperr.Permanent, storeComponent, "PutTemplate", "insert template row", err)
	}
	return tx.Commit()
}

func (s *Store) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type queryRowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row queryRowScanner) (*Query, error) {
	var q Query
	var expandedJSON, entitiesJSON, embedOrigJSON, embedMQEJSON, embedHydeJSON, retrievedJSON, cleanJSON, warningsJSON sql.NullString
	var intent string
	var parseWarning int
	if err := row.Scan(&q.ID, &q.State, &q.OriginalQuery, &expandedJSON, &q.HydeAnswer, &intent, &entitiesJSON,
		&parseWarning, &embedOrigJSON, &embedMQEJSON, &embedHydeJSON, &q.VectorStatus,
		&retrievedJSON, &cleanJSON, &warningsJSON, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Intent = Intent(intent)
	q.ParseWarning = parseWarning != 0
	unmarshalIfPresent(expandedJSON, &q.ExpandedQueries)
	unmarshalIfPresent(entitiesJSON, &q.Entities)
	unmarshalIfPresent(embedOrigJSON, &q.EmbeddingOriginal)
	unmarshalIfPresent(embedMQEJSON, &q.EmbeddingsMQE)
	unmarshalIfPresent(embedHydeJSON, &q.EmbeddingHyde)
	unmarshalIfPresent(retrievedJSON, &q.RetrievedContext)
	unmarshalIfPresent(cleanJSON, &q.CleanRetrievalContext)
	unmarshalIfPresent(warningsJSON, &q.Warnings)
	return &q, nil
}

func unmarshalIfPresent(ns sql.NullString, v any) {
	if !ns.Valid || ns.String == "" {
		return
	}
	_ = json.Unmarshal([]byte(ns.String), v)
}
