// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package corpus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ragcore/ragcore/pkg/apperr"

	// SQL drivers, blank-imported for their database/sql registration.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const component = "corpus"

const createWorksSchemaSQL = `
CREATE TABLE IF NOT EXISTS works (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	authors TEXT,
	year INTEGER,
	files_json TEXT NOT NULL,
	bibliographic_json TEXT
)`

const createChunksSchemaSQL = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	work_id TEXT NOT NULL,
	parent_id TEXT,
	level TEXT NOT NULL,
	content TEXT NOT NULL,
	heading_breadcrumbs TEXT,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	vector_status TEXT NOT NULL
)`

const createChunksWorkIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chunks_work ON chunks(work_id, parent_id)`

// Gateway is a read-only view over works and chunks, plus the
// sanitized-file enrichment read used by consolidation. It is the one
// system of record the rest of the pipeline consults for text and
// position — dense/lexical indexes are secondary copies keyed by
// chunk id.
type Gateway struct {
	db      *sql.DB
	dialect string
}

// New opens a Gateway against an already-connected *sql.DB and
// ensures its schema exists. dialect is one of postgres, mysql,
// sqlite (sqlite3 is normalized to sqlite).
func New(db *sql.DB, dialect string) (*Gateway, error) {
	if db == nil {
		return nil, apperr.New(apperr.Permanent, component, "New", "nil database handle", nil)
	}
	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, apperr.New(apperr.Permanent, component, "New", fmt.Sprintf("unsupported dialect %q", dialect), nil)
	}

	g := &Gateway{db: db, dialect: dialect}
	if err := g.initSchema(); err != nil {
		return nil, apperr.New(apperr.Permanent, component, "New", "schema init failed", err)
	}
	return g, nil
}

func (g *Gateway) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		createWorksSchemaSQL,
		createChunksSchemaSQL,
		createChunksWorkIndexSQL,
	}
	for _, stmt := range statements {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (g *Gateway) Close() error { return g.db.Close() }

// GetWork returns a single Work by id.
func (g *Gateway) GetWork(ctx context.Context, workID string) (*Work, error) {
	row := g.db.QueryRowContext(ctx, g.rebind("SELECT id, title, authors, year, files_json, bibliographic_json FROM works WHERE id = ?"), workID)
	w, err := scanWork(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, component, "GetWork", "work not found: "+workID, nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "GetWork", "scan failed", err)
	}
	return w, nil
}

// GetChunk returns a single Chunk by id.
func (g *Gateway) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	row := g.db.QueryRowContext(ctx, g.rebind(chunkSelectSQL+" WHERE id = ?"), chunkID)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, component, "GetChunk", "chunk not found: "+chunkID, nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "GetChunk", "scan failed", err)
	}
	return c, nil
}

const chunkSelectSQL = `SELECT id, work_id, COALESCE(parent_id, ''), level, content, COALESCE(heading_breadcrumbs, ''), start_line, end_line, vector_status FROM chunks`

// GetChunks returns the subset of ids that exist, keyed by id. Missing
// ids are silently omitted rather than treated as an error.
func (g *Gateway) GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	out := make(map[string]*Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := g.rebind(chunkSelectSQL + " WHERE id IN (" + strings.Join(placeholders, ",") + ")")
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.New(apperr.Permanent, component, "GetChunks", "query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanChunkRows(rows)
		if err != nil {
			return nil, apperr.New(apperr.Permanent, component, "GetChunks", "scan failed", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// GetParentChunks returns, for each child id whose Chunk has a
// non-null parent_id, that parent Chunk.
func (g *Gateway) GetParentChunks(ctx context.Context, childIDs []string) (map[string]*Chunk, error) {
	children, err := g.GetChunks(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	parentIDSet := make(map[string]struct{})
	for _, c := range children {
		if c.ParentID != "" {
			parentIDSet[c.ParentID] = struct{}{}
		}
	}
	parentIDs := make([]string, 0, len(parentIDSet))
	for id := range parentIDSet {
		parentIDs = append(parentIDs, id)
	}
	parents, err := g.GetChunks(ctx, parentIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Chunk, len(children))
	for childID, c := range children {
		if c.ParentID == "" {
			continue
		}
		if p, ok := parents[c.ParentID]; ok {
			out[childID] = p
		}
	}
	return out, nil
}

// ReadSanitizedSlice returns the inclusive 1-indexed line range
// [startLine, endLine] from work's sanitized file, failing with
// apperr.StaleSource if the file is missing or its hash no longer
// matches the stored hash.
func (g *Gateway) ReadSanitizedSlice(ctx context.Context, workID string, startLine, endLine int) (string, error) {
	w, err := g.GetWork(ctx, workID)
	if err != nil {
		return "", err
	}
	ref, ok := w.SanitizedFile()
	if !ok {
		return "", apperr.New(apperr.StaleSource, component, "ReadSanitizedSlice", "no sanitized file recorded for work "+workID, nil)
	}

	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return "", apperr.New(apperr.StaleSource, component, "ReadSanitizedSlice", "sanitized file missing: "+ref.Path, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}) // strip UTF-8 BOM

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != ref.Hash {
		return "", apperr.New(apperr.StaleSource, component, "ReadSanitizedSlice", "sanitized file hash mismatch for work "+workID, nil)
	}

	return sliceLines(string(data), startLine, endLine), nil
}

// sliceLines extracts the 1-indexed inclusive line range [start,end].
// end beyond EOF truncates to EOF; start beyond EOF returns "".
func sliceLines(content string, start, end int) string {
	if start < 1 {
		start = 1
	}
	lines := strings.Split(content, "\n")
	if start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// rebind rewrites `?` placeholders for the configured dialect, the
// same per-dialect query-builder approach the SQL session store uses.
func (g *Gateway) rebind(query string) string {
	if g.dialect != "postgres" {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWork(row rowScanner) (*Work, error) {
	var w Work
	var filesJSON, bibJSON sql.NullString
	if err := row.Scan(&w.ID, &w.Title, &w.Authors, &w.Year, &filesJSON, &bibJSON); err != nil {
		return nil, err
	}
	w.Files = map[string]FileRef{}
	if filesJSON.Valid && filesJSON.String != "" {
		if err := json.Unmarshal([]byte(filesJSON.String), &w.Files); err != nil {
			return nil, fmt.Errorf("decode files_json: %w", err)
		}
	}
	if bibJSON.Valid && bibJSON.String != "" {
		if err := json.Unmarshal([]byte(bibJSON.String), &w.Bibliographic); err != nil {
			return nil, fmt.Errorf("decode bibliographic_json: %w", err)
		}
	}
	return &w, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var level string
	if err := row.Scan(&c.ID, &c.WorkID, &c.ParentID, &level, &c.Content, &c.HeadingBreadcrumbs, &c.StartLine, &c.EndLine, &c.VectorStatus); err != nil {
		return nil, err
	}
	c.Level = Level(level)
	return &c, nil
}

func scanChunkRows(rows *sql.Rows) (*Chunk, error) { return scanChunk(rows) }
