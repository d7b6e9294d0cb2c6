package corpus

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/apperr"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw, err := New(db, "sqlite")
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO works (id, title, authors, year, files_json) VALUES (?, ?, ?, ?, ?)`,
		"w1", "Attention Is Enough", "Doe", 2020, `{"sanitized":{"path":"","hash":""}}`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO chunks (id, work_id, parent_id, level, content, heading_breadcrumbs, start_line, end_line, vector_status) VALUES
		(?, ?, NULL, ?, ?, ?, ?, ?, ?)`, "h1", "w1", "H1", "Introduction", "", 1, 1, "vec")
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO chunks (id, work_id, parent_id, level, content, heading_breadcrumbs, start_line, end_line, vector_status) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?)`, "c1", "w1", "h1", "chunk", "body text", "Introduction", 2, 10, "vec")
	require.NoError(t, err)

	return gw
}

func TestGetWorkNotFound(t *testing.T) {
	gw := newTestGateway(t)
	_, err := gw.GetWork(context.Background(), "missing")
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestGetChunksOmitsMissing(t *testing.T) {
	gw := newTestGateway(t)
	out, err := gw.GetChunks(context.Background(), []string{"c1", "does-not-exist"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "body text", out["c1"].Content)
}

func TestGetParentChunks(t *testing.T) {
	gw := newTestGateway(t)
	out, err := gw.GetParentChunks(context.Background(), []string{"c1"})
	require.NoError(t, err)
	require.Equal(t, "h1", out["c1"].ID)
}

func TestReadSanitizedSliceStaleWhenMissing(t *testing.T) {
	gw := newTestGateway(t)
	_, err := gw.ReadSanitizedSlice(context.Background(), "w1", 1, 1)
	require.Equal(t, apperr.StaleSource, apperr.KindOf(err))
}

func TestSliceLinesBoundaries(t *testing.T) {
	require.Equal(t, "a", sliceLines("a", 1, 1))
	require.Equal(t, "a\nb", sliceLines("a\nb\nc", 1, 2))
	require.Equal(t, "", sliceLines("a\nb", 5, 10))
	require.Equal(t, "b", sliceLines("a\nb", 2, 10))
}

func TestReadSanitizedSliceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "work.md")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644))

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	gw, err := New(db, "sqlite")
	require.NoError(t, err)

	sum := sha256Hex(t, path)
	filesJSON := `{"sanitized":{"path":"` + path + `","hash":"` + sum + `"}}`
	_, err = db.Exec(`INSERT INTO works (id, title, authors, year, files_json) VALUES (?, ?, ?, ?, ?)`,
		"w2", "T", "A", 2021, filesJSON)
	require.NoError(t, err)

	got, err := gw.ReadSanitizedSlice(context.Background(), "w2", 2, 2)
	require.NoError(t, err)
	require.Equal(t, "line2", got)
}

func sha256Hex(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
