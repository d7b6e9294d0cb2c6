package ragcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dialect: postgres\n"), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "postgres", cfg.Database.Dialect)
	require.Equal(t, 60, cfg.Retrieval.FusionK)
	require.Equal(t, 0.5, cfg.Retrieval.CoverageRatio)
}

func TestValidateRejectsUnknownDialect(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Dialect: "oracle"}}
	cfg.SetDefaults()
	cfg.Database.Dialect = "oracle"
	require.Error(t, cfg.Validate())
}
