package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/resolve"
)

// Test Plan for Config:
// - Default() is valid and carries the documented defaults
// - Load uses defaults when no config file exists
// - Load reads .ast-index/config.yml and merges it with defaults
// - AST_INDEX_* variables override the file
// - A .env file supplies variables but never overrides the real environment
// - Malformed YAML and invalid values fail Load
// - Validate reports each problem with its sentinel
// - ToIndexerConfig and Resolver reflect the loaded values
//
// Tests that touch the environment use t.Setenv and therefore do not run in
// parallel.

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, Dir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0644))
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.Index.UseGitignore)
	assert.Equal(t, int64(1<<20), cfg.Index.MaxFileSize)
	assert.Equal(t, resolve.DefaultOrder, cfg.Resolve.TieBreak)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 50, cfg.Search.Limit)
	assert.Equal(t, 30, cfg.Cache.MaxAgeDays)
	assert.Empty(t, cfg.Index.Path)
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Resolve.TieBreak, cfg.Resolve.TieBreak)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeConfig(t, root, `
index:
  ignore:
    - "**/generated/**"
  workers: 3
resolve:
  tie_break: [same-file, same-module, lexicographic]
watch:
  debounce: 2s
`)

	cfg, err := LoadConfigFromDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"**/generated/**"}, cfg.Index.Ignore)
	assert.Equal(t, 3, cfg.Index.Workers)
	assert.Equal(t, []string{"same-file", "same-module", "lexicographic"}, cfg.Resolve.TieBreak)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.True(t, cfg.Index.UseGitignore, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.Search.Limit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "index:\n  path: /from/file.db\n")
	t.Setenv("AST_INDEX_INDEX_PATH", "/from/env.db")
	t.Setenv("AST_INDEX_SEARCH_LIMIT", "7")

	cfg, err := LoadConfigFromDir(root)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Index.Path)
	assert.Equal(t, 7, cfg.Search.Limit)
}

func TestLoad_DotEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"),
		[]byte("AST_INDEX_PROJECT_ROOT=/from/dotenv\nAST_INDEX_CACHE_ROOT=/cache/dotenv\n"), 0644))
	t.Setenv("AST_INDEX_CACHE_ROOT", "/cache/real")
	// Unset after the test; godotenv sets it process-wide.
	t.Setenv("AST_INDEX_PROJECT_ROOT", "")
	os.Unsetenv("AST_INDEX_PROJECT_ROOT")

	cfg, err := LoadConfigFromDir(root)
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.ProjectRoot)
	assert.Equal(t, "/cache/real", cfg.Cache.Root, "real environment wins over .env")
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeConfig(t, root, "index: [unclosed\n")
		_, err := LoadConfigFromDir(root)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeConfig(t, root, "resolve:\n  tie_break: [nearest]\n")
		_, err := LoadConfigFromDir(root)
		assert.ErrorIs(t, err, ErrInvalidTieBreak)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"negative workers", func(c *Config) { c.Index.Workers = -1 }, ErrInvalidWorkers},
		{"bad glob", func(c *Config) { c.Index.Ignore = []string{"[oops"} }, ErrInvalidPattern},
		{"empty tie-break", func(c *Config) { c.Resolve.TieBreak = nil }, ErrInvalidTieBreak},
		{"repeated rule", func(c *Config) { c.Resolve.TieBreak = []string{"same-file", "same-file"} }, ErrInvalidTieBreak},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = 0 }, ErrInvalidDebounce},
		{"zero limit", func(c *Config) { c.Search.Limit = 0 }, ErrInvalidLimit},
		{"negative age", func(c *Config) { c.Cache.MaxAgeDays = -1 }, ErrInvalidCacheSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Index.Workers = -1
		cfg.Search.Limit = 0
		err := Validate(cfg)
		assert.ErrorIs(t, err, ErrInvalidWorkers)
		assert.ErrorIs(t, err, ErrInvalidLimit)
		assert.Contains(t, err.Error(), "validation failed")
	})
}

func TestConversions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Index.Ignore = []string{"legacy/**"}
	cfg.Index.Workers = 2
	cfg.Index.UseGitignore = false

	ic := cfg.ToIndexerConfig("/work/app")
	assert.Equal(t, "/work/app", ic.RootDir)
	assert.Equal(t, []string{"legacy/**"}, ic.IgnorePatterns)
	assert.Equal(t, 2, ic.Workers)
	assert.False(t, ic.UseGitignore)

	r, err := cfg.Resolver()
	require.NoError(t, err)
	assert.NotNil(t, r)

	cfg.Resolve.TieBreak = []string{"nearest"}
	_, err = cfg.Resolver()
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path, created, err := WriteDefault(root)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, filepath.Join(root, Dir, FileName), path)

	cfg, err := LoadConfigFromDir(root)
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Resolve.TieBreak, cfg.Resolve.TieBreak)
	assert.Equal(t, def.Index.MaxFileSize, cfg.Index.MaxFileSize)
	assert.Equal(t, def.Watch.Debounce, cfg.Watch.Debounce)
	assert.Equal(t, def.Cache.MaxAgeDays, cfg.Cache.MaxAgeDays)
	assert.True(t, cfg.Index.UseGitignore)

	require.NoError(t, os.WriteFile(path, []byte("search:\n  limit: 5\n"), 0644))
	_, created, err = WriteDefault(root)
	require.NoError(t, err)
	assert.False(t, created, "existing file is kept")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "search:\n  limit: 5\n", string(data))
}
