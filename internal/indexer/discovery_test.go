package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/model"
)

// Test Plan for FileDiscovery:
// - Supported files are found with language and slash-separated paths
// - Built-in excluded directories are never walked
// - .gitignore rules apply when enabled and are ignored when disabled
// - Ignore globs match nested and root-level paths
// - Files above the size limit are skipped
// - Accepts mirrors the walk rules for single paths

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func discoveredPaths(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestDiscover_SupportedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app/src/Main.kt"), "class Main\n")
	writeFile(t, filepath.Join(root, "ios/View.swift"), "class View {}\n")
	writeFile(t, filepath.Join(root, "app/build.gradle.kts"), "plugins {}\n")
	writeFile(t, filepath.Join(root, "README.md"), "# readme\n")

	fd, err := NewFileDiscovery(root, nil, 0, false)
	require.NoError(t, err)

	files, err := fd.Discover()
	require.NoError(t, err)

	assert.Equal(t, []string{"app/build.gradle.kts", "app/src/Main.kt", "ios/View.swift"}, discoveredPaths(files))
	assert.Equal(t, model.LangGradle, files[0].Language)
	assert.Equal(t, model.LangKotlin, files[1].Language)
	assert.Equal(t, model.LangSwift, files[2].Language)
	assert.Equal(t, int64(len("class Main\n")), files[1].Size)
	assert.False(t, files[1].ModTime.IsZero())
}

func TestDiscover_ExcludedDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src/Keep.kt"), "class Keep\n")
	writeFile(t, filepath.Join(root, "app/build/generated/Gen.kt"), "class Gen\n")
	writeFile(t, filepath.Join(root, "node_modules/pkg/x.py"), "x = 1\n")
	writeFile(t, filepath.Join(root, "ios/Pods/Lib/Lib.swift"), "class Lib {}\n")
	writeFile(t, filepath.Join(root, ".ast-index/cache.kt"), "class Cache\n")

	fd, err := NewFileDiscovery(root, nil, 0, false)
	require.NoError(t, err)

	files, err := fd.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Keep.kt"}, discoveredPaths(files))
}

func TestDiscover_Gitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "generated/\n*.gen.kt\n")
	writeFile(t, filepath.Join(root, "src/Keep.kt"), "class Keep\n")
	writeFile(t, filepath.Join(root, "src/Model.gen.kt"), "class Model\n")
	writeFile(t, filepath.Join(root, "generated/Out.kt"), "class Out\n")

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		fd, err := NewFileDiscovery(root, nil, 0, true)
		require.NoError(t, err)
		files, err := fd.Discover()
		require.NoError(t, err)
		assert.Equal(t, []string{"src/Keep.kt"}, discoveredPaths(files))
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		fd, err := NewFileDiscovery(root, nil, 0, false)
		require.NoError(t, err)
		files, err := fd.Discover()
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})
}

func TestDiscover_IgnorePatterns(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Root.gen.kt"), "class Root\n")
	writeFile(t, filepath.Join(root, "src/Deep.gen.kt"), "class Deep\n")
	writeFile(t, filepath.Join(root, "src/Keep.kt"), "class Keep\n")
	writeFile(t, filepath.Join(root, "vendor/lib/Lib.java"), "class Lib {}\n")

	fd, err := NewFileDiscovery(root, []string{"**/*.gen.kt", "vendor"}, 0, false)
	require.NoError(t, err)

	files, err := fd.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Keep.kt"}, discoveredPaths(files))
}

func TestDiscover_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewFileDiscovery(t.TempDir(), []string{"[unclosed"}, 0, false)
	assert.Error(t, err)
}

func TestDiscover_MaxFileSize(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Small.kt"), "class Small\n")
	writeFile(t, filepath.Join(root, "Big.kt"), "class Big\n"+strings.Repeat("// padding\n", 200))

	fd, err := NewFileDiscovery(root, nil, 512, false)
	require.NoError(t, err)

	files, err := fd.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"Small.kt"}, discoveredPaths(files))
}

func TestAccepts(t *testing.T) {
	t.Parallel()

	fd, err := NewFileDiscovery(t.TempDir(), []string{"**/*.gen.kt"}, 0, false)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"app/src/Main.kt", true},
		{"settings.gradle", true},
		{"Package.swift", true},
		{"app/build/Gen.kt", false},
		{"src/Model.gen.kt", false},
		{"docs/readme.md", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fd.Accepts(tt.path), tt.path)
	}
}
