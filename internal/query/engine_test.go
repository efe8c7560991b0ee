package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/git"
	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/modules"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Test Plan for Engine:
// - implementations returns direct and transitive subtypes
// - hierarchy returns the ancestor chain and direct descendants
// - hierarchy and implementations terminate on cyclic inheritance
// - callers returns the call site with its enclosing function, whether the
//   callee is declared in the project or not
// - usages of an unknown name are empty; a blank name is ErrEmptyQuery
// - module filters narrow usages; an unknown module is ErrModuleNotFound

type fixture struct {
	root   string
	store  *storage.Store
	b      *indexer.Builder
	engine *Engine
}

func newFixture(t *testing.T, files map[string]string, ops git.Operations) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}

	store := storage.NewTestStore(t)
	cfg := indexer.DefaultConfig(root)
	cfg.UseGitignore = false
	cfg.Workers = 2
	b, err := indexer.New(cfg, store, nil, nil)
	require.NoError(t, err)
	_, err = b.Rebuild(context.Background())
	require.NoError(t, err)

	engine, err := New(store, root, ops)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &fixture{root: root, store: store, b: b, engine: engine}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func nodeNames(nodes []TypeNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestImplementationsAndHierarchy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, map[string]string{
		"src/Foo.kt": "package shapes\n\nopen class Foo\n",
		"src/Bar.kt": "package shapes\n\nclass Bar : Foo()\n",
	}, nil)

	impls, err := f.engine.Implementations(ctx, "Foo")
	require.NoError(t, err)
	require.Len(t, impls, 1)
	assert.Equal(t, "Bar", impls[0].Name)
	assert.Equal(t, "src/Bar.kt", impls[0].Path)
	assert.Equal(t, model.EdgeExtends, impls[0].Relation)
	assert.Equal(t, 1, impls[0].Depth)

	h, err := f.engine.Hierarchy(ctx, "Bar", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar"}, nodeNames(h.Types))
	assert.Equal(t, []string{"Foo"}, nodeNames(h.Ancestors))
	assert.True(t, h.Ancestors[0].Resolved)
	assert.Empty(t, h.Descendants)

	h, err = f.engine.Hierarchy(ctx, "shapes.Foo", 0)
	require.NoError(t, err)
	assert.Empty(t, h.Ancestors)
	assert.Equal(t, []string{"Bar"}, nodeNames(h.Descendants))
}

func TestHierarchy_Cycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// D : A : B : C : D
	f := newFixture(t, map[string]string{
		"A.kt": "open class A : B()\n",
		"B.kt": "open class B : C()\n",
		"C.kt": "open class C : D()\n",
		"D.kt": "open class D : A()\n",
	}, nil)

	h, err := f.engine.Hierarchy(ctx, "D", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, nodeNames(h.Ancestors))
	assert.Equal(t, []int{1, 2, 3}, []int{h.Ancestors[0].Depth, h.Ancestors[1].Depth, h.Ancestors[2].Depth})
	assert.Equal(t, []string{"C"}, nodeNames(h.Descendants))

	bounded, err := f.engine.Hierarchy(ctx, "D", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, nodeNames(bounded.Ancestors))

	impls, err := f.engine.Implementations(ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, nodeNames(impls))
}

func TestHierarchy_ExternalSupertype(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{
		"ui/Main.kt": "class MainActivity : AppCompatActivity()\n",
	}, nil)

	h, err := f.engine.Hierarchy(context.Background(), "MainActivity", 0)
	require.NoError(t, err)
	require.Len(t, h.Ancestors, 1)
	assert.Equal(t, "AppCompatActivity", h.Ancestors[0].Name)
	assert.False(t, h.Ancestors[0].Resolved)
	assert.Empty(t, h.Ancestors[0].Path)
}

const screenKt = `package ui

class Screen {
    fun handleTap() {
        onClick()
    }
}
`

func TestCallers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("dangling callee", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, map[string]string{"ui/Screen.kt": screenKt}, nil)

		callers, err := f.engine.Callers(ctx, "onClick", UsageOptions{})
		require.NoError(t, err)
		require.Len(t, callers, 1)
		assert.Equal(t, "ui/Screen.kt", callers[0].Path)
		assert.Equal(t, 5, callers[0].Line)
		assert.Equal(t, "handleTap", callers[0].Symbol)
		assert.Equal(t, model.EdgeCall, callers[0].Kind)
		assert.False(t, callers[0].Resolved)
	})

	t.Run("declared callee", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, map[string]string{
			"ui/Screen.kt":   screenKt,
			"ui/Listener.kt": "package ui\n\nclass Listener {\n    fun onClick() {\n    }\n}\n",
		}, nil)

		callers, err := f.engine.Callers(ctx, "onClick", UsageOptions{})
		require.NoError(t, err)
		require.Len(t, callers, 1)
		assert.Equal(t, "handleTap", callers[0].Symbol)
		assert.True(t, callers[0].Resolved)
	})
}

func TestUsages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, map[string]string{
		"settings.gradle.kts":   `include(":app", ":core")` + "\n",
		"app/build.gradle.kts":  "plugins {}\n",
		"core/build.gradle.kts": "plugins {}\n",
		"core/src/Repo.kt":      "package core\n\nclass Repo\n",
		"core/src/Cache.kt":     "package core\n\nclass Cache(val repo: Repo)\n",
		"app/src/Main.kt":       "package app\n\nimport core.Repo\n\nclass Main {\n    val repo: Repo? = null\n}\n",
	}, nil)

	all, err := f.engine.Usages(ctx, "Repo", UsageOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "app/src/Main.kt", all[0].Path)
	assert.Equal(t, "core/src/Cache.kt", all[1].Path)

	app, err := f.engine.Usages(ctx, "Repo", UsageOptions{Module: "app"})
	require.NoError(t, err)
	require.Len(t, app, 1)
	assert.Equal(t, "app/src/Main.kt", app[0].Path)
	assert.Equal(t, 6, app[0].Line)

	none, err := f.engine.Usages(ctx, "Nothing", UsageOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.engine.Usages(ctx, "  ", UsageOptions{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = f.engine.Usages(ctx, "Repo", UsageOptions{Module: ":missing"})
	assert.ErrorIs(t, err, modules.ErrModuleNotFound)
}
