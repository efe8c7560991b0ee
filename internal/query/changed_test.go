package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/git"
	"github.com/mvp-joe/ast-index/internal/model"
)

// Test Plan for Changed:
// - Added, removed and modified symbols are reported per changed file
// - Deleted files report every baseline symbol as removed
// - Untracked files report every symbol as added
// - Unsupported paths and files with no symbol changes are omitted
// - The base defaults to HEAD when no ancestor branch exists
// - Without a git collaborator Changed fails with ErrNoVersionControl

const fooNow = `package p

class Foo {
    fun a() = 1
    fun b() = 2
}
`

const fooBase = `package p

class Foo {
    fun a() = 0
    fun c() = 3
}
`

func names(changes []SymbolChange) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Name)
	}
	return out
}

func TestChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ops := git.NewMockGitOps()
	f := newFixture(t, map[string]string{
		"src/Foo.kt":   fooNow,
		"src/Same.kt":  "class Same\n",
		"src/New.kt":   "class Fresh\n",
		"README.md":    "# readme\n",
		"src/Docs.txt": "notes\n",
	}, ops)
	ops.WorktreeRoot = f.root
	ops.Changes = []git.FileChange{
		{Status: git.StatusModified, Path: "README.md"},
		{Status: git.StatusDeleted, Path: "src/Gone.kt"},
		{Status: git.StatusModified, Path: "src/Foo.kt"},
		{Status: git.StatusUntracked, Path: "src/New.kt"},
		{Status: git.StatusModified, Path: "src/Same.kt"},
	}
	ops.SetFile("HEAD", "src/Foo.kt", fooBase)
	ops.SetFile("HEAD", "src/Gone.kt", "class Gone\n")
	ops.SetFile("HEAD", "src/Same.kt", "class Same\n")

	report, err := f.engine.Changed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "HEAD", report.Base)
	require.Len(t, report.Files, 3)

	gone := report.Files[0]
	assert.Equal(t, "src/Gone.kt", gone.Path)
	assert.Equal(t, git.StatusDeleted, gone.Status)
	assert.Equal(t, []string{"Gone"}, names(gone.Removed))
	assert.Empty(t, gone.Added)

	foo := report.Files[1]
	assert.Equal(t, "src/Foo.kt", foo.Path)
	assert.Equal(t, []string{"b"}, names(foo.Added))
	assert.Equal(t, []string{"c"}, names(foo.Removed))
	assert.Equal(t, []string{"Foo", "a"}, names(foo.Modified))
	assert.Equal(t, model.KindFunction, foo.Added[0].Kind)
	assert.Equal(t, "p.Foo.b", foo.Added[0].QualifiedName)

	fresh := report.Files[2]
	assert.Equal(t, "src/New.kt", fresh.Path)
	assert.Equal(t, []string{"Fresh"}, names(fresh.Added))
}

func TestChanged_DirtyWorkingTree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ops := git.NewMockGitOps()
	f := newFixture(t, map[string]string{"src/Foo.kt": fooBase}, ops)
	ops.WorktreeRoot = f.root
	ops.AncestorBranch = "main"
	ops.CurrentBranch = "feature/x"
	ops.Changes = []git.FileChange{{Status: git.StatusModified, Path: "src/Foo.kt"}}
	ops.SetFile("main", "src/Foo.kt", fooBase)

	// Edited after indexing: the index is stale, so the file is re-extracted.
	writeFile(t, f.root, "src/Foo.kt", fooNow)

	report, err := f.engine.Changed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "main", report.Base)
	require.Len(t, report.Files, 1)
	assert.Equal(t, []string{"b"}, names(report.Files[0].Added))
	assert.Equal(t, []string{"c"}, names(report.Files[0].Removed))
}

func TestChanged_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, map[string]string{"A.kt": "class A\n"}, nil)
	_, err := f.engine.Changed(ctx, "HEAD")
	assert.ErrorIs(t, err, ErrNoVersionControl)

	ops := git.NewMockGitOps()
	ops.ChangesError = errors.New("bad revision")
	f = newFixture(t, map[string]string{"A.kt": "class A\n"}, ops)
	_, err = f.engine.Changed(ctx, "nope")
	assert.Error(t, err)
}
