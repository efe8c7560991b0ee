package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/storage"
)

// Test Plan for audit queries:
// - xml-usages finds layout references by simple and qualified name
// - resource-usages accepts @type/name, R.type.name and type/name spellings
// - todo filters markers by text
// - annotations accept the name with or without "@"
// - unused-symbols skips declarations referenced from code or xml
// - stats reports table counts and run metadata

const mainKt = `package com.example

import com.example.ui.CustomView

// TODO: wire analytics
class Main {
    fun title() = getString(R.string.app_name)

    @Deprecated
    fun legacy() = 1
}
`

func auditFixture(t *testing.T) *fixture {
	return newFixture(t, map[string]string{
		"app/src/main/java/com/example/Main.kt":          mainKt,
		"app/src/main/java/com/example/ui/CustomView.kt": "package com.example.ui\n\nclass CustomView\n",
		"app/src/main/res/layout/main.xml": `<?xml version="1.0" encoding="utf-8"?>
<com.example.ui.CustomView
    android:layout_width="match_parent" />
`,
		"app/src/main/res/values/strings.xml": `<resources>
    <string name="app_name">Example</string>
</resources>
`,
	}, nil)
}

func symbolNames(rows []storage.SymbolRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestXMLUsages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := auditFixture(t)

	for _, name := range []string{"CustomView", "com.example.ui.CustomView"} {
		refs, err := f.engine.XMLUsages(ctx, name, "")
		require.NoError(t, err, name)
		require.Len(t, refs, 1, name)
		assert.Equal(t, "app/src/main/res/layout/main.xml", refs[0].Path)
		assert.Equal(t, 2, refs[0].Line)
	}

	refs, err := f.engine.XMLUsages(ctx, "OtherView", "")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestResourceUsages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := auditFixture(t)

	for _, spelling := range []string{"@string/app_name", "R.string.app_name", "string/app_name", "app_name"} {
		rows, err := f.engine.ResourceUsages(ctx, spelling, "")
		require.NoError(t, err, spelling)
		require.Len(t, rows, 2, spelling)
		assert.Equal(t, "app/src/main/java/com/example/Main.kt", rows[0].Path)
		assert.False(t, rows[0].IsDefinition)
		assert.Equal(t, "app/src/main/res/values/strings.xml", rows[1].Path)
		assert.True(t, rows[1].IsDefinition)
	}
}

func TestParseResource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want storage.ResourceQuery
	}{
		{"@string/title", storage.ResourceQuery{Type: "string", Name: "title"}},
		{"@+id/button", storage.ResourceQuery{Type: "id", Name: "button"}},
		{"R.layout.main", storage.ResourceQuery{Type: "layout", Name: "main"}},
		{"drawable/icon", storage.ResourceQuery{Type: "drawable", Name: "icon"}},
		{"title", storage.ResourceQuery{Name: "title"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseResource(tt.in), tt.in)
	}
}

func TestTodoAndAnnotated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := auditFixture(t)

	markers, err := f.engine.Todo(ctx, "analytics", "", 0)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "TODO", markers[0].Kind)
	assert.Equal(t, "wire analytics", markers[0].Text)
	assert.Equal(t, 5, markers[0].Line)

	markers, err = f.engine.Todo(ctx, "FIXME", "", 0)
	require.NoError(t, err)
	assert.Empty(t, markers)

	for _, ann := range []string{"Deprecated", "@Deprecated"} {
		syms, err := f.engine.Annotated(ctx, ann, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"legacy"}, symbolNames(syms), ann)
	}

	_, err = f.engine.Annotated(ctx, "@", "")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestUnusedSymbols(t *testing.T) {
	t.Parallel()
	f := auditFixture(t)

	syms, err := f.engine.UnusedSymbols(context.Background(), "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Main", "title", "legacy"}, symbolNames(syms))
}

func TestStats(t *testing.T) {
	t.Parallel()
	f := auditFixture(t)

	st, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.Files)
	assert.Equal(t, 4, st.Symbols)
	assert.Equal(t, 1, st.Markers)
	assert.Equal(t, 1, st.XMLRefs)
	assert.NotEmpty(t, st.LastRebuild)
	assert.NotEmpty(t, st.Generation)
	assert.NotEmpty(t, st.ProjectRoot)
	assert.Equal(t, f.store.Path(), st.IndexPath)
}
