package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolID(t *testing.T) {
	t.Parallel()

	a := SymbolID("app/Foo.kt", "com.example.Foo", KindClass, 0)
	b := SymbolID("app/Foo.kt", "com.example.Foo", KindClass, 0)
	require.Equal(t, a, b, "identity must be deterministic")

	assert.NotEqual(t, a, SymbolID("app/Bar.kt", "com.example.Foo", KindClass, 0))
	assert.NotEqual(t, a, SymbolID("app/Foo.kt", "com.example.Foo", KindInterface, 0))
	assert.NotEqual(t, a, SymbolID("app/Foo.kt", "com.example.Foo", KindClass, 1))
	assert.Len(t, a, 36)
}

func TestTargets(t *testing.T) {
	t.Parallel()

	r := ResolvedTarget("id-1", "Foo")
	assert.Equal(t, Resolved, r.State)
	assert.Equal(t, "id-1", r.SymbolID)
	assert.Equal(t, "resolved", r.State.String())

	u := UnresolvedTarget("Foo", "com.example")
	assert.Equal(t, Unresolved, u.State)
	assert.Empty(t, u.SymbolID)
	assert.Equal(t, "com.example", u.ScopeHint)
}

func TestImportParts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		imp    Import
		pkg    string
		simple string
	}{
		{Import{Path: "com.example.feature.LoginView"}, "com.example.feature", "LoginView"},
		{Import{Path: "com.example.feature", IsWildcard: true}, "com.example.feature", "feature"},
		{Import{Path: "UIKit"}, "", "UIKit"},
		{Import{Path: "Foo::Bar"}, "Foo", "Bar"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.pkg, tt.imp.Package(), tt.imp.Path)
		assert.Equal(t, tt.simple, tt.imp.Simple(), tt.imp.Path)
	}
}

func TestXMLRefSimpleName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MainActivity", XMLRef{ClassName: ".MainActivity"}.SimpleName())
	assert.Equal(t, "ProfileView", XMLRef{ClassName: "com.b.ui.ProfileView"}.SimpleName())
	assert.Equal(t, "Cell", XMLRef{ClassName: "Cell"}.SimpleName())
}

func TestKinds(t *testing.T) {
	t.Parallel()

	assert.True(t, KindClass.IsType())
	assert.False(t, KindFunction.IsType())
	assert.True(t, EdgeExtends.IsInheritance())
	assert.False(t, EdgeCall.IsInheritance())
	assert.Equal(t, []SymbolKind{KindFunction}, EdgeCall.CandidateKinds())
	assert.True(t, LangGradle.IsManifest())
	assert.False(t, LangKotlin.IsManifest())
}

func TestSymbolNames(t *testing.T) {
	t.Parallel()

	r := &FileResult{Symbols: []Symbol{{Name: "A"}, {Name: "b"}, {Name: "A"}}}
	assert.Equal(t, []string{"A", "b"}, r.SymbolNames())
}
