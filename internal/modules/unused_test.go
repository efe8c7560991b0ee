package modules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Test Plan for UnusedDeps:
// - Strict mode: a dependency is used only through imports
// - Default mode: xml class references count as use
// - Default mode: references to resources defined in the dependency count
// - Default mode: resolved references into the dependency's symbols count
// - Default mode: using a module re-exported through an api dependency counts
// - A dependency with no evidence is unused in both modes
// - Unknown module wraps ErrModuleNotFound

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// :a depends on
//   :b  used only from a layout
//   :c  imported
//   :d  re-exports :e (api), and :a imports from :e
//   :f  defines a string resource referenced from :a
//   :g  never used
//   :h  shares :a's package, so its class is used without an import
func buildProject(t *testing.T) *storage.Store {
	t.Helper()
	root := t.TempDir()

	write(t, root, "settings.gradle.kts", `include(":a", ":b", ":c", ":d", ":e", ":f", ":g", ":h")`+"\n")
	write(t, root, "a/build.gradle.kts", `dependencies {
    implementation(project(":b"))
    implementation(project(":c"))
    implementation(project(":d"))
    implementation(project(":f"))
    implementation(project(":g"))
    implementation(project(":h"))
}
`)
	write(t, root, "d/build.gradle.kts", `dependencies {
    api(project(":e"))
}
`)
	for _, m := range []string{"b", "c", "e", "f", "g", "h"} {
		write(t, root, m+"/build.gradle.kts", "plugins {}\n")
	}

	write(t, root, "a/src/main/kotlin/Screen.kt", `package com.a

import com.c.Util
import com.e.Api

class Screen {
    val helper: Helper? = null

    fun title() = getString(R.string.f_title)
}
`)
	write(t, root, "a/src/main/res/layout/screen.xml", `<?xml version="1.0" encoding="utf-8"?>
<com.b.Widget
    android:layout_width="match_parent" />
`)
	write(t, root, "b/src/main/kotlin/Widget.kt", "package com.b\n\nclass Widget\n")
	write(t, root, "c/src/main/kotlin/Util.kt", "package com.c\n\nclass Util\n")
	write(t, root, "e/src/main/kotlin/Api.kt", "package com.e\n\nclass Api\n")
	write(t, root, "f/src/main/res/values/strings.xml", `<resources>
    <string name="f_title">Title</string>
</resources>
`)
	write(t, root, "g/src/main/kotlin/Unused.kt", "package com.g\n\nclass Unused\n")
	write(t, root, "h/src/main/kotlin/Helper.kt", "package com.a\n\nclass Helper\n")

	store := storage.NewTestStore(t)
	cfg := indexer.DefaultConfig(root)
	cfg.UseGitignore = false
	b, err := indexer.New(cfg, store, nil, nil)
	require.NoError(t, err)
	_, err = b.Rebuild(context.Background())
	require.NoError(t, err)
	return store
}

func unusedReport(t *testing.T, store *storage.Store, module string, strict bool) *UnusedReport {
	t.Helper()
	ctx := context.Background()
	var report *UnusedReport
	err := store.View(ctx, func(r *storage.Reader) error {
		g, err := Load(ctx, r)
		if err != nil {
			return err
		}
		report, err = UnusedDeps(ctx, r, g, module, strict)
		return err
	})
	require.NoError(t, err)
	return report
}

func unusedNames(r *UnusedReport) []string {
	var out []string
	for _, d := range r.Unused() {
		out = append(out, d.Module)
	}
	return out
}

func usage(r *UnusedReport, module string) *DepUsage {
	for i := range r.Deps {
		if r.Deps[i].Module == module {
			return &r.Deps[i]
		}
	}
	return nil
}

func TestUnusedDeps(t *testing.T) {
	t.Parallel()

	store := buildProject(t)

	t.Run("strict counts only imports", func(t *testing.T) {
		t.Parallel()
		report := unusedReport(t, store, ":a", true)
		assert.Equal(t, ":a", report.Module)
		assert.Len(t, report.Deps, 6)
		assert.Equal(t, []string{":b", ":d", ":f", ":g", ":h"}, unusedNames(report))

		c := usage(report, ":c")
		require.NotNil(t, c)
		require.NotNil(t, c.Evidence)
		assert.Equal(t, ReasonImport, c.Evidence.Reason)
		assert.Equal(t, "a/src/main/kotlin/Screen.kt", c.Evidence.Path)
		assert.Equal(t, "com.c.Util", c.Evidence.Detail)
	})

	t.Run("default accepts xml resources and re-exports", func(t *testing.T) {
		t.Parallel()
		report := unusedReport(t, store, "a", false)
		assert.Equal(t, []string{":g"}, unusedNames(report))

		assert.Equal(t, ReasonXML, usage(report, ":b").Evidence.Reason)
		assert.Equal(t, "a/src/main/res/layout/screen.xml", usage(report, ":b").Evidence.Path)
		assert.Equal(t, ReasonResource, usage(report, ":f").Evidence.Reason)
		assert.Equal(t, "string/f_title", usage(report, ":f").Evidence.Detail)
		assert.Equal(t, ReasonTransitive, usage(report, ":d").Evidence.Reason)

		h := usage(report, ":h")
		require.NotNil(t, h)
		require.NotNil(t, h.Evidence)
		assert.Equal(t, ReasonReference, h.Evidence.Reason)
		assert.Equal(t, "a/src/main/kotlin/Screen.kt", h.Evidence.Path)
		assert.Equal(t, 7, h.Evidence.Line)
		assert.Equal(t, "Helper", h.Evidence.Detail)
	})

	t.Run("unknown module", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		err := store.View(ctx, func(r *storage.Reader) error {
			g, err := Load(ctx, r)
			if err != nil {
				return err
			}
			_, err = UnusedDeps(ctx, r, g, ":nope", true)
			return err
		})
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})
}
