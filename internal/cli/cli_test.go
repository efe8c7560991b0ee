package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/cache"
	"github.com/mvp-joe/ast-index/internal/config"
	"github.com/mvp-joe/ast-index/internal/modules"
)

// Test Plan for the command line:
// - rebuild --json reports counts; text output prints a summary
// - query commands print JSON arrays with --json and text lines otherwise
// - empty results print "No results" and an empty JSON array
// - querying before the first rebuild fails with ErrNoIndex
// - update picks up added files without re-extracting unchanged ones
// - init writes the default configuration once, then rebuilds
// - unknown modules surface modules.ErrModuleNotFound
// - clean --current removes an explicit index; clean prunes orphaned cache entries
// - changed reports symbol differences against a git revision

var projectFiles = map[string]string{
	"settings.gradle.kts": `include(":app", ":core", ":legacy")` + "\n",
	"app/build.gradle.kts": `dependencies {
    implementation(project(":core"))
    implementation(project(":legacy"))
}
`,
	"core/build.gradle.kts":   "plugins {}\n",
	"legacy/build.gradle.kts": "plugins {}\n",
	"core/src/main/kotlin/Repo.kt": `package com.core

open class Repo {
    fun load() {}
}
`,
	"core/src/main/kotlin/CachedRepo.kt": "package com.core\n\nclass CachedRepo : Repo()\n",
	"legacy/src/main/kotlin/Old.kt":      "package com.legacy\n\nclass Old\n",
	"app/src/main/kotlin/Main.kt": `package com.app

import com.core.Repo

// TODO: wire analytics
class Main {
    fun start() {
        Repo().load()
    }

    @Deprecated
    fun legacy() = getString(R.string.app_name)
}
`,
	"app/src/main/res/layout/main.xml": `<?xml version="1.0" encoding="utf-8"?>
<com.app.ui.BannerView
    android:layout_width="match_parent" />
`,
	"app/src/main/res/values/strings.xml": `<resources>
    <string name="app_name">Example</string>
</resources>
`,
}

type testProject struct {
	root  string
	index string
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func newTestProject(t *testing.T, files map[string]string) *testProject {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	return &testProject{root: root, index: filepath.Join(t.TempDir(), "index.db")}
}

// run executes one command against the project and returns its stdout.
func (p *testProject) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--root", p.root, "--index", p.index}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (p *testProject) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := p.run(t, args...)
	require.NoError(t, err, "ast-index %v", args)
	return out
}

func (p *testProject) runJSON(t *testing.T, v interface{}, args ...string) {
	t.Helper()
	out := p.mustRun(t, append([]string{"--json"}, args...)...)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func rebuilt(t *testing.T) *testProject {
	t.Helper()
	p := newTestProject(t, projectFiles)
	p.mustRun(t, "rebuild", "--json")
	return p
}

func TestRebuildAndUpdate(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, projectFiles)

	var res indexResult
	p.runJSON(t, &res, "rebuild")
	assert.Equal(t, "rebuild", res.Mode)
	assert.Equal(t, p.index, res.IndexPath)
	assert.Equal(t, res.Discovered, res.Committed)
	assert.GreaterOrEqual(t, res.Committed, 6)
	assert.Equal(t, 3, res.Modules)
	assert.Empty(t, res.Failures)

	writeFile(t, p.root, "core/src/main/kotlin/Extra.kt", "package com.core\n\nclass Extra\n")
	var upd indexResult
	p.runJSON(t, &upd, "update")
	assert.Equal(t, "update", upd.Mode)
	assert.Equal(t, 1, upd.Added)
	assert.Equal(t, 0, upd.Modified)
	assert.Equal(t, res.Committed, upd.Unchanged)

	out := p.mustRun(t, "update")
	assert.Contains(t, out, "✓ Update complete")
	assert.Contains(t, out, "Added: 0  Modified: 0  Deleted: 0")
}

func TestQueryBeforeRebuild(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, projectFiles)

	_, err := p.run(t, "search", "Repo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.Contains(t, err.Error(), "ast-index rebuild")
	assert.NoFileExists(t, p.index)
}

func TestSearchCommand(t *testing.T) {
	t.Parallel()
	p := rebuilt(t)

	var hits []struct {
		Type    string `json:"type"`
		Name    string `json:"name"`
		Quality string `json:"quality"`
	}
	p.runJSON(t, &hits, "search", "Repo", "--type", "symbols")
	require.NotEmpty(t, hits)
	assert.Equal(t, "Repo", hits[0].Name)
	assert.Equal(t, "exact", hits[0].Quality)
	for _, h := range hits {
		assert.Equal(t, "symbols", h.Type)
	}

	out := p.mustRun(t, "search", "CachedRepo", "--exact")
	assert.Contains(t, out, "com.core.CachedRepo")
	assert.Contains(t, out, "core/src/main/kotlin/CachedRepo.kt:3")

	assert.Equal(t, "No results\n", p.mustRun(t, "search", "Zzyzx", "--exact"))

	var none []interface{}
	p.runJSON(t, &none, "search", "Zzyzx", "--exact")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUsageCommands(t *testing.T) {
	t.Parallel()
	p := rebuilt(t)

	out := p.mustRun(t, "callers", "load")
	assert.Contains(t, out, "app/src/main/kotlin/Main.kt:8")
	assert.Contains(t, out, "in start")
	assert.Contains(t, out, "Repo().load()")

	var usages []struct {
		Path string `json:"path"`
	}
	p.runJSON(t, &usages, "usages", "Repo", "--module", "app")
	require.NotEmpty(t, usages)
	for _, u := range usages {
		assert.Equal(t, "app/src/main/kotlin/Main.kt", u.Path)
	}

	out = p.mustRun(t, "implementations", "Repo")
	assert.Contains(t, out, "com.core.CachedRepo")

	out = p.mustRun(t, "hierarchy", "CachedRepo")
	assert.Contains(t, out, "Supertypes:")
	assert.Contains(t, out, "com.core.Repo")
	assert.Contains(t, out, "Subtypes:\n  (none)")
}

func TestModuleCommands(t *testing.T) {
	t.Parallel()
	p := rebuilt(t)

	var deps []modules.Dependency
	p.runJSON(t, &deps, "deps", ":app")
	require.Len(t, deps, 2)
	assert.Equal(t, ":core", deps[0].Module)
	assert.Equal(t, ":legacy", deps[1].Module)
	assert.Equal(t, 1, deps[0].Depth)

	out := p.mustRun(t, "dependents", "core")
	assert.Equal(t, ":app [implementation]\n", out)

	var report modules.UnusedReport
	p.runJSON(t, &report, "unused-deps", ":app", "--strict")
	verdicts := map[string]bool{}
	for _, d := range report.Deps {
		verdicts[d.Module] = d.Used
	}
	assert.Equal(t, map[string]bool{":core": true, ":legacy": false}, verdicts)

	out = p.mustRun(t, "unused-deps", ":app")
	assert.Contains(t, out, "✗ :legacy [implementation] unused")
	assert.Contains(t, out, "1 of 2 dependencies of :app unused")

	var mods []moduleOut
	p.runJSON(t, &mods, "modules")
	names := make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{":app", ":core", ":legacy"}, names)

	_, err := p.run(t, "deps", ":missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, modules.ErrModuleNotFound)
}

func TestAuditCommands(t *testing.T) {
	t.Parallel()
	p := rebuilt(t)

	var markers []markerOut
	p.runJSON(t, &markers, "todo")
	require.Len(t, markers, 1)
	assert.Equal(t, "TODO", markers[0].Kind)
	assert.Equal(t, "wire analytics", markers[0].Text)

	var refs []xmlRefOut
	p.runJSON(t, &refs, "xml-usages", "BannerView")
	require.Len(t, refs, 1)
	assert.Equal(t, "app/src/main/res/layout/main.xml", refs[0].Path)

	var res []resourceOut
	p.runJSON(t, &res, "resource-usages", "@string/app_name")
	require.Len(t, res, 2)

	out := p.mustRun(t, "annotations", "Deprecated")
	assert.Contains(t, out, "com.app.Main.legacy")
	assert.Contains(t, out, "@Deprecated")

	var st struct {
		Files   int `json:"files"`
		Modules int `json:"modules"`
	}
	p.runJSON(t, &st, "stats")
	assert.GreaterOrEqual(t, st.Files, 6)
	assert.Equal(t, 3, st.Modules)
}

func TestInitCommand(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, projectFiles)

	out := p.mustRun(t, "init")
	cfgPath := filepath.Join(p.root, config.Dir, config.FileName)
	assert.Contains(t, out, "✓ Created "+cfgPath)
	assert.Contains(t, out, "✓ Rebuild complete")
	assert.FileExists(t, cfgPath)
	assert.FileExists(t, p.index)

	out = p.mustRun(t, "init")
	assert.Contains(t, out, "Using existing "+cfgPath)
}

func TestCleanCurrent(t *testing.T) {
	t.Parallel()
	p := rebuilt(t)
	require.FileExists(t, p.index)

	var res cleanResult
	p.runJSON(t, &res, "clean", "--current", "--dry-run")
	require.Len(t, res.Removed, 1)
	assert.True(t, res.DryRun)
	assert.FileExists(t, p.index)

	out := p.mustRun(t, "clean", "--current")
	assert.Contains(t, out, "✓ Removed 1 index(es)")
	assert.NoFileExists(t, p.index)

	assert.Contains(t, p.mustRun(t, "clean", "--current"), "No index found for this project")
}

func TestCleanPrunesOrphans(t *testing.T) {
	t.Parallel()
	cacheRoot := t.TempDir()
	p := newTestProject(t, map[string]string{
		".ast-index/config.yml": "cache:\n  root: " + cacheRoot + "\n",
	})

	orphan := filepath.Join(cacheRoot, "orphan")
	require.NoError(t, os.MkdirAll(orphan, 0755))
	meta := &cache.Metadata{
		Key:         "orphan",
		ProjectRoot: filepath.Join(t.TempDir(), "deleted"),
		CreatedAt:   time.Now().UTC(),
		LastOpened:  time.Now().UTC(),
	}
	require.NoError(t, meta.Save(orphan))

	live := filepath.Join(cacheRoot, "live")
	require.NoError(t, os.MkdirAll(live, 0755))
	liveMeta := *meta
	liveMeta.Key, liveMeta.ProjectRoot = "live", p.root
	require.NoError(t, liveMeta.Save(live))

	var res cleanResult
	p.runJSON(t, &res, "clean")
	require.Len(t, res.Removed, 1)
	assert.Equal(t, orphan, res.Removed[0].Dir)
	assert.Equal(t, cache.ReasonMissingProject, res.Removed[0].Reason)
	assert.Equal(t, 1, res.Kept)
	assert.NoDirExists(t, orphan)
	assert.DirExists(t, live)
}

func TestChangedCommand(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	p := newTestProject(t, map[string]string{
		"src/Foo.kt": "package p\n\nclass Foo {\n    fun a() = 0\n    fun c() = 3\n}\n",
	})
	gitCmd := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-c", "user.name=test", "-c", "user.email=test@example.com"}, args...)...)
		cmd.Dir = p.root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	gitCmd("init", "-q")
	gitCmd("add", ".")
	gitCmd("commit", "-q", "-m", "base")

	writeFile(t, p.root, "src/Foo.kt", "package p\n\nclass Foo {\n    fun a() = 1\n    fun b() = 2\n}\n")
	p.mustRun(t, "rebuild", "--json")

	var report struct {
		Base  string `json:"base"`
		Files []struct {
			Path    string `json:"path"`
			Added   []struct{ Name string } `json:"added"`
			Removed []struct{ Name string } `json:"removed"`
		} `json:"files"`
	}
	p.runJSON(t, &report, "changed", "--base", "HEAD")
	require.Len(t, report.Files, 1)
	assert.Equal(t, "src/Foo.kt", report.Files[0].Path)
	require.Len(t, report.Files[0].Added, 1)
	assert.Equal(t, "b", report.Files[0].Added[0].Name)
	require.Len(t, report.Files[0].Removed, 1)
	assert.Equal(t, "c", report.Files[0].Removed[0].Name)
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.in))
	}
}
