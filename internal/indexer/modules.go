package indexer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvp-joe/ast-index/internal/extract"
	"github.com/mvp-joe/ast-index/internal/model"
)

// collectModules re-reads every manifest and merges the declared modules
// into one graph.
//
// Settings scripts name modules and may relocate them with projectDir;
// build scripts only know their directory. A build script whose directory
// matches a settings module adopts that module's name, and the build
// script becomes the module's manifest.
func (b *Builder) collectModules(files []SourceFile) ([]model.Module, []model.ModuleDependency, []*extract.Failure) {
	var (
		settings []model.Module
		builds   []model.Module
		deps     []model.ModuleDependency
		failures []*extract.Failure
	)

	for _, f := range files {
		if !f.Language.IsManifest() {
			continue
		}
		res, err := b.extractFile(f)
		if err != nil {
			failures = append(failures, asFailure(f.Path, err))
			continue
		}
		if isGradleSettings(f.Path) {
			settings = append(settings, res.Modules...)
		} else {
			builds = append(builds, res.Modules...)
		}
		deps = append(deps, res.ModuleDeps...)
	}

	byName := make(map[string]*model.Module)
	var order []string
	add := func(m model.Module) {
		if existing, ok := byName[m.Name]; ok {
			if existing.RootPath == "" && m.RootPath != "" {
				existing.RootPath = m.RootPath
			}
			if existing.Kind == "" {
				existing.Kind = m.Kind
			}
			if existing.ManifestPath == "" || isGradleSettings(existing.ManifestPath) && !isGradleSettings(m.ManifestPath) {
				existing.ManifestPath = m.ManifestPath
			}
			return
		}
		copied := m
		byName[m.Name] = &copied
		order = append(order, m.Name)
	}

	settingsByRoot := make(map[string]string)
	for _, m := range settings {
		add(m)
		if _, ok := settingsByRoot[m.RootPath]; !ok {
			settingsByRoot[m.RootPath] = m.Name
		}
	}

	alias := make(map[string]string)
	for _, m := range builds {
		if m.Kind == model.ModuleGradle {
			if name, ok := settingsByRoot[m.RootPath]; ok && name != m.Name {
				alias[m.Name] = name
				m.Name = name
			}
		}
		add(m)
	}

	modules := make([]model.Module, 0, len(order))
	for _, name := range order {
		modules = append(modules, *byName[name])
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })

	return modules, dedupeDeps(deps, alias), failures
}

func dedupeDeps(deps []model.ModuleDependency, alias map[string]string) []model.ModuleDependency {
	type key struct {
		from, to string
		kind     model.DependencyKind
	}
	seen := make(map[key]bool)
	var out []model.ModuleDependency
	for _, d := range deps {
		if name, ok := alias[d.From]; ok {
			d.From = name
		}
		if name, ok := alias[d.To]; ok {
			d.To = name
		}
		k := key{d.From, d.To, d.Kind}
		if d.From == d.To || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}

func isGradleSettings(p string) bool {
	return strings.HasPrefix(filepath.Base(p), "settings.gradle")
}

