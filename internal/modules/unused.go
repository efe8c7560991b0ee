package modules

import (
	"context"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Evidence reasons.
const (
	ReasonImport     = "import"
	ReasonXML        = "xml"
	ReasonResource   = "resource"
	ReasonReference  = "reference"
	ReasonTransitive = "transitive"
)

// Evidence is the first observed use of a dependency.
type Evidence struct {
	Reason string `json:"reason"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Detail string `json:"detail"`
}

// DepUsage is the verdict for one declared dependency.
type DepUsage struct {
	Dependency
	Used     bool      `json:"used"`
	Evidence *Evidence `json:"evidence,omitempty"`
}

// UnusedReport lists the declared dependencies of a module with a verdict.
type UnusedReport struct {
	Module string     `json:"module"`
	Strict bool       `json:"strict"`
	Deps   []DepUsage `json:"deps"`
}

// Unused returns the dependencies judged unused.
func (r *UnusedReport) Unused() []DepUsage {
	var out []DepUsage
	for _, d := range r.Deps {
		if !d.Used {
			out = append(out, d)
		}
	}
	return out
}

// UnusedDeps checks every direct dependency of a module for use.
//
// A dependency's API is the set of non-private symbols declared in its
// files. Strict mode only accepts imports from the module's files: a
// qualified name, a wildcard over a package, or a module import naming the
// dependency. Default mode also accepts xml class references, references to
// resources defined in the dependency, resolved references from the
// module's code into the dependency's symbols, and use of any module the
// dependency re-exports through an api dependency.
func UnusedDeps(ctx context.Context, r *storage.Reader, g *Graph, name string, strict bool) (*UnusedReport, error) {
	m, err := g.Lookup(name)
	if err != nil {
		return nil, err
	}
	deps, err := g.Deps(m.Name)
	if err != nil {
		return nil, err
	}

	a := &analyzer{ctx: ctx, r: r, g: g, module: m, strict: strict, memo: make(map[string]*Evidence)}
	if err := a.loadUser(); err != nil {
		return nil, err
	}

	report := &UnusedReport{Module: m.Name, Strict: strict}
	for _, d := range deps {
		ev, err := a.evidence(d.Module, map[string]bool{m.Name: true})
		if err != nil {
			return nil, err
		}
		report.Deps = append(report.Deps, DepUsage{Dependency: d, Used: ev != nil, Evidence: ev})
	}
	return report, nil
}

// analyzer holds what the using module references, loaded once.
type analyzer struct {
	ctx    context.Context
	r      *storage.Reader
	g      *Graph
	module storage.ModuleRow
	strict bool

	imports   []storage.ImportRow
	xmlRefs   []storage.XMLRefRow
	resources []storage.ResourceRow
	ownRes    map[string]bool

	memo map[string]*Evidence
}

func (a *analyzer) loadUser() error {
	var err error
	if a.imports, err = a.r.ImportsInModule(a.ctx, a.module.ID); err != nil {
		return err
	}
	if a.strict {
		return nil
	}
	if a.xmlRefs, err = a.r.XMLRefs(a.ctx, "", a.module.ID); err != nil {
		return err
	}
	refs := false
	if a.resources, err = a.r.Resources(a.ctx, storage.ResourceQuery{ModuleID: a.module.ID, Definition: &refs}); err != nil {
		return err
	}
	defs := true
	own, err := a.r.Resources(a.ctx, storage.ResourceQuery{ModuleID: a.module.ID, Definition: &defs})
	if err != nil {
		return err
	}
	a.ownRes = make(map[string]bool, len(own))
	for _, res := range own {
		a.ownRes[res.Key()] = true
	}
	return nil
}

// evidence returns the first use of target by the analyzed module, or nil.
// visiting guards the re-export walk against cycles.
func (a *analyzer) evidence(target string, visiting map[string]bool) (*Evidence, error) {
	if ev, ok := a.memo[target]; ok {
		return ev, nil
	}
	visiting[target] = true

	dep, err := a.g.Lookup(target)
	if err != nil {
		return nil, err
	}
	api, err := newAPI(a.ctx, a.r, dep)
	if err != nil {
		return nil, err
	}

	ev := a.importEvidence(api)
	if ev == nil && !a.strict {
		ev = a.xmlEvidence(api)
		if ev == nil {
			if ev, err = a.resourceEvidence(dep); err != nil {
				return nil, err
			}
		}
		if ev == nil {
			if ev, err = a.referenceEvidence(dep); err != nil {
				return nil, err
			}
		}
		if ev == nil {
			if ev, err = a.reexportEvidence(dep, visiting); err != nil {
				return nil, err
			}
		}
	}

	a.memo[target] = ev
	return ev, nil
}

func (a *analyzer) importEvidence(api *apiSurface) *Evidence {
	for _, imp := range a.imports {
		if api.matchesImport(imp.Import) {
			return &Evidence{Reason: ReasonImport, Path: imp.Path, Line: imp.Line, Detail: imp.Import.Path}
		}
	}
	return nil
}

func (a *analyzer) xmlEvidence(api *apiSurface) *Evidence {
	for _, x := range a.xmlRefs {
		var matched bool
		if name := x.ClassName; !strings.HasPrefix(name, ".") && strings.Contains(name, ".") {
			matched = api.qualified[name]
		} else {
			matched = api.types[x.SimpleName()]
		}
		if matched {
			return &Evidence{Reason: ReasonXML, Path: x.Path, Line: x.Line, Detail: x.ClassName}
		}
	}
	return nil
}

func (a *analyzer) resourceEvidence(dep storage.ModuleRow) (*Evidence, error) {
	if len(a.resources) == 0 {
		return nil, nil
	}
	defs := true
	defined, err := a.r.Resources(a.ctx, storage.ResourceQuery{ModuleID: dep.ID, Definition: &defs})
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(defined))
	for _, d := range defined {
		keys[d.Key()] = true
	}
	for _, ref := range a.resources {
		if keys[ref.Key()] && !a.ownRes[ref.Key()] {
			return &Evidence{Reason: ReasonResource, Path: ref.Path, Line: ref.Line, Detail: ref.Key()}, nil
		}
	}
	return nil, nil
}

func (a *analyzer) referenceEvidence(dep storage.ModuleRow) (*Evidence, error) {
	edges, err := a.r.ResolvedEdgesBetweenModules(a.ctx, a.module.ID, dep.ID, 1)
	if err != nil || len(edges) == 0 {
		return nil, err
	}
	e := edges[0]
	return &Evidence{Reason: ReasonReference, Path: e.Path, Line: e.Line, Detail: e.TargetName}, nil
}

func (a *analyzer) reexportEvidence(dep storage.ModuleRow, visiting map[string]bool) (*Evidence, error) {
	next, err := a.g.Deps(dep.Name)
	if err != nil {
		return nil, err
	}
	for _, d := range next {
		if !d.HasKind(model.DepAPI) || visiting[d.Module] {
			continue
		}
		ev, err := a.evidence(d.Module, visiting)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			return &Evidence{
				Reason: ReasonTransitive,
				Path:   ev.Path,
				Line:   ev.Line,
				Detail: d.Module + " via " + ev.Reason + " " + ev.Detail,
			}, nil
		}
	}
	return nil, nil
}

// apiSurface is the exported API of one module.
type apiSurface struct {
	module    string
	qualified map[string]bool // dotted qualified names
	scopes    map[string]bool // packages and enclosing types
	types     map[string]bool // simple names of type declarations
}

func newAPI(ctx context.Context, r *storage.Reader, m storage.ModuleRow) (*apiSurface, error) {
	syms, err := r.SymbolsInModule(ctx, m.ID, true)
	if err != nil {
		return nil, err
	}
	api := &apiSurface{
		module:    m.Name,
		qualified: make(map[string]bool, len(syms)),
		scopes:    make(map[string]bool),
		types:     make(map[string]bool),
	}
	for _, s := range syms {
		api.qualified[dotted(s.QualifiedName)] = true
		if s.Scope != "" {
			api.scopes[dotted(s.Scope)] = true
		}
		if s.Kind.IsType() {
			api.types[s.Name] = true
		}
	}
	return api, nil
}

func (api *apiSurface) matchesImport(imp model.Import) bool {
	path := dotted(imp.Path)
	if imp.IsWildcard {
		return api.scopes[path] || api.qualified[path]
	}
	if api.qualified[path] {
		return true
	}
	// Static imports of members: "com.x.Foo.bar".
	if i := strings.LastIndex(path, "."); i > 0 && api.qualified[path[:i]] {
		return true
	}
	// Module imports: Swift "import Core", ObjC <Core/Core.h>.
	head := imp.Path
	if i := strings.Index(head, "/"); i > 0 {
		head = head[:i]
	}
	return head == shortName(api.module)
}

func dotted(name string) string {
	return strings.ReplaceAll(name, "::", ".")
}

// shortName is the last segment of a module name: ":core:data" -> "data".
func shortName(module string) string {
	if i := strings.LastIndex(module, ":"); i >= 0 {
		return module[i+1:]
	}
	return module
}
