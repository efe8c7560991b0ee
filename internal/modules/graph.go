// Package modules answers dependency questions over the build-system
// module graph: direct and transitive dependencies, dependents, and
// declared dependencies that nothing uses.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// ErrModuleNotFound is returned when a name matches no module.
var ErrModuleNotFound = errors.New("module not found")

// Direction selects which way a traversal follows dependency edges.
type Direction int

const (
	// Forward follows "depends on" edges.
	Forward Direction = iota
	// Reverse follows "is depended on by" edges.
	Reverse
)

// Dependency is a module reached from another one.
type Dependency struct {
	Module string                 `json:"module"`
	Kinds  []model.DependencyKind `json:"kinds"`
	Depth  int                    `json:"depth"`
	Via    string                 `json:"via,omitempty"` // predecessor on the shortest path
}

// Graph is an immutable in-memory view of the module graph of one
// snapshot. Parallel declarations of the same pair with different scopes
// collapse into one edge carrying every kind.
type Graph struct {
	g       graph.Graph[string, storage.ModuleRow]
	byName  map[string]storage.ModuleRow
	adj     map[string]map[string]graph.Edge[string]
	pred    map[string]map[string]graph.Edge[string]
	ordered []string
}

// Load reads modules and dependencies from a snapshot.
func Load(ctx context.Context, r *storage.Reader) (*Graph, error) {
	mods, err := r.Modules(ctx)
	if err != nil {
		return nil, err
	}
	deps, err := r.ModuleDeps(ctx)
	if err != nil {
		return nil, err
	}
	return New(mods, deps)
}

// New builds the graph from module and dependency rows.
func New(mods []storage.ModuleRow, deps []storage.ModuleDepRow) (*Graph, error) {
	g := graph.New(func(m storage.ModuleRow) string { return m.Name }, graph.Directed())
	byName := make(map[string]storage.ModuleRow, len(mods))
	ordered := make([]string, 0, len(mods))

	for _, m := range mods {
		if err := g.AddVertex(m); err != nil {
			return nil, fmt.Errorf("failed to add module %s: %w", m.Name, err)
		}
		byName[m.Name] = m
		ordered = append(ordered, m.Name)
	}
	sort.Strings(ordered)

	for _, d := range deps {
		err := g.AddEdge(d.FromName, d.ToName, graph.EdgeData([]model.DependencyKind{d.Kind}))
		if errors.Is(err, graph.ErrEdgeAlreadyExists) {
			existing, err := g.Edge(d.FromName, d.ToName)
			if err != nil {
				return nil, err
			}
			kinds := append(edgeKinds(existing.Properties), d.Kind)
			if err := g.UpdateEdge(d.FromName, d.ToName, graph.EdgeData(kinds)); err != nil {
				return nil, fmt.Errorf("failed to update dependency %s -> %s: %w", d.FromName, d.ToName, err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to add dependency %s -> %s: %w", d.FromName, d.ToName, err)
		}
	}

	adj, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	pred, err := g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	return &Graph{g: g, byName: byName, adj: adj, pred: pred, ordered: ordered}, nil
}

func edgeKinds(p graph.EdgeProperties) []model.DependencyKind {
	kinds, _ := p.Data.([]model.DependencyKind)
	out := make([]model.DependencyKind, len(kinds))
	copy(out, kinds)
	return out
}

// Modules returns every module ordered by name.
func (g *Graph) Modules() []storage.ModuleRow {
	out := make([]storage.ModuleRow, 0, len(g.ordered))
	for _, name := range g.ordered {
		out = append(out, g.byName[name])
	}
	return out
}

// Lookup finds a module by name. Gradle names match with or without the
// leading colon, and a directory path such as "core/data" matches
// ":core:data".
func (g *Graph) Lookup(name string) (storage.ModuleRow, error) {
	name = strings.TrimSpace(name)
	candidates := []string{name}
	if strings.HasPrefix(name, ":") {
		candidates = append(candidates, strings.TrimPrefix(name, ":"))
	} else {
		candidates = append(candidates, ":"+name, ":"+strings.ReplaceAll(strings.Trim(name, "/"), "/", ":"))
	}
	for _, c := range candidates {
		if m, ok := g.byName[c]; ok {
			return m, nil
		}
	}
	// Last resort: a module rooted at the given directory.
	for _, n := range g.ordered {
		if m := g.byName[n]; m.RootPath != "" && m.RootPath == strings.Trim(name, "/") {
			return m, nil
		}
	}
	return storage.ModuleRow{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

// Deps returns the direct dependencies of a module.
func (g *Graph) Deps(name string) ([]Dependency, error) {
	return g.Transitive(name, Forward, 1)
}

// Dependents returns the modules that directly depend on a module.
func (g *Graph) Dependents(name string) ([]Dependency, error) {
	return g.Transitive(name, Reverse, 1)
}

// Transitive walks the graph breadth-first up to maxDepth hops; maxDepth
// <= 0 means unbounded. Each module is reported once, at its shortest
// distance. Cycles terminate because visited modules are never expanded
// again. The start module is never reported.
func (g *Graph) Transitive(name string, dir Direction, maxDepth int) ([]Dependency, error) {
	start, err := g.Lookup(name)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 || maxDepth > len(g.ordered) {
		maxDepth = len(g.ordered)
	}

	edges := g.adj
	if dir == Reverse {
		edges = g.pred
	}

	visited := map[string]bool{start.Name: true}
	frontier := []string{start.Name}
	var out []Dependency

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, from := range frontier {
			for _, to := range sortedKeys(edges[from]) {
				if visited[to] {
					continue
				}
				visited[to] = true
				next = append(next, to)
				out = append(out, Dependency{
					Module: to,
					Kinds:  edgeKinds(edges[from][to].Properties),
					Depth:  depth,
					Via:    viaName(depth, from),
				})
			}
		}
		frontier = next
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Module < out[j].Module
	})
	return out, nil
}

// HasKind reports whether the dependency carries the kind.
func (d Dependency) HasKind(kind model.DependencyKind) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func viaName(depth int, from string) string {
	if depth == 1 {
		return ""
	}
	return from
}

func sortedKeys(m map[string]graph.Edge[string]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
