package query

import (
	"context"
	"sort"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Usage is one reference to a symbol: where it occurs and what encloses it.
type Usage struct {
	Path       string         `json:"path"`
	Line       int            `json:"line"`
	Kind       model.EdgeKind `json:"kind"`
	Symbol     string         `json:"symbol,omitempty"` // enclosing symbol, "" at file scope
	SymbolID   string         `json:"symbol_id,omitempty"`
	Context    string         `json:"context"`
	Resolved   bool           `json:"resolved"`
	Candidates int            `json:"candidates,omitempty"`
}

// UsageOptions narrows Usages and Callers.
type UsageOptions struct {
	Module string // source file's module
	Limit  int
}

// Usages returns every edge into the symbols named name, resolved or
// dangling by that name, sorted by path then line.
func (e *Engine) Usages(ctx context.Context, name string, opts UsageOptions) ([]Usage, error) {
	return e.usages(ctx, name, opts, nil)
}

// Callers returns the call sites of functions named name.
func (e *Engine) Callers(ctx context.Context, name string, opts UsageOptions) ([]Usage, error) {
	return e.usages(ctx, name, opts, []model.EdgeKind{model.EdgeCall}, model.KindFunction)
}

func (e *Engine) usages(ctx context.Context, name string, opts UsageOptions, edgeKinds []model.EdgeKind, symKinds ...model.SymbolKind) ([]Usage, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}

	var out []Usage
	err = e.view(ctx, func(r *storage.Reader) error {
		mod, err := moduleID(ctx, r, opts.Module)
		if err != nil {
			return err
		}
		syms, simple, err := lookupSymbols(ctx, r, name, symKinds...)
		if err != nil {
			return err
		}
		edges, err := r.EdgesInto(ctx, symbolIDs(syms), simple, storage.EdgeFilter{Kinds: edgeKinds, ModuleID: mod})
		if err != nil {
			return err
		}
		out = toUsages(edges)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// toUsages converts edges to usages, collapsing repeats of one reference
// kind from one enclosing symbol on one line.
func toUsages(edges []storage.EdgeRow) []Usage {
	type key struct {
		path   string
		line   int
		kind   model.EdgeKind
		source string
	}
	seen := make(map[key]bool, len(edges))
	out := make([]Usage, 0, len(edges))
	for _, e := range edges {
		k := key{e.Path, e.Line, e.Kind, e.SourceSymbolID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Usage{
			Path:       e.Path,
			Line:       e.Line,
			Kind:       e.Kind,
			Symbol:     e.SourceName,
			SymbolID:   e.SourceSymbolID,
			Context:    e.Context,
			Resolved:   e.TargetSymbolID != "",
			Candidates: e.Candidates,
		})
	}
	sortLocations(out, func(u Usage) (string, int) { return u.Path, u.Line })
	return out
}

var inheritanceKinds = []model.EdgeKind{model.EdgeExtends, model.EdgeImplements}

// TypeNode is a type in an inheritance traversal. Unresolved nodes are
// supertypes declared outside the index and carry only a name.
type TypeNode struct {
	Name          string           `json:"name"`
	QualifiedName string           `json:"qualified_name,omitempty"`
	Kind          model.SymbolKind `json:"kind,omitempty"`
	Path          string           `json:"path,omitempty"`
	Line          int              `json:"line,omitempty"`
	Relation      model.EdgeKind   `json:"relation,omitempty"` // edge kind linking it to Via
	Depth         int              `json:"depth"`
	Via           string           `json:"via,omitempty"`
	Resolved      bool             `json:"resolved"`

	id string
}

func symbolNode(s storage.SymbolRow) TypeNode {
	return TypeNode{
		Name:          s.Name,
		QualifiedName: s.QualifiedName,
		Kind:          s.Kind,
		Path:          s.Path,
		Line:          s.StartLine,
		Resolved:      true,
		id:            s.ID,
	}
}

// Implementations returns every direct and transitive subtype of the types
// named name. Each subtype is reported once, at its shortest depth.
func (e *Engine) Implementations(ctx context.Context, name string) ([]TypeNode, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	var out []TypeNode
	err = e.view(ctx, func(r *storage.Reader) error {
		roots, simple, err := lookupSymbols(ctx, r, name, model.TypeKinds...)
		if err != nil {
			return err
		}
		out, err = descendants(ctx, r, roots, simple, 0)
		return err
	})
	return out, err
}

// descendants walks subtype edges breadth-first. maxDepth <= 0 is unbounded;
// the visited set makes cyclic declarations terminate.
func descendants(ctx context.Context, r *storage.Reader, roots []storage.SymbolRow, name string, maxDepth int) ([]TypeNode, error) {
	visited := make(map[string]bool)
	for _, s := range roots {
		visited[s.ID] = true
	}

	type frontierNode struct {
		ids  []string
		name string
	}
	frontier := []frontierNode{{ids: symbolIDs(roots), name: name}}
	var out []TypeNode

	for depth := 1; len(frontier) > 0 && (maxDepth <= 0 || depth <= maxDepth); depth++ {
		var next []frontierNode
		for _, parent := range frontier {
			edges, err := r.EdgesInto(ctx, parent.ids, parent.name, storage.EdgeFilter{Kinds: inheritanceKinds})
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if edge.SourceSymbolID == "" || visited[edge.SourceSymbolID] {
					continue
				}
				visited[edge.SourceSymbolID] = true
				sub, err := r.SymbolByID(ctx, edge.SourceSymbolID)
				if err != nil {
					return nil, err
				}
				if sub == nil {
					continue
				}
				node := symbolNode(*sub)
				node.Depth = depth
				node.Relation = edge.Kind
				node.Via = parent.name
				out = append(out, node)
				next = append(next, frontierNode{ids: []string{sub.ID}, name: sub.Name})
			}
		}
		frontier = next
	}

	sortNodes(out)
	return out, nil
}

// Hierarchy is the inheritance neighbourhood of a type.
type Hierarchy struct {
	Types       []TypeNode `json:"types"`
	Ancestors   []TypeNode `json:"ancestors"`
	Descendants []TypeNode `json:"descendants"`
}

// Hierarchy returns the ancestor chain (up to maxDepth hops, <= 0 for all)
// and the direct subtypes of the types named name.
func (e *Engine) Hierarchy(ctx context.Context, name string, maxDepth int) (*Hierarchy, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	h := &Hierarchy{Types: []TypeNode{}, Ancestors: []TypeNode{}, Descendants: []TypeNode{}}
	err = e.view(ctx, func(r *storage.Reader) error {
		roots, simple, err := lookupSymbols(ctx, r, name, model.TypeKinds...)
		if err != nil {
			return err
		}
		for _, s := range roots {
			h.Types = append(h.Types, symbolNode(s))
		}
		if h.Ancestors, err = ancestors(ctx, r, roots, maxDepth); err != nil {
			return err
		}
		desc, err := descendants(ctx, r, roots, simple, 1)
		if err != nil {
			return err
		}
		h.Descendants = append(h.Descendants, desc...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ancestors walks supertype edges breadth-first. Supertypes declared outside
// the index are reported unresolved and not expanded further.
func ancestors(ctx context.Context, r *storage.Reader, roots []storage.SymbolRow, maxDepth int) ([]TypeNode, error) {
	visited := make(map[string]bool)
	for _, s := range roots {
		visited[s.ID] = true
	}
	external := make(map[string]bool)

	frontier := roots
	out := []TypeNode{}
	for depth := 1; len(frontier) > 0 && (maxDepth <= 0 || depth <= maxDepth); depth++ {
		var next []storage.SymbolRow
		for _, child := range frontier {
			edges, err := r.EdgesFrom(ctx, []string{child.ID}, storage.EdgeFilter{Kinds: inheritanceKinds})
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if edge.TargetSymbolID == "" {
					if external[edge.TargetName] {
						continue
					}
					external[edge.TargetName] = true
					out = append(out, TypeNode{
						Name:     edge.TargetName,
						Relation: edge.Kind,
						Depth:    depth,
						Via:      child.Name,
					})
					continue
				}
				if visited[edge.TargetSymbolID] {
					continue
				}
				visited[edge.TargetSymbolID] = true
				parent, err := r.SymbolByID(ctx, edge.TargetSymbolID)
				if err != nil {
					return nil, err
				}
				if parent == nil {
					continue
				}
				node := symbolNode(*parent)
				node.Depth = depth
				node.Relation = edge.Kind
				node.Via = child.Name
				out = append(out, node)
				next = append(next, *parent)
			}
		}
		frontier = next
	}

	sortNodes(out)
	return out, nil
}

func sortNodes(nodes []TypeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path < b.Path
	})
}
