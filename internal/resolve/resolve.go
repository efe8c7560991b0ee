// Package resolve binds edge target names to symbols of a committed snapshot.
//
// Resolution is a pure function of (edge, source, candidates): the store
// supplies candidates read inside its own transaction and writes back the
// returned target. Nothing here holds state between calls.
package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

// Candidate is a symbol that could satisfy a reference by name.
type Candidate struct {
	SymbolID      string
	Name          string
	QualifiedName string
	Scope         string
	Kind          model.SymbolKind
	FileID        int64
	Path          string
	ModuleID      int64
}

// Source locates the referencing side of an edge.
type Source struct {
	FileID   int64
	Path     string
	ModuleID int64 // 0 when module membership is not yet known
}

// Rule narrows an ambiguous candidate set. A rule that matches nothing must
// return the input unchanged.
type Rule interface {
	Name() string
	Narrow(src Source, cands []Candidate) []Candidate
}

// Policy is the tie-break applied when several candidates survive filtering.
type Policy interface {
	Choose(src Source, cands []Candidate) Candidate
}

// Chain applies rules in order, then picks the lexicographically first
// remaining candidate by qualified name, path and id.
type Chain struct {
	Rules []Rule
}

// DefaultOrder is the tie-break used unless configuration overrides it.
var DefaultOrder = []string{"same-module", "same-file", "lexicographic"}

// NewChain builds a tie-break chain from rule names.
func NewChain(order []string) (*Chain, error) {
	c := &Chain{}
	for _, name := range order {
		switch name {
		case "same-module":
			c.Rules = append(c.Rules, SameModule{})
		case "same-file":
			c.Rules = append(c.Rules, SameFile{})
		case "lexicographic":
			// Always the final step.
		default:
			return nil, fmt.Errorf("unknown tie-break rule %q", name)
		}
	}
	return c, nil
}

// Choose implements Policy.
func (c *Chain) Choose(src Source, cands []Candidate) Candidate {
	for _, r := range c.Rules {
		cands = r.Narrow(src, cands)
		if len(cands) == 1 {
			return cands[0]
		}
	}
	return lexicographicFirst(cands)
}

// SameModule keeps candidates declared in the source's module.
type SameModule struct{}

func (SameModule) Name() string { return "same-module" }

func (SameModule) Narrow(src Source, cands []Candidate) []Candidate {
	if src.ModuleID == 0 {
		return cands
	}
	return keep(cands, func(c Candidate) bool { return c.ModuleID == src.ModuleID })
}

// SameFile keeps candidates declared in the source file.
type SameFile struct{}

func (SameFile) Name() string { return "same-file" }

func (SameFile) Narrow(src Source, cands []Candidate) []Candidate {
	return keep(cands, func(c Candidate) bool { return c.FileID == src.FileID })
}

func keep(cands []Candidate, pred func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if pred(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

func lexicographicFirst(cands []Candidate) Candidate {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.QualifiedName != b.QualifiedName {
			return a.QualifiedName < b.QualifiedName
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.SymbolID < b.SymbolID
	})
	return sorted[0]
}

// Resolver turns a name reference into a Target.
type Resolver struct {
	policy Policy
}

// New creates a resolver with the given tie-break policy.
func New(policy Policy) *Resolver {
	if policy == nil {
		policy, _ = NewChain(DefaultOrder)
	}
	return &Resolver{policy: policy}
}

// Resolve picks the target of an edge of the given kind among candidates
// that share its name. It returns the target and the number of candidates
// that survived kind and scope filtering.
func (r *Resolver) Resolve(src Source, kind model.EdgeKind, name, scopeHint string, cands []Candidate) (model.Target, int) {
	cands = filterKinds(kind, cands)
	cands = narrowScope(scopeHint, cands)

	switch len(cands) {
	case 0:
		return model.UnresolvedTarget(name, scopeHint), 0
	case 1:
		return model.ResolvedTarget(cands[0].SymbolID, name), 1
	default:
		chosen := r.policy.Choose(src, cands)
		return model.ResolvedTarget(chosen.SymbolID, name), len(cands)
	}
}

func filterKinds(kind model.EdgeKind, cands []Candidate) []Candidate {
	allowed := kind.CandidateKinds()
	var out []Candidate
	for _, c := range cands {
		for _, k := range allowed {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// narrowScope keeps candidates whose package/scope matches the hint taken
// from an explicit import or a qualified reference. The hint applies even to
// a single candidate: when it excludes every candidate the name belongs to
// another package and the edge stays dangling.
func narrowScope(hint string, cands []Candidate) []Candidate {
	if hint == "" {
		return cands
	}
	var out []Candidate
	for _, c := range cands {
		if inScope(hint, c) {
			out = append(out, c)
		}
	}
	return out
}

func inScope(hint string, c Candidate) bool {
	h := strings.TrimLeft(hint, ".")
	if h == "" {
		return true // from . import x
	}
	if c.Scope == h || strings.HasPrefix(c.QualifiedName, h+".") {
		return true
	}
	// Python module names start at the project root, imports at a source
	// root or relative to the package, so the hint may name only a suffix.
	return strings.HasSuffix(c.Scope, "."+h) || strings.Contains(c.QualifiedName, "."+h+".")
}
