// Package query serves the read-only commands over a committed index.
//
// Every operation runs inside one read transaction (Store.View) so a
// multi-step traversal never observes a torn mix of an in-progress update.
// A name that matches nothing yields an empty result, not an error; only
// malformed input and store failures are reported as errors.
package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/ast-index/internal/git"
	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/modules"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// ErrEmptyQuery is returned when a name or query argument is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// fuzzyCacheSize bounds the number of generations whose fuzzy index is kept.
const fuzzyCacheSize = 4

// Engine answers queries against one project index.
type Engine struct {
	store *storage.Store
	git   git.Operations
	root  string

	fuzzy   otter.Cache[string, *fuzzyIndex]
	buildMu sync.Mutex
}

// New creates an engine over store for the project at root. ops may be nil,
// in which case Changed is unavailable.
func New(store *storage.Store, root string, ops git.Operations) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	cache, err := otter.MustBuilder[string, *fuzzyIndex](fuzzyCacheSize).
		DeletionListener(func(_ string, idx *fuzzyIndex, _ otter.DeletionCause) {
			idx.Close()
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create fuzzy cache: %w", err)
	}
	return &Engine{store: store, git: ops, root: abs, fuzzy: cache}, nil
}

// Close releases cached in-memory indexes. The store is owned by the caller.
func (e *Engine) Close() {
	e.fuzzy.Close()
}

func (e *Engine) view(ctx context.Context, fn func(r *storage.Reader) error) error {
	return e.store.View(ctx, fn)
}

// moduleID maps an optional module filter to its id; "" means any module.
func moduleID(ctx context.Context, r *storage.Reader, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, nil
	}
	g, err := modules.Load(ctx, r)
	if err != nil {
		return 0, err
	}
	m, err := g.Lookup(name)
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

// lookupSymbols finds the declarations a user-supplied name refers to.
// Dotted and "::" names match qualified names; bare names match simple
// names. The returned simple name is used to pick up dangling edges.
func lookupSymbols(ctx context.Context, r *storage.Reader, name string, kinds ...model.SymbolKind) ([]storage.SymbolRow, string, error) {
	simple := name
	if i := strings.LastIndexAny(name, ".:"); i >= 0 && i < len(name)-1 {
		simple = name[i+1:]
	}
	if simple != name {
		syms, err := r.SymbolsByQualifiedName(ctx, name)
		if err != nil {
			return nil, "", err
		}
		if len(syms) == 0 && strings.Contains(name, "::") {
			syms, err = r.SymbolsByQualifiedName(ctx, strings.ReplaceAll(name, "::", "."))
			if err != nil {
				return nil, "", err
			}
		}
		return filterKinds(syms, kinds), simple, nil
	}
	syms, err := r.SymbolsByName(ctx, name, kinds...)
	return syms, simple, err
}

func filterKinds(syms []storage.SymbolRow, kinds []model.SymbolKind) []storage.SymbolRow {
	if len(kinds) == 0 {
		return syms
	}
	allowed := make(map[model.SymbolKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	out := syms[:0]
	for _, s := range syms {
		if allowed[s.Kind] {
			out = append(out, s)
		}
	}
	return out
}

func symbolIDs(syms []storage.SymbolRow) []string {
	ids := make([]string, len(syms))
	for i, s := range syms {
		ids[i] = s.ID
	}
	return ids
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyQuery
	}
	return name, nil
}

func sortLocations[T any](items []T, key func(T) (string, int)) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, li := key(items[i])
		pj, lj := key(items[j])
		if pi != pj {
			return pi < pj
		}
		return li < lj
	})
}
