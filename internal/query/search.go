package query

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// DefaultLimit caps result lists when the caller passes no limit.
const DefaultLimit = 50

// minFuzzyQuery is the shortest query worth a fuzzy pass; shorter terms are
// within two edits of almost everything.
const minFuzzyQuery = 4

// MatchQuality ranks how a search hit matched. Lower is better.
type MatchQuality int

const (
	MatchExact MatchQuality = iota
	MatchPrefix
	MatchFullText
	MatchFuzzy
)

func (q MatchQuality) String() string {
	switch q {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchFullText:
		return "fulltext"
	}
	return "fuzzy"
}

// MarshalText renders the quality by name in JSON output.
func (q MatchQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// Result types for Search.
const (
	TypeSymbols = "symbols"
	TypeFiles   = "files"
	TypeModules = "modules"
)

// SearchOptions narrows a search.
type SearchOptions struct {
	Type   string // TypeSymbols, TypeFiles, TypeModules, or "" for all
	Exact  bool   // only exact name matches
	Module string // restrict symbols and files to one module
	Limit  int
}

// SearchHit is one search result.
type SearchHit struct {
	Type          string           `json:"type"`
	Name          string           `json:"name"`
	QualifiedName string           `json:"qualified_name,omitempty"`
	Kind          model.SymbolKind `json:"kind,omitempty"`
	Path          string           `json:"path,omitempty"`
	Line          int              `json:"line,omitempty"`
	Module        string           `json:"module,omitempty"`
	Quality       MatchQuality     `json:"quality"`

	key string
}

// Search unions matches over symbols, files and modules. Hits are ranked by
// match quality, then name length, then path. Each result appears once, at
// its best quality.
func (e *Engine) Search(ctx context.Context, q string, opts SearchOptions) ([]SearchHit, error) {
	q, err := requireName(q)
	if err != nil {
		return nil, err
	}
	switch opts.Type {
	case "", TypeSymbols, TypeFiles, TypeModules:
	default:
		return nil, fmt.Errorf("unknown search type %q (want %s, %s or %s)", opts.Type, TypeSymbols, TypeFiles, TypeModules)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	s := &searcher{q: q, opts: opts, best: make(map[string]SearchHit)}
	err = e.view(ctx, func(r *storage.Reader) error {
		if s.module, err = moduleID(ctx, r, opts.Module); err != nil {
			return err
		}
		if s.wants(TypeSymbols) {
			if err := s.symbols(ctx, r, e); err != nil {
				return err
			}
		}
		if s.wants(TypeFiles) {
			if err := s.files(ctx, r); err != nil {
				return err
			}
		}
		if s.wants(TypeModules) && opts.Module == "" {
			if err := s.modules(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.results(), nil
}

type searcher struct {
	q      string
	opts   SearchOptions
	module int64
	best   map[string]SearchHit
}

func (s *searcher) wants(t string) bool {
	return s.opts.Type == "" || s.opts.Type == t
}

// fetchLimit over-reads when a module filter will discard rows afterwards.
func (s *searcher) fetchLimit() int {
	if s.module != 0 {
		return s.opts.Limit * 4
	}
	return s.opts.Limit
}

func (s *searcher) add(h SearchHit) {
	if prev, ok := s.best[h.key]; ok && prev.Quality <= h.Quality {
		return
	}
	s.best[h.key] = h
}

func (s *searcher) addSymbols(syms []storage.SymbolRow, quality MatchQuality) {
	for _, sym := range syms {
		if s.module != 0 && sym.ModuleID != s.module {
			continue
		}
		q := quality
		if sym.Name == s.q || sym.QualifiedName == s.q {
			q = MatchExact
		}
		s.add(SearchHit{
			Type:          TypeSymbols,
			Name:          sym.Name,
			QualifiedName: sym.QualifiedName,
			Kind:          sym.Kind,
			Path:          sym.Path,
			Line:          sym.StartLine,
			Module:        sym.ModuleName,
			Quality:       q,
			key:           "s:" + sym.ID,
		})
	}
}

func (s *searcher) symbols(ctx context.Context, r *storage.Reader, e *Engine) error {
	exact, err := r.SymbolsByName(ctx, s.q)
	if err != nil {
		return err
	}
	s.addSymbols(exact, MatchExact)
	if strings.ContainsAny(s.q, ".:") {
		qualified, err := r.SymbolsByQualifiedName(ctx, s.q)
		if err != nil {
			return err
		}
		s.addSymbols(qualified, MatchExact)
	}
	if s.opts.Exact {
		return nil
	}

	prefix, err := r.SymbolsByPrefix(ctx, s.q, s.fetchLimit())
	if err != nil {
		return err
	}
	s.addSymbols(prefix, MatchPrefix)

	text, err := r.SearchSymbolsFTS(ctx, s.q, s.fetchLimit())
	if err != nil {
		return err
	}
	s.addSymbols(text, MatchFullText)

	if utf8.RuneCountInString(s.q) < minFuzzyQuery {
		return nil
	}
	idx, err := e.fuzzyFor(ctx, r)
	if err != nil {
		return err
	}
	ids, err := idx.Search(s.q, s.fetchLimit())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, seen := s.best["s:"+id]; seen {
			continue
		}
		sym, err := r.SymbolByID(ctx, id)
		if err != nil {
			return err
		}
		if sym != nil {
			s.addSymbols([]storage.SymbolRow{*sym}, MatchFuzzy)
		}
	}
	return nil
}

func (s *searcher) files(ctx context.Context, r *storage.Reader) error {
	hits, err := r.SearchFilesFTS(ctx, s.q, s.fetchLimit())
	if err != nil {
		return err
	}
	lower := strings.ToLower(s.q)
	for _, h := range hits {
		base := path.Base(h.Path)
		quality := MatchFullText
		switch {
		case h.Path == s.q || base == s.q:
			quality = MatchExact
		case strings.HasPrefix(strings.ToLower(base), lower):
			quality = MatchPrefix
		}
		if s.opts.Exact && quality != MatchExact {
			continue
		}
		if s.module != 0 {
			f, err := r.FileByPath(ctx, h.Path)
			if err != nil {
				return err
			}
			if f == nil || f.ModuleID != s.module {
				continue
			}
		}
		s.add(SearchHit{Type: TypeFiles, Name: base, Path: h.Path, Quality: quality, key: "f:" + h.Path})
	}
	return nil
}

func (s *searcher) modules(ctx context.Context, r *storage.Reader) error {
	mods, err := r.Modules(ctx)
	if err != nil {
		return err
	}
	want := strings.ToLower(strings.TrimPrefix(s.q, ":"))
	for _, m := range mods {
		name := strings.ToLower(strings.TrimPrefix(m.Name, ":"))
		var quality MatchQuality
		switch {
		case name == want:
			quality = MatchExact
		case s.opts.Exact:
			continue
		case strings.HasPrefix(name, want):
			quality = MatchPrefix
		case strings.Contains(name, want):
			quality = MatchFullText
		default:
			continue
		}
		s.add(SearchHit{Type: TypeModules, Name: m.Name, Path: m.RootPath, Quality: quality, key: "m:" + m.Name})
	}
	return nil
}

func (s *searcher) results() []SearchHit {
	out := make([]SearchHit, 0, len(s.best))
	for _, h := range s.best {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Quality != b.Quality {
			return a.Quality < b.Quality
		}
		if len(a.Name) != len(b.Name) {
			return len(a.Name) < len(b.Name)
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.key < b.key
	})
	if len(out) > s.opts.Limit {
		out = out[:s.opts.Limit]
	}
	return out
}
