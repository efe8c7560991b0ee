package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/xxh3"

	"github.com/mvp-joe/ast-index/internal/model"
)

// parent is a supertype named in a declaration header.
type parent struct {
	name string
	hint string
	kind model.EdgeKind
}

// decl is a declaration found by a scanner, before identity and scope are
// assigned.
type decl struct {
	kind        model.SymbolKind
	name        string
	line        int
	endLine     int    // 0 computes the end by brace matching
	scope       string // explicit scope; "" derives it from enclosing types
	signature   string
	visibility  model.Visibility
	annotations []string
	parents     []parent
	doc         string
}

// pendingEdge is a DI edge whose source is found by line once symbols exist.
type pendingEdge struct {
	kind model.EdgeKind
	name string
	hint string
	line int
	// fromType attributes the edge to the innermost enclosing type rather
	// than the innermost symbol.
	fromType bool
}

// callSite is a call found structurally rather than by the call pattern.
type callSite struct {
	name string
	line int
}

// fileDecls is the raw output of one scanner.
type fileDecls struct {
	pkg       string // package prefix for top-level declarations
	sep       string // qualified name separator
	decls     []decl
	imports   []model.Import
	edges     []pendingEdge
	calls     []callSite
	treeCalls bool // calls come only from callSites
	noRefs    bool // manifests and markup carry no code references
	hash      bool // '#' comments
	skip      map[int]bool

	xmlRefs    []model.XMLRef
	resources  []model.ResourceRef
	modules    []model.Module
	moduleDeps []model.ModuleDependency
}

func newFileDecls() *fileDecls {
	return &fileDecls{sep: "."}
}

func (f *fileDecls) add(d decl) int {
	f.decls = append(f.decls, d)
	return len(f.decls) - 1
}

// finalize assigns end lines, scopes, identities and body hashes, then
// derives inheritance, DI and reference edges.
func (f *fileDecls) finalize(p string, lang model.Language, src *source) *model.FileResult {
	res := &model.FileResult{
		Path:       p,
		Language:   lang,
		Imports:    f.imports,
		XMLRefs:    f.xmlRefs,
		Resources:  f.resources,
		Modules:    f.modules,
		ModuleDeps: f.moduleDeps,
	}

	sort.SliceStable(f.decls, func(i, j int) bool { return f.decls[i].line < f.decls[j].line })
	for i := range f.decls {
		d := &f.decls[i]
		if d.endLine == 0 {
			d.endLine = blockEnd(src, d.line)
		}
		if d.endLine < d.line {
			d.endLine = d.line
		}
		if d.visibility == "" {
			d.visibility = model.VisibilityPublic
		}
	}
	f.dropLocals()

	syms := make([]model.Symbol, len(f.decls))
	ordinals := make(map[string]int)
	for i := range f.decls {
		d := &f.decls[i]
		scope := d.scope
		if scope == "" {
			if enc := enclosingType(f.decls[:i], d); enc >= 0 {
				scope = syms[enc].QualifiedName
			} else {
				scope = f.pkg
			}
		}
		qn := d.name
		if scope != "" {
			qn = scope + f.sep + d.name
		}
		key := qn + "\x00" + string(d.kind)
		ord := ordinals[key]
		ordinals[key]++

		syms[i] = model.Symbol{
			ID:            model.SymbolID(p, qn, d.kind, ord),
			Kind:          d.kind,
			Name:          d.name,
			Scope:         scope,
			QualifiedName: qn,
			StartLine:     d.line,
			EndLine:       d.endLine,
			Visibility:    d.visibility,
			Signature:     d.signature,
			Doc:           d.doc,
			Annotations:   dedupe(d.annotations),
			BodyHash:      bodyHash(src, d.line, d.endLine),
			Ordinal:       ord,
		}
	}
	res.Symbols = syms

	hints := importHints(f.imports)
	owners := ownerIndex(syms, src.lineCount())

	for i, d := range f.decls {
		for _, pr := range d.parents {
			hint := pr.hint
			if hint == "" {
				hint = hints[pr.name]
			}
			res.Edges = append(res.Edges, model.Edge{
				Kind:           pr.kind,
				SourceSymbolID: syms[i].ID,
				Target:         model.UnresolvedTarget(pr.name, hint),
				Line:           d.line,
				Context:        truncateContext(src.line(d.line)),
			})
		}
	}

	for _, pe := range f.edges {
		owner := ownerAt(owners, syms, pe.line, pe.fromType)
		hint := pe.hint
		if hint == "" {
			hint = hints[pe.name]
		}
		res.Edges = append(res.Edges, model.Edge{
			Kind:           pe.kind,
			SourceSymbolID: owner,
			Target:         model.UnresolvedTarget(pe.name, hint),
			Line:           pe.line,
			Context:        truncateContext(src.line(pe.line)),
		})
	}

	if !f.noRefs {
		res.Edges = append(res.Edges, f.scanReferences(src, syms, owners, hints)...)
	}
	res.Markers = scanMarkers(src)
	return res
}

// dropLocals removes properties and constants declared inside function
// bodies; they are locals, not members.
func (f *fileDecls) dropLocals() {
	out := f.decls[:0]
	for i, d := range f.decls {
		if d.kind == model.KindProperty || d.kind == model.KindConstant {
			local := false
			for j := 0; j < i; j++ {
				o := f.decls[j]
				if o.kind == model.KindFunction && o.line < d.line && d.line <= o.endLine {
					local = true
					break
				}
			}
			if local {
				continue
			}
		}
		out = append(out, d)
	}
	f.decls = out
}

// enclosingType returns the index of the innermost earlier type declaration
// whose range contains d, or -1.
func enclosingType(decls []decl, d *decl) int {
	best := -1
	for j := range decls {
		o := decls[j]
		if !o.kind.IsType() || o.line > d.line || d.endLine > o.endLine {
			continue
		}
		if o.line == d.line && o.endLine == d.endLine {
			continue
		}
		if best < 0 || o.endLine-o.line <= decls[best].endLine-decls[best].line {
			best = j
		}
	}
	return best
}

// ownerIndex maps each line to the innermost symbol whose range contains it.
func ownerIndex(syms []model.Symbol, lines int) []int {
	owners := make([]int, lines+2)
	for i := range owners {
		owners[i] = -1
	}
	order := make([]int, len(syms))
	for i := range order {
		order[i] = i
	}
	// Wider spans first so inner symbols overwrite.
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := syms[order[a]], syms[order[b]]
		return sa.EndLine-sa.StartLine > sb.EndLine-sb.StartLine
	})
	for _, i := range order {
		s := syms[i]
		for l := s.StartLine; l <= s.EndLine && l < len(owners); l++ {
			owners[l] = i
		}
	}
	return owners
}

// ownerAt returns the id of the symbol owning line, optionally walking out
// to the innermost type. "" means file scope.
func ownerAt(owners []int, syms []model.Symbol, line int, typeOnly bool) string {
	if line < 0 || line >= len(owners) || owners[line] < 0 {
		return ""
	}
	s := syms[owners[line]]
	if !typeOnly || s.Kind.IsType() {
		return s.ID
	}
	best := -1
	for i, o := range syms {
		if !o.Kind.IsType() || !o.Contains(line) {
			continue
		}
		if best < 0 || o.EndLine-o.StartLine < syms[best].EndLine-syms[best].StartLine {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return syms[best].ID
}

// importHints maps simple names to the package of the import naming them.
func importHints(imports []model.Import) map[string]string {
	hints := make(map[string]string, len(imports))
	for _, imp := range imports {
		if imp.IsWildcard {
			continue
		}
		name := imp.Simple()
		if imp.Alias != "" {
			name = imp.Alias
		}
		if pkg := imp.Package(); pkg != "" {
			hints[name] = pkg
		}
	}
	return hints
}

func bodyHash(src *source, from, to int) string {
	return fmt.Sprintf("%016x", xxh3.HashString(src.span(from, to)))
}

// truncateContext trims a source line for display.
func truncateContext(line string) string {
	t := strings.TrimSpace(line)
	if len(t) > 500 {
		return truncate(t, 500) + "..."
	}
	return t
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
