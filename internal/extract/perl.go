package extract

import (
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

var (
	perlPackageRE  = regexp.MustCompile(`^package\s+([A-Za-z_][A-Za-z0-9_:]*)\s*([;{])`)
	perlSubRE      = regexp.MustCompile(`^sub\s+([A-Za-z_][A-Za-z0-9_]*)\b`)
	perlConstantRE = regexp.MustCompile(`^use\s+constant\s+([A-Z_][A-Z0-9_]*)\s*=>`)
	perlOurRE      = regexp.MustCompile(`^our\s+([\$@%])([A-Za-z_][A-Za-z0-9_]*)`)
	perlUseBaseRE  = regexp.MustCompile(`use\s+(?:base|parent)\s+(?:-norequire\s*,\s*)?(?:qw\s*[/(\[{]([^)/\]}]+)[)/\]}]|(['"][^;]+))`)
	perlISARE      = regexp.MustCompile(`@ISA\s*=\s*(?:qw\s*[/(\[{]([^)/\]}]+)[)/\]}]|\(([^)]+)\))`)
	perlUseRE      = regexp.MustCompile(`^(?:use|require)\s+([A-Z][A-Za-z0-9_:]*)`)
	perlQuotedRE   = regexp.MustCompile(`['"]([A-Za-z_][A-Za-z0-9_:]*)['"]`)
)

func extractPerl(src *source) *fileDecls {
	src.hashComments = true
	f := newFileDecls()
	f.sep = "::"
	f.hash = true
	f.skip = make(map[int]bool)

	var (
		current = -1 // decl index of the open package
		pending []parent
		pod     bool
	)
	currentName := func() string {
		if current < 0 {
			return ""
		}
		return f.decls[current].name
	}
	addParents := func(names []string) {
		var ps []parent
		for _, name := range names {
			ps = append(ps, parent{name: name, kind: model.EdgeExtends})
		}
		if current < 0 {
			pending = append(pending, ps...)
			return
		}
		f.decls[current].parents = append(f.decls[current].parents, ps...)
	}

	for n := 1; n <= src.lineCount(); n++ {
		line := src.line(n)
		if strings.HasPrefix(line, "=") {
			pod = !strings.HasPrefix(line, "=cut")
			f.skip[n] = true
			continue
		}
		if pod {
			f.skip[n] = true
			continue
		}
		if strings.HasPrefix(line, "__END__") || strings.HasPrefix(line, "__DATA__") {
			for m := n; m <= src.lineCount(); m++ {
				f.skip[m] = true
			}
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if m := perlPackageRE.FindStringSubmatch(trimmed); m != nil {
			if current >= 0 && f.decls[current].endLine == src.lineCount() {
				f.decls[current].endLine = n - 1
			}
			d := decl{
				kind:       model.KindPackage,
				name:       m[1],
				line:       n,
				endLine:    src.lineCount(),
				signature:  strings.TrimSpace(cutTopLevel(trimmed, ";{")),
				visibility: perlVisibility(m[1]),
				doc:        docAbove(src, n, true),
			}
			if m[2] == "{" {
				d.endLine = 0
			}
			if current < 0 {
				d.parents = append(d.parents, pending...)
				pending = nil
			}
			current = f.add(d)
			continue
		}

		if m := perlSubRE.FindStringSubmatch(trimmed); m != nil {
			f.add(decl{
				kind:       model.KindFunction,
				name:       m[1],
				line:       n,
				scope:      currentName(),
				signature:  strings.TrimSpace(cutTopLevel(trimmed, "{;")),
				visibility: perlVisibility(m[1]),
				doc:        docAbove(src, n, true),
			})
			continue
		}
		if m := perlConstantRE.FindStringSubmatch(trimmed); m != nil {
			f.add(decl{
				kind:      model.KindConstant,
				name:      m[1],
				line:      n,
				endLine:   n,
				scope:     currentName(),
				signature: trimmed,
			})
			continue
		}
		if m := perlUseBaseRE.FindStringSubmatch(trimmed); m != nil {
			addParents(perlNames(m[1], m[2]))
			continue
		}
		if m := perlISARE.FindStringSubmatch(trimmed); m != nil {
			addParents(perlNames(m[1], m[2]))
			continue
		}
		if m := perlOurRE.FindStringSubmatch(trimmed); m != nil {
			f.add(decl{
				kind:       model.KindProperty,
				name:       m[2],
				line:       n,
				endLine:    n,
				scope:      currentName(),
				signature:  strings.TrimSpace(cutTopLevel(trimmed, ";")),
				visibility: perlVisibility(m[2]),
			})
			continue
		}
		if m := perlUseRE.FindStringSubmatch(trimmed); m != nil {
			f.imports = append(f.imports, model.Import{Path: m[1], Line: n})
		}
	}

	// Package blocks written as "package Foo { ... }" end at their brace.
	for i := range f.decls {
		if f.decls[i].kind == model.KindPackage && f.decls[i].endLine == 0 {
			f.decls[i].endLine = blockEnd(src, f.decls[i].line)
		}
	}
	return f
}

// perlNames splits a qw() list or a quoted, comma separated list.
func perlNames(qw, quoted string) []string {
	if qw != "" {
		return strings.Fields(qw)
	}
	var out []string
	for _, m := range perlQuotedRE.FindAllStringSubmatch(quoted, -1) {
		out = append(out, m[1])
	}
	return out
}

func perlVisibility(name string) model.Visibility {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	if strings.HasPrefix(name, "_") {
		return model.VisibilityPrivate
	}
	return model.VisibilityPublic
}
