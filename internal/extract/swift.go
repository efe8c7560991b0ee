package extract

import (
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

const swiftModifiers = `public|private|fileprivate|internal|open|final|static|class|override|required|convenience|dynamic|lazy|weak|unowned|mutating|nonmutating|indirect|nonisolated|distributed|package`

var (
	swiftImportRE    = regexp.MustCompile(`^(?:@\w+\s+)*import\s+(?:(?:class|struct|enum|protocol|func|var|let|typealias)\s+)?([\w.]+)`)
	swiftTypeRE      = regexp.MustCompile(`^((?:(?:` + swiftModifiers + `)\s+)*)(class|struct|enum|protocol|extension|actor)\s+([\w.]+)`)
	swiftFuncRE      = regexp.MustCompile(`^((?:(?:` + swiftModifiers + `)\s+)*)func\s+(\w+)\s*[(<]`)
	swiftPropertyRE  = regexp.MustCompile(`^((?:(?:` + swiftModifiers + `)\s+)*)(var|let)\s+(\w+)\s*(?::\s*([\w.<>?\[\]!, ]+))?`)
	swiftTypealiasRE = regexp.MustCompile(`^((?:(?:` + swiftModifiers + `)\s+)*)typealias\s+(\w+)`)
)

// swiftNotNames are words that follow "class" in member declarations
// such as "class func".
var swiftNotNames = toSet("func", "var", "let", "override", "final", "open", "public", "private", "static", "subscript", "init")

func extractSwift(src *source) *fileDecls {
	f := newFileDecls()
	var anns annotationCollector

	for n := 1; n <= src.lineCount(); n++ {
		trimmed := strings.TrimSpace(src.line(n))
		if trimmed == "" || isCommentLine(trimmed, false) {
			continue
		}
		if m := swiftImportRE.FindStringSubmatch(trimmed); m != nil {
			f.imports = append(f.imports, model.Import{Path: m[1], Line: n})
			continue
		}

		rest, lineAnns := anns.observe(trimmed)
		if rest == "" {
			continue
		}

		if m := swiftTypeRE.FindStringSubmatch(rest); m != nil && !swiftNotNames[m[3]] {
			kind := swiftKind(m[2])
			name := m[3]
			if kind != model.KindExtension && strings.Contains(name, ".") {
				continue
			}
			if kind == model.KindExtension {
				name, _ = typeName(name)
			}
			f.add(decl{
				kind:        kind,
				name:        name,
				line:        n,
				signature:   signatureOf(src, n, "{"),
				visibility:  swiftVisibility(m[1]),
				annotations: lineAnns,
				parents:     swiftParents(headerText(src, n), m[3], kind),
				doc:         docAbove(src, n, false),
			})
			continue
		}
		if m := swiftFuncRE.FindStringSubmatch(rest); m != nil {
			sig := signatureOf(src, n, "{")
			f.add(decl{
				kind:        model.KindFunction,
				name:        m[2],
				line:        n,
				signature:   sig,
				visibility:  swiftVisibility(m[1]),
				annotations: lineAnns,
				doc:         docAbove(src, n, false),
			})
			if hasAny(lineAnns, "Provides") {
				if i := strings.LastIndex(sig, "->"); i >= 0 {
					name, hint := typeName(sig[i+2:])
					f.edges = append(f.edges, pendingEdge{kind: model.EdgeProvides, name: name, hint: hint, line: n})
				}
			}
			continue
		}
		if m := swiftPropertyRE.FindStringSubmatch(rest); m != nil {
			f.add(decl{
				kind:        model.KindProperty,
				name:        m[3],
				line:        n,
				signature:   signatureOf(src, n, "={"),
				visibility:  swiftVisibility(m[1]),
				annotations: lineAnns,
				doc:         docAbove(src, n, false),
			})
			if hasAny(lineAnns, "Inject", "Injected", "Dependency") && m[4] != "" {
				name, hint := typeName(m[4])
				f.edges = append(f.edges, pendingEdge{kind: model.EdgeInjects, name: name, hint: hint, line: n, fromType: true})
			}
			continue
		}
		if m := swiftTypealiasRE.FindStringSubmatch(rest); m != nil {
			f.add(decl{
				kind:       model.KindTypeAlias,
				name:       m[2],
				line:       n,
				endLine:    n,
				signature:  rest,
				visibility: swiftVisibility(m[1]),
			})
		}
	}
	return f
}

func swiftKind(keyword string) model.SymbolKind {
	switch keyword {
	case "struct":
		return model.KindStruct
	case "enum":
		return model.KindEnum
	case "protocol":
		return model.KindProtocol
	case "extension":
		return model.KindExtension
	}
	return model.KindClass
}

func swiftVisibility(mods string) model.Visibility {
	switch {
	case hasWord(mods, "private"), hasWord(mods, "fileprivate"):
		return model.VisibilityPrivate
	case hasWord(mods, "public"), hasWord(mods, "open"):
		return model.VisibilityPublic
	}
	return model.VisibilityInternal
}

// swiftParents reads the inheritance clause. The first parent of a class is
// its superclass; protocols refine their parents; everything else conforms.
func swiftParents(header, name string, kind model.SymbolKind) []parent {
	i := strings.Index(header, name)
	if i < 0 {
		return nil
	}
	rest := strings.TrimSpace(skipBalanced(header[i+len(name):], '<'))
	if !strings.HasPrefix(rest, ":") {
		return nil
	}
	list := cutTopLevel(rest[1:], "{")
	if j := strings.Index(list, " where "); j >= 0 {
		list = list[:j]
	}

	var out []parent
	for idx, part := range splitTopLevel(list, ',') {
		pname, hint := typeName(part)
		if !isTypeName(pname) {
			continue
		}
		edge := model.EdgeImplements
		switch {
		case kind == model.KindProtocol:
			edge = model.EdgeExtends
		case kind == model.KindClass && idx == 0:
			edge = model.EdgeExtends
		}
		out = append(out, parent{name: pname, hint: hint, kind: edge})
	}
	return out
}
