package extract

import (
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

const kotlinModifiers = `public|private|protected|internal|abstract|open|final|sealed|data|value|inline|annotation|inner|enum|companion|expect|actual|override|suspend|operator|infix|tailrec|external|const|lateinit|fun`

var (
	kotlinPackageRE   = regexp.MustCompile(`^package\s+([\w.]+)`)
	kotlinImportRE    = regexp.MustCompile(`^import\s+([\w.]+?)(\.\*)?(?:\s+as\s+(\w+))?\s*;?$`)
	kotlinTypeRE      = regexp.MustCompile(`^((?:(?:` + kotlinModifiers + `)\s+)*)(class|object|interface)\b\s*(\w*)`)
	kotlinFunRE       = regexp.MustCompile(`^((?:(?:` + kotlinModifiers + `)\s+)*)fun\s+(?:<[^>]*>\s*)?((?:[\w?]+(?:<[^>]*>)?\??\.)*)(\w+)\s*\(`)
	kotlinPropertyRE  = regexp.MustCompile(`^((?:(?:` + kotlinModifiers + `)\s+)*)(val|var)\s+(?:[\w?]+\.)?(\w+)\s*(?::\s*([\w.<>?, ]+))?`)
	kotlinTypealiasRE = regexp.MustCompile(`^((?:(?:` + kotlinModifiers + `)\s+)*)typealias\s+(\w+)`)
	injectCtorRE      = regexp.MustCompile(`@Inject\s+constructor\s*\(`)
	kotlinParamTypeRE = regexp.MustCompile(`(?:^|\s)\w+\s*:\s*([\w.]+)`)
)

func extractKotlin(src *source) *fileDecls {
	f := newFileDecls()
	var anns annotationCollector

	for n := 1; n <= src.lineCount(); n++ {
		trimmed := strings.TrimSpace(src.line(n))
		if trimmed == "" || isCommentLine(trimmed, false) {
			continue
		}
		if m := kotlinPackageRE.FindStringSubmatch(trimmed); m != nil {
			f.pkg = m[1]
			continue
		}
		if m := kotlinImportRE.FindStringSubmatch(trimmed); m != nil {
			f.imports = append(f.imports, model.Import{Path: m[1], Alias: m[3], Line: n, IsWildcard: m[2] != ""})
			continue
		}

		rest, lineAnns := anns.observe(trimmed)
		if rest == "" {
			continue
		}

		switch {
		case kotlinTypeRE.MatchString(rest):
			m := kotlinTypeRE.FindStringSubmatch(rest)
			mods, keyword, name := m[1], m[2], m[3]
			if name == "" {
				if !strings.Contains(mods, "companion") {
					continue
				}
				name = "Companion"
			}
			kind := kotlinKind(keyword, mods)
			d := decl{
				kind:        kind,
				name:        name,
				line:        n,
				signature:   signatureOf(src, n, "{"),
				visibility:  kotlinVisibility(mods),
				annotations: lineAnns,
				doc:         docAbove(src, n, false),
			}
			header := headerText(src, n)
			d.parents = kotlinParents(header, name, kind)
			f.add(d)
			f.kotlinInjectCtor(header, n)

		case kotlinFunRE.MatchString(rest):
			m := kotlinFunRE.FindStringSubmatch(rest)
			sig := signatureOf(src, n, "{=")
			f.add(decl{
				kind:        model.KindFunction,
				name:        m[3],
				line:        n,
				signature:   sig,
				visibility:  kotlinVisibility(m[1]),
				annotations: lineAnns,
				doc:         docAbove(src, n, false),
			})
			if hasAny(lineAnns, "Provides", "Binds") {
				if ret := kotlinReturnType(sig); ret != "" {
					name, hint := typeName(ret)
					f.edges = append(f.edges, pendingEdge{kind: model.EdgeProvides, name: name, hint: hint, line: n})
				}
			}

		case kotlinPropertyRE.MatchString(rest):
			m := kotlinPropertyRE.FindStringSubmatch(rest)
			kind := model.KindProperty
			if strings.Contains(m[1], "const") {
				kind = model.KindConstant
			}
			f.add(decl{
				kind:        kind,
				name:        m[3],
				line:        n,
				signature:   signatureOf(src, n, "={"),
				visibility:  kotlinVisibility(m[1]),
				annotations: lineAnns,
				doc:         docAbove(src, n, false),
			})
			if hasAny(lineAnns, "Inject") && m[4] != "" {
				name, hint := typeName(m[4])
				f.edges = append(f.edges, pendingEdge{kind: model.EdgeInjects, name: name, hint: hint, line: n, fromType: true})
			}

		case kotlinTypealiasRE.MatchString(rest):
			m := kotlinTypealiasRE.FindStringSubmatch(rest)
			f.add(decl{
				kind:       model.KindTypeAlias,
				name:       m[2],
				line:       n,
				endLine:    n,
				signature:  rest,
				visibility: kotlinVisibility(m[1]),
			})
		}
	}

	f.resources = scanResourceRefs(src)
	return f
}

func kotlinKind(keyword, mods string) model.SymbolKind {
	switch {
	case keyword == "interface":
		return model.KindInterface
	case keyword == "object":
		return model.KindObject
	case hasWord(mods, "enum"):
		return model.KindEnum
	}
	return model.KindClass
}

func kotlinVisibility(mods string) model.Visibility {
	switch {
	case hasWord(mods, "private"):
		return model.VisibilityPrivate
	case hasWord(mods, "protected"):
		return model.VisibilityProtected
	case hasWord(mods, "internal"):
		return model.VisibilityInternal
	}
	return model.VisibilityPublic
}

// headerText returns a declaration header flattened to one line.
func headerText(src *source, n int) string {
	end, _ := headerEnd(src, n)
	return strings.Join(strings.Fields(src.span(n, end)), " ")
}

// kotlinParents parses the supertype list after the name, generics and
// primary constructor. A supertype invoked with () is the superclass.
func kotlinParents(header, name string, kind model.SymbolKind) []parent {
	rest := afterName(header, name)
	rest = strings.TrimSpace(skipBalanced(rest, '<'))
	if strings.HasPrefix(rest, "@") || strings.HasPrefix(rest, "private") ||
		strings.HasPrefix(rest, "internal") || strings.HasPrefix(rest, "protected") ||
		strings.HasPrefix(rest, "public") {
		if i := strings.Index(rest, "constructor"); i >= 0 {
			rest = strings.TrimSpace(rest[i+len("constructor"):])
		}
	}
	rest = strings.TrimSpace(skipBalanced(rest, '('))
	if !strings.HasPrefix(rest, ":") {
		return nil
	}
	list := cutTopLevel(rest[1:], "{")
	if i := strings.Index(list, " where "); i >= 0 {
		list = list[:i]
	}

	var out []parent
	for _, part := range splitTopLevel(list, ',') {
		if i := strings.Index(part, " by "); i >= 0 {
			part = part[:i]
		}
		edge := model.EdgeImplements
		if kind == model.KindInterface || strings.Contains(part, "(") {
			edge = model.EdgeExtends
		}
		pname, hint := typeName(part)
		if isTypeName(pname) {
			out = append(out, parent{name: pname, hint: hint, kind: edge})
		}
	}
	return out
}

// kotlinInjectCtor emits injects edges for @Inject constructor parameters.
func (f *fileDecls) kotlinInjectCtor(header string, line int) {
	loc := injectCtorRE.FindStringIndex(header)
	if loc == nil {
		return
	}
	open := loc[1] - 1
	end := matchClose(header, open)
	if end < 0 {
		end = len(header)
	}
	for _, param := range splitTopLevel(header[open+1:end], ',') {
		param, _ = stripAnnotations(param)
		m := kotlinParamTypeRE.FindStringSubmatch(" " + param)
		if m == nil {
			continue
		}
		name, hint := typeName(m[1])
		if isTypeName(name) && !stopwords[name] {
			f.edges = append(f.edges, pendingEdge{kind: model.EdgeInjects, name: name, hint: hint, line: line, fromType: true})
		}
	}
}

// kotlinReturnType reads the declared return type from a fun signature.
func kotlinReturnType(sig string) string {
	open := strings.Index(sig, "(")
	if open < 0 {
		return ""
	}
	end := matchClose(sig, open)
	if end < 0 {
		return ""
	}
	rest := strings.TrimSpace(sig[end+1:])
	if !strings.HasPrefix(rest, ":") {
		return ""
	}
	return strings.TrimSpace(cutTopLevel(rest[1:], "{="))
}

// afterName returns the header text following the declared name.
func afterName(header, name string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	loc := re.FindStringIndex(header)
	if loc == nil {
		return ""
	}
	return header[loc[1]:]
}

// skipBalanced drops a leading bracketed group opened by open.
func skipBalanced(s string, open byte) string {
	t := strings.TrimSpace(s)
	if t == "" || t[0] != open {
		return t
	}
	end := matchClose(t, 0)
	if end < 0 {
		return ""
	}
	return t[end+1:]
}

func hasWord(s, word string) bool {
	for _, w := range strings.Fields(s) {
		if w == word {
			return true
		}
	}
	return false
}

func hasAny(list []string, names ...string) bool {
	for _, a := range list {
		for _, n := range names {
			if a == n {
				return true
			}
		}
	}
	return false
}
