package extract

import (
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

// maxRefLine skips minified or generated lines.
const maxRefLine = 2000

var (
	typeRefRE = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*)\b`)
	callRE    = regexp.MustCompile(`\b([a-z][a-zA-Z0-9_]*)\s*\(`)
	markerRE  = regexp.MustCompile(`(?://|#|/\*|\*|<!--)\s*(TODO|FIXME|HACK|XXX)\b[:\s]*(.*)$`)
	rClassRE  = regexp.MustCompile(`\bR\.(string|color|dimen|drawable|layout|style|mipmap|menu|id|anim|array|bool|integer|xml|font|raw|navigation|plurals|attr)\.(\w+)`)
)

// stopwords are keywords and ubiquitous stdlib names that would flood the
// graph with edges nobody queries.
var stopwords = toSet(
	// Kotlin and Java
	"if", "else", "when", "while", "for", "do", "try", "catch", "finally",
	"return", "break", "continue", "throw", "is", "in", "as", "true", "false",
	"null", "this", "super", "class", "interface", "object", "fun", "val", "var",
	"import", "package", "private", "public", "protected", "internal", "override",
	"abstract", "final", "open", "sealed", "data", "inner", "enum", "companion",
	"lateinit", "const", "suspend", "inline", "crossinline", "noinline", "reified",
	"annotation", "typealias", "get", "set", "init", "constructor", "by", "where",
	"new", "void", "static", "synchronized", "switch", "case", "default", "instanceof",
	"String", "Int", "Long", "Double", "Float", "Boolean", "Byte", "Short", "Char",
	"Unit", "Any", "Nothing", "List", "Map", "Set", "Array", "Pair", "Triple",
	"MutableList", "MutableMap", "MutableSet", "HashMap", "ArrayList", "HashSet",
	"Exception", "Error", "Throwable", "Result", "Sequence",
	"Integer", "Object", "Void", "Character",
	// Swift
	"func", "let", "self", "Self", "guard", "defer", "struct", "extension",
	"protocol", "some", "inout", "mutating", "throws", "rethrows", "async", "await",
	"Optional", "Dictionary", "Bool", "Character", "Any", "AnyObject", "Never",
	// Objective-C
	"NSObject", "NSString", "NSInteger", "NSUInteger", "BOOL", "YES", "NO", "NULL",
	"sizeof", "nil",
	// Python
	"def", "None", "True", "False", "print", "len", "range", "str", "int",
	"dict", "list", "tuple", "isinstance", "elif", "lambda", "yield", "with",
	"not", "and", "pass", "raise", "from",
	// Perl
	"my", "our", "local", "sub", "use", "require", "shift", "die", "defined",
	"ref", "bless", "scalar", "keys", "values", "push", "pop", "join", "split",
	"sprintf", "printf", "exists", "delete", "wantarray", "eval", "close", "map",
	"grep", "sort", "undef", "unless", "foreach", "elsif", "last", "next",
	"qw", "ISA", "EXPORT", "EXPORT_OK", "STDERR", "STDOUT", "STDIN",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

type refKey struct {
	kind model.EdgeKind
	name string
}

// scanReferences finds CamelCase type references and lowercase calls line
// by line. The declaring name on a declaration line and the supertypes
// already emitted as inheritance edges are skipped.
func (f *fileDecls) scanReferences(src *source, syms []model.Symbol, owners []int, hints map[string]string) []model.Edge {
	declared := make(map[int]map[string]bool)
	mark := func(line int, name string) {
		if declared[line] == nil {
			declared[line] = make(map[string]bool)
		}
		declared[line][name] = true
	}
	for i, d := range f.decls {
		mark(d.line, syms[i].Name)
		if len(d.parents) == 0 {
			continue
		}
		hEnd, _ := headerEnd(src, d.line)
		for l := d.line; l <= hEnd; l++ {
			for _, p := range d.parents {
				mark(l, p.name)
			}
		}
	}

	treeCalls := make(map[int][]string)
	for _, c := range f.calls {
		treeCalls[c.line] = append(treeCalls[c.line], c.name)
	}

	var edges []model.Edge
	for n := 1; n <= src.lineCount(); n++ {
		if f.skip[n] {
			continue
		}
		line := src.line(n)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) > maxRefLine {
			continue
		}
		if isImportLine(trimmed) || isCommentLine(trimmed, f.hash) {
			continue
		}
		code := stripLineComment(line)

		seen := make(map[refKey]bool)
		emit := func(kind model.EdgeKind, name string) {
			k := refKey{kind, name}
			if name == "" || stopwords[name] || declared[n][name] || seen[k] {
				return
			}
			seen[k] = true
			source := ""
			if n < len(owners) && owners[n] >= 0 {
				source = syms[owners[n]].ID
			}
			edges = append(edges, model.Edge{
				Kind:           kind,
				SourceSymbolID: source,
				Target:         model.UnresolvedTarget(name, hints[name]),
				Line:           n,
				Context:        truncateContext(line),
			})
		}

		for _, m := range typeRefRE.FindAllStringSubmatch(code, -1) {
			emit(model.EdgeReference, m[1])
		}
		for _, name := range treeCalls[n] {
			if len(name) > 2 {
				emit(model.EdgeCall, name)
			}
		}
		if f.treeCalls {
			continue
		}
		for _, m := range callRE.FindAllStringSubmatch(code, -1) {
			if len(m[1]) > 2 {
				emit(model.EdgeCall, m[1])
			}
		}
	}
	return edges
}

func isImportLine(trimmed string) bool {
	for _, p := range []string{"import ", "package ", "#import ", "#include ", "@import ", "from ", "use ", "require "} {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// scanMarkers collects TODO, FIXME, HACK and XXX comments.
func scanMarkers(src *source) []model.Marker {
	var out []model.Marker
	for n := 1; n <= src.lineCount(); n++ {
		line := src.line(n)
		if !strings.Contains(line, "TODO") && !strings.Contains(line, "FIXME") &&
			!strings.Contains(line, "HACK") && !strings.Contains(line, "XXX") {
			continue
		}
		m := markerRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(text, "*/"), "-->"))
		out = append(out, model.Marker{Kind: m[1], Text: text, Line: n})
	}
	return out
}

// scanResourceRefs finds R.type.name references in Android sources.
func scanResourceRefs(src *source) []model.ResourceRef {
	var out []model.ResourceRef
	for n := 1; n <= src.lineCount(); n++ {
		line := src.line(n)
		if !strings.Contains(line, "R.") {
			continue
		}
		for _, m := range rClassRE.FindAllStringSubmatch(line, -1) {
			out = append(out, model.ResourceRef{Type: m[1], Name: m[2], Line: n})
		}
	}
	return out
}
