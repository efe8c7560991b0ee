package extract

import (
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

var (
	objcImportRE     = regexp.MustCompile(`^#(?:import|include)\s+[<"]([^>"]+)[>"]`)
	objcModuleRE     = regexp.MustCompile(`^@import\s+([\w.]+)\s*;`)
	objcInterfaceRE  = regexp.MustCompile(`^@interface\s+(\w+)(?:\s*\(\s*(\w*)\s*\))?(?:\s*:\s*(\w+))?(?:\s*<([^>]+)>)?`)
	objcProtocolRE   = regexp.MustCompile(`^@protocol\s+(\w+)(?:\s*<([^>]+)>)?`)
	objcImplRE       = regexp.MustCompile(`^@implementation\s+(\w+)(?:\s*\(\s*(\w*)\s*\))?`)
	objcMethodRE     = regexp.MustCompile(`^([-+])\s*\(([^)]+)\)\s*(\w+)`)
	objcPropertyRE   = regexp.MustCompile(`^@property\s*(?:\(([^)]*)\))?\s*([^;]+);`)
	objcEnumRE       = regexp.MustCompile(`^typedef\s+NS_(?:ENUM|OPTIONS|CLOSED_ENUM|ERROR_ENUM)\s*\(\s*\w+\s*,\s*(\w+)\s*\)`)
	objcTypedefRE    = regexp.MustCompile(`^typedef\s+(struct|enum|union)?[^;{]*?(\w+)\s*;`)
	objcTypedefOpen  = regexp.MustCompile(`^typedef\s+(struct|enum|union)\b[^;]*\{`)
	objcTypedefClose = regexp.MustCompile(`^\}\s*(\w+)\s*;`)
	objcMessageRE    = regexp.MustCompile(`\[\s*[\w.\]]+\s+(\w+)\s*[:\]]`)
)

func extractObjC(src *source) *fileDecls {
	f := newFileDecls()

	var (
		container     string // class or protocol whose members follow
		containerDecl = -1
		typedefKind   model.SymbolKind
		typedefLine   int
		impls         []decl
	)
	closeContainer := func(n int) {
		if containerDecl >= 0 {
			f.decls[containerDecl].endLine = n
		}
		container, containerDecl = "", -1
	}

	for n := 1; n <= src.lineCount(); n++ {
		trimmed := strings.TrimSpace(src.line(n))
		if trimmed == "" || isCommentLine(trimmed, false) {
			continue
		}
		for _, m := range objcMessageRE.FindAllStringSubmatch(trimmed, -1) {
			f.calls = append(f.calls, callSite{name: m[1], line: n})
		}

		switch {
		case objcImportRE.MatchString(trimmed):
			m := objcImportRE.FindStringSubmatch(trimmed)
			path := strings.TrimSuffix(m[1], ".h")
			f.imports = append(f.imports, model.Import{Path: path, Line: n})

		case objcModuleRE.MatchString(trimmed):
			m := objcModuleRE.FindStringSubmatch(trimmed)
			f.imports = append(f.imports, model.Import{Path: m[1], Line: n})

		case strings.HasPrefix(trimmed, "@end"):
			closeContainer(n)

		case objcInterfaceRE.MatchString(trimmed):
			m := objcInterfaceRE.FindStringSubmatch(trimmed)
			name, category, super, protocols := m[1], m[2], m[3], m[4]
			isCategory := strings.Contains(trimmed[:len(m[0])], "(")
			container = name
			if isCategory && category == "" {
				// Class extension: members belong to the class itself.
				containerDecl = -1
				continue
			}
			d := decl{
				kind:      model.KindClass,
				name:      name,
				line:      n,
				endLine:   src.lineCount(),
				signature: trimmed,
				doc:       docAbove(src, n, false),
			}
			if isCategory {
				d.kind = model.KindObject
				d.name = name + "+" + category
				d.parents = append(d.parents, parent{name: name, kind: model.EdgeExtends})
			}
			if super != "" {
				d.parents = append(d.parents, parent{name: super, kind: model.EdgeExtends})
			}
			for _, p := range splitTopLevel(protocols, ',') {
				d.parents = append(d.parents, parent{name: p, kind: model.EdgeImplements})
			}
			containerDecl = f.add(d)

		case objcProtocolRE.MatchString(trimmed):
			if strings.HasSuffix(trimmed, ";") {
				continue // forward declaration
			}
			m := objcProtocolRE.FindStringSubmatch(trimmed)
			d := decl{
				kind:      model.KindProtocol,
				name:      m[1],
				line:      n,
				endLine:   src.lineCount(),
				signature: trimmed,
				doc:       docAbove(src, n, false),
			}
			for _, p := range splitTopLevel(m[2], ',') {
				d.parents = append(d.parents, parent{name: p, kind: model.EdgeExtends})
			}
			container = m[1]
			containerDecl = f.add(d)

		case objcImplRE.MatchString(trimmed):
			m := objcImplRE.FindStringSubmatch(trimmed)
			container = m[1]
			containerDecl = -1
			if strings.Contains(trimmed[:len(m[0])], "(") {
				continue
			}
			impls = append(impls, decl{
				kind:      model.KindClass,
				name:      m[1],
				line:      n,
				endLine:   objcEndOf(src, n),
				signature: trimmed,
			})

		case objcMethodRE.MatchString(trimmed):
			m := objcMethodRE.FindStringSubmatch(trimmed)
			d := decl{
				kind:      model.KindFunction,
				name:      m[3],
				line:      n,
				scope:     container,
				signature: strings.TrimSpace(cutTopLevel(trimmed, "{;")),
				doc:       docAbove(src, n, false),
			}
			if strings.HasSuffix(strings.TrimSpace(stripLineComment(trimmed)), ";") {
				d.endLine = n
			}
			f.add(d)

		case objcPropertyRE.MatchString(trimmed):
			m := objcPropertyRE.FindStringSubmatch(trimmed)
			name := objcPropertyName(m[2])
			if name == "" {
				continue
			}
			f.add(decl{
				kind:        model.KindProperty,
				name:        name,
				line:        n,
				endLine:     n,
				scope:       container,
				signature:   trimmed,
				annotations: objcPropertyAnnotations(m[2]),
			})

		case objcEnumRE.MatchString(trimmed):
			m := objcEnumRE.FindStringSubmatch(trimmed)
			f.add(decl{kind: model.KindEnum, name: m[1], line: n, signature: strings.TrimSpace(cutTopLevel(trimmed, "{"))})

		case objcTypedefOpen.MatchString(trimmed) && !strings.Contains(trimmed, "}"):
			m := objcTypedefOpen.FindStringSubmatch(trimmed)
			typedefKind, typedefLine = objcTypedefKind(m[1]), n

		case typedefLine > 0 && objcTypedefClose.MatchString(trimmed):
			m := objcTypedefClose.FindStringSubmatch(trimmed)
			f.add(decl{kind: typedefKind, name: m[1], line: typedefLine, endLine: n, signature: strings.TrimSpace(src.line(typedefLine))})
			typedefLine = 0

		case objcTypedefRE.MatchString(trimmed):
			m := objcTypedefRE.FindStringSubmatch(trimmed)
			f.add(decl{kind: objcTypedefKind(m[1]), name: m[2], line: n, endLine: n, signature: trimmed})
		}
	}
	if containerDecl >= 0 {
		closeContainer(src.lineCount())
	}

	// An @implementation only declares a class when no @interface did.
	declared := make(map[string]bool)
	for _, d := range f.decls {
		if d.kind == model.KindClass {
			declared[d.name] = true
		}
	}
	for _, d := range impls {
		if !declared[d.name] {
			declared[d.name] = true
			f.add(d)
		}
	}
	return f
}

func objcEndOf(src *source, start int) int {
	for n := start + 1; n <= src.lineCount(); n++ {
		if strings.HasPrefix(strings.TrimSpace(src.line(n)), "@end") {
			return n
		}
	}
	return src.lineCount()
}

func objcTypedefKind(keyword string) model.SymbolKind {
	switch keyword {
	case "struct", "union":
		return model.KindStruct
	case "enum":
		return model.KindEnum
	}
	return model.KindTypeAlias
}

// objcPropertyName returns the declared name from "NSString *name".
func objcPropertyName(decl string) string {
	fields := strings.FieldsFunc(decl, func(r rune) bool { return r == ' ' || r == '*' || r == '\t' })
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func objcPropertyAnnotations(decl string) []string {
	var out []string
	for _, marker := range []string{"IBOutlet", "IBInspectable"} {
		if strings.Contains(decl, marker) {
			out = append(out, marker)
		}
	}
	return out
}
