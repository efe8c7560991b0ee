package extract

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/ast-index/internal/model"
)

var javaTypeDecls = map[string]model.SymbolKind{
	"class_declaration":           model.KindClass,
	"interface_declaration":       model.KindInterface,
	"enum_declaration":            model.KindEnum,
	"record_declaration":          model.KindClass,
	"annotation_type_declaration": model.KindInterface,
}

func extractJava(src *source) *fileDecls {
	f := newFileDecls()
	f.treeCalls = true
	content := src.content

	ok := parseTree(javaLanguage, content, func(root *sitter.Node) {
		walkTree(root, func(n *sitter.Node) bool {
			switch kind := n.Kind(); kind {
			case "package_declaration":
				for i := 0; i < int(n.NamedChildCount()); i++ {
					c := n.NamedChild(uint(i))
					if c.Kind() == "scoped_identifier" || c.Kind() == "identifier" {
						f.pkg = nodeText(c, content)
					}
				}
				return false

			case "import_declaration":
				f.imports = append(f.imports, javaImport(n, content))
				return false

			case "class_declaration", "interface_declaration", "enum_declaration",
				"record_declaration", "annotation_type_declaration":
				f.javaType(n, javaTypeDecls[kind], src)

			case "method_declaration":
				f.javaMethod(n, src)

			case "constructor_declaration":
				mods, _ := javaModifiers(n, content)
				if hasAny(mods, "Inject") {
					f.javaInjectParams(n, content)
				}

			case "field_declaration":
				f.javaField(n, src)

			case "method_invocation":
				if name := n.ChildByFieldName("name"); name != nil {
					f.calls = append(f.calls, callSite{name: nodeText(name, content), line: startLine(name)})
				}
			}
			return true
		})
	})
	if !ok {
		// No tree: the Kotlin scanner understands enough Java headers.
		return extractKotlin(src)
	}

	f.resources = scanResourceRefs(src)
	return f
}

func javaImport(n *sitter.Node, content []byte) model.Import {
	imp := model.Import{Line: startLine(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(uint(i))
		switch c.Kind() {
		case "scoped_identifier", "identifier":
			imp.Path = nodeText(c, content)
		case "asterisk":
			imp.IsWildcard = true
		}
	}
	return imp
}

// javaModifiers returns annotation names and keyword modifiers.
func javaModifiers(n *sitter.Node, content []byte) (annotations []string, keywords []string) {
	mods := findChildByType(n, "modifiers")
	if mods == nil {
		return nil, nil
	}
	for i := 0; i < int(mods.ChildCount()); i++ {
		c := mods.Child(uint(i))
		switch c.Kind() {
		case "marker_annotation", "annotation":
			if name := c.ChildByFieldName("name"); name != nil {
				ann, _ := typeName(nodeText(name, content))
				annotations = append(annotations, ann)
			}
		default:
			keywords = append(keywords, nodeText(c, content))
		}
	}
	return annotations, keywords
}

func javaVisibility(keywords []string) model.Visibility {
	for _, k := range keywords {
		switch k {
		case "public":
			return model.VisibilityPublic
		case "protected":
			return model.VisibilityProtected
		case "private":
			return model.VisibilityPrivate
		}
	}
	return model.VisibilityInternal
}

// javaTypeRefs lists the simple names of the types in a type_list or a
// single type node.
func javaTypeRefs(n *sitter.Node, content []byte) []parent {
	if n == nil {
		return nil
	}
	var out []parent
	switch n.Kind() {
	case "type_identifier", "scoped_type_identifier", "generic_type":
		name, hint := typeName(nodeText(n, content))
		if name != "" {
			out = append(out, parent{name: name, hint: hint})
		}
		return out
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, javaTypeRefs(n.NamedChild(uint(i)), content)...)
	}
	return out
}

func withKind(ps []parent, kind model.EdgeKind) []parent {
	for i := range ps {
		ps[i].kind = kind
	}
	return ps
}

func (f *fileDecls) javaType(n *sitter.Node, kind model.SymbolKind, src *source) {
	content := src.content
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	anns, keywords := javaModifiers(n, content)
	d := decl{
		kind:        kind,
		name:        nodeText(name, content),
		line:        startLine(n),
		endLine:     endLine(n),
		signature:   headerSignature(n, content),
		visibility:  javaVisibility(keywords),
		annotations: anns,
		doc:         docAbove(src, startLine(n), false),
	}
	if sc := n.ChildByFieldName("superclass"); sc != nil {
		d.parents = append(d.parents, withKind(javaTypeRefs(sc, content), model.EdgeExtends)...)
	}
	if ifs := n.ChildByFieldName("interfaces"); ifs != nil {
		d.parents = append(d.parents, withKind(javaTypeRefs(ifs, content), model.EdgeImplements)...)
	}
	if ext := findChildByType(n, "extends_interfaces"); ext != nil {
		d.parents = append(d.parents, withKind(javaTypeRefs(ext, content), model.EdgeExtends)...)
	}
	// Annotations on their own lines start the node before the keyword.
	if line := declKeywordLine(n); line > 0 {
		d.line = line
	}
	f.add(d)
}

// declKeywordLine returns the line of the name node so declarations start
// where the header is written, not at a preceding annotation.
func declKeywordLine(n *sitter.Node) int {
	if name := n.ChildByFieldName("name"); name != nil {
		return startLine(name)
	}
	return 0
}

func (f *fileDecls) javaMethod(n *sitter.Node, src *source) {
	content := src.content
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	anns, keywords := javaModifiers(n, content)
	line := startLine(name)
	f.add(decl{
		kind:        model.KindFunction,
		name:        nodeText(name, content),
		line:        line,
		endLine:     endLine(n),
		signature:   headerSignature(n, content),
		visibility:  javaVisibility(keywords),
		annotations: anns,
		doc:         docAbove(src, startLine(n), false),
	})
	if hasAny(anns, "Provides", "Binds") {
		if ret := javaTypeRefs(n.ChildByFieldName("type"), content); len(ret) > 0 {
			f.edges = append(f.edges, pendingEdge{kind: model.EdgeProvides, name: ret[0].name, hint: ret[0].hint, line: line})
		}
	}
}

func (f *fileDecls) javaInjectParams(n *sitter.Node, content []byte) {
	params := n.ChildByFieldName("parameters")
	for _, p := range findChildrenByType(params, "formal_parameter") {
		refs := javaTypeRefs(p.ChildByFieldName("type"), content)
		if len(refs) == 0 || stopwords[refs[0].name] {
			continue
		}
		f.edges = append(f.edges, pendingEdge{
			kind:     model.EdgeInjects,
			name:     refs[0].name,
			hint:     refs[0].hint,
			line:     startLine(p),
			fromType: true,
		})
	}
}

func (f *fileDecls) javaField(n *sitter.Node, src *source) {
	content := src.content
	anns, keywords := javaModifiers(n, content)
	typ := javaTypeRefs(n.ChildByFieldName("type"), content)
	constant := hasAny(keywords, "static") && hasAny(keywords, "final")

	for i := 0; i < int(n.NamedChildCount()); i++ {
		v := n.NamedChild(uint(i))
		if v.Kind() != "variable_declarator" {
			continue
		}
		name := v.ChildByFieldName("name")
		if name == nil {
			continue
		}
		kind := model.KindProperty
		if constant {
			kind = model.KindConstant
		}
		f.add(decl{
			kind:        kind,
			name:        nodeText(name, content),
			line:        startLine(name),
			endLine:     endLine(v),
			signature:   strings.TrimSuffix(strings.Join(strings.Fields(nodeText(n, content)), " "), ";"),
			visibility:  javaVisibility(keywords),
			annotations: anns,
		})
	}
	if hasAny(anns, "Inject") && len(typ) > 0 {
		f.edges = append(f.edges, pendingEdge{kind: model.EdgeInjects, name: typ[0].name, hint: typ[0].hint, line: startLine(n), fromType: true})
	}
}
