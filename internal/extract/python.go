package extract

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/ast-index/internal/model"
)

// pythonModule derives the dotted module path of a file, e.g.
// "app/models/user.py" -> "app.models.user".
func pythonModule(p string) string {
	mod := strings.TrimSuffix(p, path.Ext(p))
	mod = strings.TrimSuffix(mod, "/__init__")
	if mod == "__init__" {
		return ""
	}
	return strings.ReplaceAll(mod, "/", ".")
}

func extractPython(p string, src *source) *fileDecls {
	f := newFileDecls()
	f.pkg = pythonModule(p)
	f.treeCalls = true
	f.hash = true
	content := src.content

	parseTree(pythonLanguage, content, func(root *sitter.Node) {
		walkTree(root, func(n *sitter.Node) bool {
			switch n.Kind() {
			case "import_statement":
				f.pythonImport(n, content)
				return false
			case "import_from_statement":
				f.pythonFromImport(n, content)
				return false
			case "class_definition":
				f.pythonClass(n, src, pythonDecorators(n, content))
			case "function_definition":
				f.pythonFunction(n, src, pythonDecorators(n, content))
			case "expression_statement":
				f.pythonAssignment(n, content)
			case "call":
				if name := pythonCallee(n.ChildByFieldName("function"), content); name != "" {
					f.calls = append(f.calls, callSite{name: name, line: startLine(n)})
				}
			}
			return true
		})
	})
	return f
}

func (f *fileDecls) pythonImport(n *sitter.Node, content []byte) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(uint(i))
		switch c.Kind() {
		case "dotted_name":
			f.imports = append(f.imports, model.Import{Path: nodeText(c, content), Line: startLine(n)})
		case "aliased_import":
			f.imports = append(f.imports, model.Import{
				Path:  nodeText(c.ChildByFieldName("name"), content),
				Alias: nodeText(c.ChildByFieldName("alias"), content),
				Line:  startLine(n),
			})
		}
	}
}

func (f *fileDecls) pythonFromImport(n *sitter.Node, content []byte) {
	module := nodeText(n.ChildByFieldName("module_name"), content)
	if findChildByType(n, "wildcard_import") != nil {
		f.imports = append(f.imports, model.Import{Path: module, Line: startLine(n), IsWildcard: true})
		return
	}
	moduleNode := n.ChildByFieldName("module_name")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(uint(i))
		if moduleNode != nil && c.StartByte() == moduleNode.StartByte() {
			continue
		}
		imp := model.Import{Line: startLine(n)}
		switch c.Kind() {
		case "dotted_name":
			imp.Path = joinModule(module, nodeText(c, content))
		case "aliased_import":
			imp.Path = joinModule(module, nodeText(c.ChildByFieldName("name"), content))
			imp.Alias = nodeText(c.ChildByFieldName("alias"), content)
		default:
			continue
		}
		f.imports = append(f.imports, imp)
	}
}

func joinModule(module, name string) string {
	if module == "" || strings.HasSuffix(module, ".") {
		return module + name
	}
	return module + "." + name
}

// pythonDecorators returns decorator names when n is wrapped in a
// decorated_definition.
func pythonDecorators(n *sitter.Node, content []byte) []string {
	parent := n.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}
	var out []string
	for _, d := range findChildrenByType(parent, "decorator") {
		text := strings.TrimPrefix(strings.TrimSpace(nodeText(d, content)), "@")
		if i := strings.Index(text, "("); i >= 0 {
			text = text[:i]
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

func pythonVisibility(name string) model.Visibility {
	if strings.HasPrefix(name, "_") && !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")) {
		return model.VisibilityPrivate
	}
	return model.VisibilityPublic
}

// pythonDocstring returns the first line of a body's leading string.
func pythonDocstring(body *sitter.Node, content []byte) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Kind() != "string" {
		return ""
	}
	text := strings.Trim(nodeText(str, content), "\"' \n\t")
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func (f *fileDecls) pythonClass(n *sitter.Node, src *source, decorators []string) {
	content := src.content
	name := nodeText(n.ChildByFieldName("name"), content)
	if name == "" {
		return
	}
	d := decl{
		kind:        model.KindClass,
		name:        name,
		line:        startLine(n),
		endLine:     endLine(n),
		signature:   headerSignature(n, content),
		visibility:  pythonVisibility(name),
		annotations: decorators,
		doc:         pythonDocstring(n.ChildByFieldName("body"), content),
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			c := supers.NamedChild(uint(i))
			if c.Kind() != "identifier" && c.Kind() != "attribute" {
				continue // keyword arguments such as metaclass=
			}
			pname, hint := typeName(nodeText(c, content))
			if pname == "object" || pname == "" {
				continue
			}
			d.parents = append(d.parents, parent{name: pname, hint: hint, kind: model.EdgeExtends})
		}
	}
	f.add(d)
}

func (f *fileDecls) pythonFunction(n *sitter.Node, src *source, decorators []string) {
	content := src.content
	name := nodeText(n.ChildByFieldName("name"), content)
	if name == "" {
		return
	}
	f.add(decl{
		kind:        model.KindFunction,
		name:        name,
		line:        startLine(n),
		endLine:     endLine(n),
		signature:   headerSignature(n, content),
		visibility:  pythonVisibility(name),
		annotations: decorators,
		doc:         pythonDocstring(n.ChildByFieldName("body"), content),
	})
	if hasAny(decorators, "provider", "provides", "Provides") {
		if ret := n.ChildByFieldName("return_type"); ret != nil {
			rname, hint := typeName(nodeText(ret, content))
			f.edges = append(f.edges, pendingEdge{kind: model.EdgeProvides, name: rname, hint: hint, line: startLine(n)})
		}
	}
}

// pythonAssignment records module and class level assignments. Assignments
// inside functions are locals and are dropped during finalize.
func (f *fileDecls) pythonAssignment(n *sitter.Node, content []byte) {
	parent := n.Parent()
	if parent == nil {
		return
	}
	if parent.Kind() != "module" {
		if parent.Kind() != "block" || parent.Parent() == nil || parent.Parent().Kind() != "class_definition" {
			return
		}
	}
	if n.NamedChildCount() == 0 {
		return
	}
	assign := n.NamedChild(0)
	if assign.Kind() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := nodeText(left, content)
	kind := model.KindProperty
	if name == strings.ToUpper(name) && strings.ToLower(name) != name {
		kind = model.KindConstant
	}
	f.add(decl{
		kind:       kind,
		name:       name,
		line:       startLine(n),
		endLine:    endLine(n),
		signature:  strings.Join(strings.Fields(firstLine(nodeText(n, content))), " "),
		visibility: pythonVisibility(name),
	})
}

// pythonCallee returns the called name: foo() -> foo, self.bar() -> bar.
func pythonCallee(fn *sitter.Node, content []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return nodeText(fn, content)
	case "attribute":
		return nodeText(fn.ChildByFieldName("attribute"), content)
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
