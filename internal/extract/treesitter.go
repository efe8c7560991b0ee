package extract

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var (
	javaLanguage   = sitter.NewLanguage(java.Language())
	pythonLanguage = sitter.NewLanguage(python.Language())
)

// parseTree parses content and hands the root to fn. The tree is released
// when fn returns. It reports false when no tree could be built.
func parseTree(lang *sitter.Language, content []byte, fn func(root *sitter.Node)) bool {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return false
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return false
	}
	defer tree.Close()

	fn(tree.RootNode())
	return true
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// startLine and endLine are 1-based.
func startLine(node *sitter.Node) int { return int(node.StartPosition().Row) + 1 }
func endLine(node *sitter.Node) int   { return int(node.EndPosition().Row) + 1 }

// walkTree visits nodes depth-first; returning false skips a subtree.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visitor(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(uint(i)), visitor)
	}
}

func findChildByType(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(uint(i)); child.Kind() == kind {
			return child
		}
	}
	return nil
}

func findChildrenByType(node *sitter.Node, kinds ...string) []*sitter.Node {
	if node == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		for _, k := range kinds {
			if child.Kind() == k {
				out = append(out, child)
				break
			}
		}
	}
	return out
}

// headerSignature returns the text of node up to its body, flattened.
func headerSignature(node *sitter.Node, content []byte) string {
	text := nodeText(node, content)
	if body := node.ChildByFieldName("body"); body != nil {
		text = string(content[node.StartByte():body.StartByte()])
	}
	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimSuffix(strings.TrimSpace(text), ":")
	return truncate(text, 300)
}
