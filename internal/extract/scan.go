package extract

import (
	"regexp"
	"strings"
)

// maxHeaderLines bounds how far a declaration header (supertypes, long
// parameter lists) may span.
const maxHeaderLines = 20

// source is a file split into lines, shared by every scanner.
type source struct {
	content []byte
	lines   []string
	// hashComments makes '#' start a line comment during brace matching.
	hashComments bool
}

func newSource(content []byte) *source {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return &source{content: content, lines: lines}
}

// line returns the 1-based line, or "" when out of range.
func (s *source) line(n int) string {
	if n < 1 || n > len(s.lines) {
		return ""
	}
	return s.lines[n-1]
}

func (s *source) lineCount() int { return len(s.lines) }

// span joins lines [from, to] with newlines.
func (s *source) span(from, to int) string {
	if from < 1 {
		from = 1
	}
	if to > len(s.lines) {
		to = len(s.lines)
	}
	if from > to {
		return ""
	}
	return strings.Join(s.lines[from-1:to], "\n")
}

// braceScanner tracks nesting while skipping string literals and comments.
type braceScanner struct {
	parens, brackets, braces int
	inBlock                  bool
	hash                     bool
}

// feed consumes one line, calling fn for every structural character
// outside strings and comments.
func (b *braceScanner) feed(line string, fn func(c byte)) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if b.inBlock {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				b.inBlock = false
				i++
			}
			continue
		}
		switch c {
		case '#':
			if b.hash {
				return
			}
		case '/':
			if i+1 < len(line) {
				if line[i+1] == '/' {
					return
				}
				if line[i+1] == '*' {
					b.inBlock = true
					i++
					continue
				}
			}
		case '"', '\'':
			j := i + 1
			for j < len(line) && line[j] != c {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			i = j
			continue
		case '(':
			b.parens++
		case ')':
			b.parens--
		case '[':
			b.brackets++
		case ']':
			b.brackets--
		case '{':
			b.braces++
		case '}':
			b.braces--
		}
		fn(c)
	}
}

// continuesHeader reports whether a header line ending in text carries on
// to the next line.
func continuesHeader(text string) bool {
	t := strings.TrimSpace(stripLineComment(text))
	if t == "" {
		return true
	}
	for _, suffix := range []string{",", ":", "=", "(", "->", "<", "&", "|", "where"} {
		if strings.HasSuffix(t, suffix) {
			return true
		}
	}
	return false
}

// headerEnd returns the last line of a declaration header starting at
// start, and whether a body block opens on that line.
func headerEnd(src *source, start int) (int, bool) {
	b := braceScanner{hash: src.hashComments}
	last := min(start+maxHeaderLines-1, src.lineCount())
	for n := start; n <= last; n++ {
		text := src.line(n)
		opened, terminated := false, false
		b.feed(text, func(c byte) {
			if opened || terminated {
				return
			}
			if b.parens > 0 || b.brackets > 0 {
				return
			}
			switch c {
			case '{':
				opened = true
			case ';':
				terminated = true
			}
		})
		if opened {
			return n, true
		}
		if terminated {
			return n, false
		}
		if b.parens > 0 || b.brackets > 0 || continuesHeader(text) {
			continue
		}
		if next := strings.TrimSpace(src.line(nextNonBlank(src, n))); strings.HasPrefix(next, "{") {
			return nextNonBlank(src, n), true
		}
		if nextStartsContinuation(src, n) {
			continue
		}
		return n, false
	}
	return start, false
}

func nextNonBlank(src *source, n int) int {
	for m := n + 1; m <= src.lineCount(); m++ {
		if strings.TrimSpace(src.line(m)) != "" {
			return m
		}
	}
	return n
}

// nextStartsContinuation reports whether the following line continues a
// header, e.g. a Kotlin supertype list written as ": Foo()" on its own line.
func nextStartsContinuation(src *source, n int) bool {
	next := strings.TrimSpace(src.line(nextNonBlank(src, n)))
	if nextNonBlank(src, n) == n {
		return false
	}
	return strings.HasPrefix(next, ":") || strings.HasPrefix(next, ",") || strings.HasPrefix(next, "where ")
}

// blockEnd returns the last line of the declaration starting at start. A
// header without a body ends at the header; an unclosed body runs to EOF.
func blockEnd(src *source, start int) int {
	hEnd, hasBody := headerEnd(src, start)
	if !hasBody {
		return hEnd
	}
	b := braceScanner{hash: src.hashComments}
	seen := false
	for n := start; n <= src.lineCount(); n++ {
		closed := false
		b.feed(src.line(n), func(c byte) {
			if closed {
				return
			}
			if c == '{' {
				seen = true
			}
			if c == '}' && seen && b.braces == 0 {
				closed = true
			}
		})
		if closed {
			return n
		}
	}
	return src.lineCount()
}

// stripLineComment drops a trailing // comment outside string literals.
func stripLineComment(line string) string {
	inStr := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inStr != 0:
			if c == '\\' {
				i++
			} else if c == inStr {
				inStr = 0
			}
		case c == '"' || c == '\'':
			inStr = c
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// matchClose returns the index of the bracket closing s[open], honouring
// nested (), <> and [] pairs. Returns -1 if unbalanced.
func matchClose(s string, open int) int {
	pairs := map[byte]byte{'(': ')', '<': '>', '[': ']', '{': '}'}
	want, ok := pairs[s[open]]
	if !ok {
		return -1
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case s[open]:
			depth++
		case want:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s at sep characters outside (), <>, [] and {}.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '<', '[', '{':
			depth++
		case ')', '>', ']', '}':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cutTopLevel returns s up to the first occurrence of any stop rune at
// nesting depth zero.
func cutTopLevel(s string, stops string) string {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '(', '<', '[':
			depth++
		case ')', '>', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 && strings.IndexByte(stops, c) >= 0 {
				return s[:i]
			}
		}
	}
	return s
}

var genericArgsRE = regexp.MustCompile(`<[^<>]*>`)

// typeName reduces a written type such as "com.a.Foo<Bar>?" to its simple
// name and package hint ("Foo", "com.a").
func typeName(written string) (name, hint string) {
	t := strings.TrimSpace(written)
	for strings.Contains(t, "<") {
		stripped := genericArgsRE.ReplaceAllString(t, "")
		if stripped == t {
			t = t[:strings.Index(t, "<")]
			break
		}
		t = stripped
	}
	if i := strings.IndexAny(t, "( \t"); i >= 0 {
		t = t[:i]
	}
	t = strings.Trim(t, "?!*&[]:@")
	if i := strings.LastIndex(t, "."); i >= 0 {
		return t[i+1:], t[:i]
	}
	return t, ""
}

// isTypeName reports whether s looks like a type identifier.
func isTypeName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// stripAnnotations removes leading @Annotation(args) tokens from a trimmed
// line and returns the remainder and the annotation names.
func stripAnnotations(line string) (string, []string) {
	rest := strings.TrimSpace(line)
	var anns []string
	for strings.HasPrefix(rest, "@") {
		i := 1
		for i < len(rest) && (isIdentByte(rest[i]) || rest[i] == '.') {
			i++
		}
		if i == 1 {
			break
		}
		name := rest[1:i]
		j := i
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
			j++
		}
		if j < len(rest) && rest[j] == '(' {
			end := matchClose(rest, j)
			if end < 0 {
				// Arguments continue on following lines.
				anns = append(anns, name)
				return "", anns
			}
			i = end + 1
		}
		if name == "interface" || name == "protocol" || name == "property" || name == "implementation" || name == "end" {
			break
		}
		anns = append(anns, name)
		rest = strings.TrimSpace(rest[i:])
	}
	return rest, anns
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// isCommentLine reports whether a trimmed line is only a comment.
func isCommentLine(trimmed string, hash bool) bool {
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*") {
		return true
	}
	return hash && strings.HasPrefix(trimmed, "#")
}

// docAbove collects the comment block immediately above line, skipping
// annotation-only lines in between.
func docAbove(src *source, line int, hash bool) string {
	var parts []string
	for n := line - 1; n >= 1; n-- {
		t := strings.TrimSpace(src.line(n))
		if t == "" {
			break
		}
		if rest, anns := stripAnnotations(t); len(anns) > 0 && rest == "" {
			continue
		}
		if !isCommentLine(t, hash) && !strings.HasSuffix(t, "*/") {
			break
		}
		t = strings.TrimPrefix(t, "/**")
		t = strings.TrimPrefix(t, "/*")
		t = strings.TrimSuffix(t, "*/")
		t = strings.TrimLeft(t, "/*# ")
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	doc := strings.Join(parts, " ")
	return truncate(doc, 500)
}

// annotationCollector accumulates annotation-only lines for the next
// declaration.
type annotationCollector struct {
	pending []string
}

// observe feeds a trimmed line. It returns the line with leading
// annotations stripped and the annotations that apply to it.
func (a *annotationCollector) observe(trimmed string) (string, []string) {
	rest, anns := stripAnnotations(trimmed)
	if rest == "" && len(anns) > 0 {
		a.pending = append(a.pending, anns...)
		return "", nil
	}
	if rest == "" || isCommentLine(rest, false) {
		return rest, nil
	}
	all := append(a.pending, anns...)
	a.pending = nil
	return rest, all
}

// signatureOf returns the header text of a declaration, cut before its
// body or expression.
func signatureOf(src *source, start int, stops string) string {
	end, _ := headerEnd(src, start)
	text := src.span(start, end)
	text = strings.Join(strings.Fields(text), " ")
	text, _ = stripAnnotations(text)
	sig := strings.TrimSpace(cutTopLevel(text, stops))
	return truncate(sig, 300)
}
