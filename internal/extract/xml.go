package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

var (
	xmlDottedTagRE = regexp.MustCompile(`<([a-zA-Z_][\w]*(?:\.[\w$]+)+)(?:[\s/>]|$)`)
	xmlClassAttrRE = regexp.MustCompile(`\b(class|android:name|tools:context|customClass|app:layoutManager|android:targetClass|app:argType)\s*=\s*"([.\w$]+)"`)
	xmlValueDefRE  = regexp.MustCompile(`<(string-array|integer-array|declare-styleable|string|color|dimen|style|bool|integer|array|plurals|attr|item)\b[^>]*?\bname\s*=\s*"([\w.:]+)"`)
	xmlItemTypeRE  = regexp.MustCompile(`\btype\s*=\s*"(\w+)"`)
	xmlNewIDRE     = regexp.MustCompile(`@\+id/(\w+)`)
	xmlResRefRE    = regexp.MustCompile(`@(string|color|dimen|drawable|layout|style|mipmap|menu|id|anim|animator|array|bool|integer|xml|font|raw|navigation|plurals|attr)/([\w.]+)`)
)

// fileResourceDirs are res/ directories whose files each define one
// resource named after the file.
var fileResourceDirs = toSet("layout", "drawable", "mipmap", "menu", "xml", "navigation", "anim", "animator", "color", "font", "transition")

// extractXML collects class references from layouts, manifests and
// storyboards, and Android resource definitions and references.
func extractXML(p string, src *source) *fileDecls {
	f := newFileDecls()
	f.noRefs = true

	resType, inValues := androidResourceDir(p)
	if resType != "" {
		name := strings.TrimSuffix(path.Base(p), path.Ext(p))
		f.resources = append(f.resources, model.ResourceRef{Type: resType, Name: name, Line: 1, IsDefinition: true})
	}

	for n := 1; n <= src.lineCount(); n++ {
		line := src.line(n)

		for _, m := range xmlDottedTagRE.FindAllStringSubmatch(line, -1) {
			f.xmlRefs = append(f.xmlRefs, model.XMLRef{ClassName: m[1], Attribute: "tag", Line: n})
		}
		for _, m := range xmlClassAttrRE.FindAllStringSubmatch(line, -1) {
			if looksLikeClass(m[2]) {
				f.xmlRefs = append(f.xmlRefs, model.XMLRef{ClassName: m[2], Attribute: m[1], Line: n})
			}
		}

		if inValues {
			for _, m := range xmlValueDefRE.FindAllStringSubmatch(line, -1) {
				typ := valuesType(m[1], line)
				if typ == "" {
					continue
				}
				name := m[2]
				if typ == "style" {
					name = strings.ReplaceAll(name, ".", "_")
				}
				f.resources = append(f.resources, model.ResourceRef{Type: typ, Name: name, Line: n, IsDefinition: true})
			}
		}
		for _, m := range xmlNewIDRE.FindAllStringSubmatch(line, -1) {
			f.resources = append(f.resources, model.ResourceRef{Type: "id", Name: m[1], Line: n, IsDefinition: true})
		}
		for _, m := range xmlResRefRE.FindAllStringSubmatch(line, -1) {
			idx := strings.Index(line, m[0])
			if idx > 0 && line[idx-1] == '+' {
				continue
			}
			name := m[2]
			if m[1] == "style" {
				name = strings.ReplaceAll(name, ".", "_")
			}
			f.resources = append(f.resources, model.ResourceRef{Type: m[1], Name: name, Line: n})
		}
	}
	return f
}

// androidResourceDir classifies a file under res/. It returns the
// resource type a file defines by its name and whether it is a values file.
func androidResourceDir(p string) (string, bool) {
	dir := path.Dir(p)
	if path.Base(path.Dir(dir)) != "res" {
		return "", false
	}
	base := path.Base(dir)
	if i := strings.Index(base, "-"); i >= 0 {
		base = base[:i]
	}
	if base == "values" {
		return "", true
	}
	if fileResourceDirs[base] {
		return base, false
	}
	return "", false
}

func valuesType(tag, line string) string {
	switch tag {
	case "string-array", "integer-array":
		return "array"
	case "declare-styleable":
		return "styleable"
	case "item":
		if m := xmlItemTypeRE.FindStringSubmatch(line); m != nil {
			return m[1]
		}
		return ""
	}
	return tag
}

// looksLikeClass accepts values whose last segment is a type name, such as
// ".MainActivity" or "com.app.ui.HomeFragment", and rejects constants like
// "android.permission.INTERNET".
func looksLikeClass(value string) bool {
	last := value
	if i := strings.LastIndex(value, "."); i >= 0 {
		last = value[i+1:]
	}
	if i := strings.LastIndex(last, "$"); i >= 0 {
		last = last[i+1:]
	}
	return isTypeName(last) && strings.ToUpper(last) != last
}
