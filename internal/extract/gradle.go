package extract

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/mvp-joe/ast-index/internal/model"
)

var (
	gradleIncludeRE    = regexp.MustCompile(`(?m)^\s*include\b`)
	gradleQuotedRE     = regexp.MustCompile(`["'](:?[\w\-:.]+)["']`)
	gradleProjectDirRE = regexp.MustCompile(`project\(\s*["'](:[\w\-:.]+)["']\s*\)\.projectDir\s*=\s*(?:new\s+File\([^,]+,\s*|file\(\s*)["']([^"']+)["']`)
	gradleDepRE        = regexp.MustCompile(`\b(api|implementation|testImplementation|androidTestImplementation|testFixturesImplementation|debugImplementation|releaseImplementation|compileOnly|kapt|ksp)\s*\(?\s*project\s*\(\s*(?:path\s*[:=]\s*)?["']([^"']+)["']`)
	gradleAccessorRE   = regexp.MustCompile(`\b(api|implementation|testImplementation|androidTestImplementation|testFixturesImplementation|debugImplementation|releaseImplementation|compileOnly|kapt|ksp)\s*\(\s*projects\.([\w.]+)\s*\)`)
)

// extractGradle reads module declarations from settings scripts and
// project dependencies from build scripts.
func extractGradle(p string, src *source) *fileDecls {
	f := newFileDecls()
	f.noRefs = true
	dir := path.Dir(p)

	if strings.HasPrefix(path.Base(p), "settings.gradle") {
		f.modules = gradleSettingsModules(p, dir, src)
		return f
	}

	from := GradleModuleName(dir)
	f.modules = []model.Module{{
		Name:         from,
		Kind:         model.ModuleGradle,
		RootPath:     cleanRoot(dir),
		ManifestPath: p,
	}}
	for n := 1; n <= src.lineCount(); n++ {
		line := stripLineComment(src.line(n))
		for _, m := range gradleDepRE.FindAllStringSubmatch(line, -1) {
			f.moduleDeps = append(f.moduleDeps, model.ModuleDependency{From: from, To: m[2], Kind: gradleDepKind(m[1]), Line: n})
		}
		for _, m := range gradleAccessorRE.FindAllStringSubmatch(line, -1) {
			f.moduleDeps = append(f.moduleDeps, model.ModuleDependency{From: from, To: accessorModuleName(m[2]), Kind: gradleDepKind(m[1]), Line: n})
		}
	}
	return f
}

func gradleSettingsModules(p, dir string, src *source) []model.Module {
	text := src.span(1, src.lineCount())

	overrides := make(map[string]string)
	for _, m := range gradleProjectDirRE.FindAllStringSubmatch(text, -1) {
		overrides[m[1]] = m[2]
	}

	var out []model.Module
	seen := make(map[string]bool)
	for _, loc := range gradleIncludeRE.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		trimmed := strings.TrimLeft(rest, " \t")
		var args string
		if strings.HasPrefix(trimmed, "(") {
			open := len(rest) - len(trimmed)
			end := matchClose(rest, open)
			if end < 0 {
				end = len(rest)
			}
			args = rest[open:end]
		} else {
			// Groovy style: arguments run to the end of the line, with
			// trailing commas continuing the list.
			for _, line := range strings.Split(rest, "\n") {
				args += line
				if !strings.HasSuffix(strings.TrimSpace(stripLineComment(line)), ",") {
					break
				}
			}
		}
		for _, m := range gradleQuotedRE.FindAllStringSubmatch(stripLineComment(args), -1) {
			name := m[1]
			if !strings.HasPrefix(name, ":") {
				name = ":" + name
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			root := strings.ReplaceAll(strings.TrimPrefix(name, ":"), ":", "/")
			if o, ok := overrides[name]; ok {
				root = o
			}
			out = append(out, model.Module{
				Name:         name,
				Kind:         model.ModuleGradle,
				RootPath:     cleanRoot(path.Join(dir, root)),
				ManifestPath: p,
			})
		}
	}
	return out
}

// GradleModuleName derives a Gradle project path from a directory,
// e.g. "core/data" -> ":core:data". The project root is ":".
func GradleModuleName(dir string) string {
	dir = cleanRoot(dir)
	if dir == "" {
		return ":"
	}
	return ":" + strings.ReplaceAll(dir, "/", ":")
}

func cleanRoot(dir string) string {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.TrimPrefix(dir, "./")
}

func gradleDepKind(config string) model.DependencyKind {
	switch {
	case config == "api":
		return model.DepAPI
	case config == "compileOnly":
		return model.DepCompileOnly
	case strings.HasPrefix(config, "test"), strings.HasPrefix(config, "androidTest"):
		return model.DepTest
	}
	return model.DepImplementation
}

// accessorModuleName maps a type-safe accessor such as
// "projects.core.featureLogin" back to ":core:feature-login".
func accessorModuleName(accessor string) string {
	parts := strings.Split(accessor, ".")
	for i, part := range parts {
		var b strings.Builder
		for j, r := range part {
			if unicode.IsUpper(r) && j > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		}
		parts[i] = b.String()
	}
	return ":" + strings.Join(parts, ":")
}
