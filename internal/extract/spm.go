package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

var (
	spmTargetRE = regexp.MustCompile(`\.(target|executableTarget|testTarget|binaryTarget|macro|plugin)\s*\(`)
	spmNameRE   = regexp.MustCompile(`\bname\s*:\s*"([^"]+)"`)
	spmPathRE   = regexp.MustCompile(`\bpath\s*:\s*"([^"]+)"`)
	spmDepsRE   = regexp.MustCompile(`\bdependencies\s*:\s*\[`)
	spmDepRE    = regexp.MustCompile(`^"([^"]+)"$|^\.(?:target|byName)\s*\(\s*name\s*:\s*"([^"]+)"`)
)

// extractSPM reads targets and their intra-package dependencies from a
// Package.swift manifest.
func extractSPM(p string, src *source) *fileDecls {
	f := newFileDecls()
	f.noRefs = true
	dir := path.Dir(p)
	text := src.span(1, src.lineCount())

	for pos := 0; pos < len(text); {
		loc := spmTargetRE.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		kind := text[pos+loc[2] : pos+loc[3]]
		open := pos + loc[1] - 1
		end := matchClose(text, open)
		if end < 0 {
			end = len(text) - 1
		}
		body := text[open+1 : end]
		line := strings.Count(text[:pos+loc[0]], "\n") + 1
		pos = end + 1

		nameMatch := spmNameRE.FindStringSubmatch(spmOwnArgs(body))
		if nameMatch == nil {
			continue
		}
		name := nameMatch[1]

		root := ""
		if m := spmPathRE.FindStringSubmatch(spmOwnArgs(body)); m != nil {
			root = m[1]
		} else if kind == "testTarget" {
			root = "Tests/" + name
		} else if kind != "binaryTarget" {
			root = "Sources/" + name
		}
		mod := model.Module{
			Name:         name,
			Kind:         spmModuleKind(kind),
			ManifestPath: p,
		}
		if root != "" {
			mod.RootPath = cleanRoot(path.Join(dir, root))
		}
		f.modules = append(f.modules, mod)

		depKind := model.DepImplementation
		if kind == "testTarget" {
			depKind = model.DepTest
		}
		for _, dep := range spmDependencies(body) {
			f.moduleDeps = append(f.moduleDeps, model.ModuleDependency{From: name, To: dep, Kind: depKind, Line: line})
		}
	}
	return f
}

// spmOwnArgs blanks out the dependencies list so name: and path: match the
// target's own arguments.
func spmOwnArgs(body string) string {
	loc := spmDepsRE.FindStringIndex(body)
	if loc == nil {
		return body
	}
	end := matchClose(body, loc[1]-1)
	if end < 0 {
		return body[:loc[0]]
	}
	return body[:loc[0]] + body[end+1:]
}

// spmDependencies returns target dependencies declared by name. Products
// of external packages are skipped.
func spmDependencies(body string) []string {
	loc := spmDepsRE.FindStringIndex(body)
	if loc == nil {
		return nil
	}
	end := matchClose(body, loc[1]-1)
	if end < 0 {
		return nil
	}
	var out []string
	for _, item := range splitTopLevel(body[loc[1]:end], ',') {
		m := spmDepRE.FindStringSubmatch(strings.TrimSpace(item))
		if m == nil {
			continue
		}
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}

func spmModuleKind(kind string) model.ModuleKind {
	switch kind {
	case "testTarget":
		return model.ModuleTestTarget
	case "binaryTarget":
		return model.ModuleBinaryTarget
	}
	return model.ModuleSPMTarget
}
