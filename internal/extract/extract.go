// Package extract turns one source file into symbols, edges, imports and
// audit facets.
//
// Each supported grammar family is one case of a switch over
// model.Language. Extractors are tolerant: they scan lines (or walk a
// tree-sitter tree with error nodes) and emit whatever declarations they can
// recognise, so a file saved mid-edit still yields a useful index.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
)

// ErrUnsupported is returned for files no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// Failure reports that one file could not be extracted. The builder keeps
// the file's previously committed rows and counts the failure.
type Failure struct {
	Path string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", f.Path, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

var extensions = map[string]model.Language{
	".kt":         model.LangKotlin,
	".kts":        model.LangKotlin,
	".java":       model.LangJava,
	".swift":      model.LangSwift,
	".m":          model.LangObjC,
	".mm":         model.LangObjC,
	".h":          model.LangObjC,
	".pm":         model.LangPerl,
	".pl":         model.LangPerl,
	".t":          model.LangPerl,
	".py":         model.LangPython,
	".xml":        model.LangXML,
	".storyboard": model.LangXML,
	".xib":        model.LangXML,
}

var manifests = map[string]model.Language{
	"settings.gradle":     model.LangGradle,
	"settings.gradle.kts": model.LangGradle,
	"build.gradle":        model.LangGradle,
	"build.gradle.kts":    model.LangGradle,
	"Package.swift":       model.LangSPM,
}

// DetectLanguage maps a project-relative path to its extractor.
func DetectLanguage(p string) model.Language {
	base := path.Base(p)
	if lang, ok := manifests[base]; ok {
		return lang
	}
	return extensions[strings.ToLower(path.Ext(base))]
}

// IsSupported reports whether some extractor handles the path.
func IsSupported(p string) bool {
	return DetectLanguage(p) != model.LangUnknown
}

// Extensions lists the file extensions the extractors handle.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}

// Fingerprint returns the content hash used for change detection.
func Fingerprint(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Extract runs the extractor for lang over content. Panics inside an
// extractor are converted to a *Failure so one bad file never aborts a batch.
func Extract(p string, lang model.Language, content []byte) (res *model.FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &Failure{Path: p, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if lang == model.LangUnknown {
		lang = DetectLanguage(p)
	}

	src := newSource(content)
	var f *fileDecls
	switch lang {
	case model.LangKotlin:
		f = extractKotlin(src)
	case model.LangJava:
		f = extractJava(src)
	case model.LangSwift:
		f = extractSwift(src)
	case model.LangObjC:
		f = extractObjC(src)
	case model.LangPerl:
		f = extractPerl(src)
	case model.LangPython:
		f = extractPython(p, src)
	case model.LangGradle:
		f = extractGradle(p, src)
	case model.LangSPM:
		f = extractSPM(p, src)
	case model.LangXML:
		f = extractXML(p, src)
	default:
		return nil, &Failure{Path: p, Err: ErrUnsupported}
	}

	res = f.finalize(p, lang, src)
	res.Fingerprint = Fingerprint(content)
	res.Size = int64(len(content))
	return res, nil
}
