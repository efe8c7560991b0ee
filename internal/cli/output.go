package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// printer writes results either as indented JSON or as text lines.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, opts *options) *printer {
	return &printer{w: w, json: opts.json}
}

// emit prints v as JSON, or calls text to render it for humans.
func (p *printer) emit(v interface{}, text func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return nil
	}
	text(p.w)
	return nil
}

// list prints items, or "No results" when there are none. JSON output is
// always an array.
func list[T any](p *printer, items []T, line func(w io.Writer, item T)) error {
	if items == nil {
		items = []T{}
	}
	return p.emit(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "No results")
			return
		}
		for _, item := range items {
			line(w, item)
		}
	})
}

// symbolOut is a symbol as printed by the CLI.
type symbolOut struct {
	Name          string           `json:"name"`
	QualifiedName string           `json:"qualified_name"`
	Kind          model.SymbolKind `json:"kind"`
	Path          string           `json:"path"`
	Line          int              `json:"line"`
	Module        string           `json:"module,omitempty"`
	Visibility    model.Visibility `json:"visibility,omitempty"`
	Signature     string           `json:"signature,omitempty"`
	Annotations   []string         `json:"annotations,omitempty"`
}

func symbolsOut(rows []storage.SymbolRow) []symbolOut {
	out := make([]symbolOut, 0, len(rows))
	for _, r := range rows {
		out = append(out, symbolOut{
			Name:          r.Name,
			QualifiedName: r.QualifiedName,
			Kind:          r.Kind,
			Path:          r.Path,
			Line:          r.StartLine,
			Module:        r.ModuleName,
			Visibility:    r.Visibility,
			Signature:     r.Signature,
			Annotations:   r.Annotations,
		})
	}
	return out
}

func printSymbol(w io.Writer, s symbolOut) {
	fmt.Fprintf(w, "%s:%d  %s %s", s.Path, s.Line, s.Kind, s.QualifiedName)
	if len(s.Annotations) > 0 {
		fmt.Fprintf(w, "  @%s", strings.Join(s.Annotations, " @"))
	}
	fmt.Fprintln(w)
}

type xmlRefOut struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	ClassName string `json:"class_name"`
	Attribute string `json:"attribute,omitempty"`
}

func xmlRefsOut(rows []storage.XMLRefRow) []xmlRefOut {
	out := make([]xmlRefOut, 0, len(rows))
	for _, r := range rows {
		out = append(out, xmlRefOut{Path: r.Path, Line: r.Line, ClassName: r.ClassName, Attribute: r.Attribute})
	}
	return out
}

type resourceOut struct {
	Path       string `json:"path"`
	Line       int    `json:"line"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Definition bool   `json:"definition"`
}

func resourcesOut(rows []storage.ResourceRow) []resourceOut {
	out := make([]resourceOut, 0, len(rows))
	for _, r := range rows {
		out = append(out, resourceOut{Path: r.Path, Line: r.Line, Type: r.Type, Name: r.Name, Definition: r.IsDefinition})
	}
	return out
}

type markerOut struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func markersOut(rows []storage.MarkerRow) []markerOut {
	out := make([]markerOut, 0, len(rows))
	for _, r := range rows {
		out = append(out, markerOut{Path: r.Path, Line: r.Line, Kind: r.Kind, Text: r.Text})
	}
	return out
}

type moduleOut struct {
	Name     string           `json:"name"`
	Kind     model.ModuleKind `json:"kind"`
	Path     string           `json:"path"`
	Manifest string           `json:"manifest,omitempty"`
	Files    int              `json:"files"`
}

func modulesOut(rows []storage.ModuleRow) []moduleOut {
	out := make([]moduleOut, 0, len(rows))
	for _, r := range rows {
		out = append(out, moduleOut{Name: r.Name, Kind: r.Kind, Path: r.RootPath, Manifest: r.ManifestPath, Files: r.FileCount})
	}
	return out
}
