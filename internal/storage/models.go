package storage

import (
	"time"

	"github.com/mvp-joe/ast-index/internal/model"
)

// FileRow represents a row of the files table.
type FileRow struct {
	ID          int64
	Path        string
	Language    model.Language
	Fingerprint string    // sha256 of content
	ModTime     time.Time // from unix nanoseconds
	Size        int64
	ModuleID    int64 // 0 when unassigned
	ModuleName  string
	Failure     string // last extraction error, empty when indexed
}

// Indexed reports whether the stored rows reflect a successful extraction.
func (f FileRow) Indexed() bool {
	return f.Failure == ""
}

// SymbolRow is a symbol joined with its declaring file and module.
type SymbolRow struct {
	model.Symbol
	FileID     int64
	Path       string
	ModuleID   int64
	ModuleName string
}

// EdgeRow is an edge joined with its source file and enclosing symbol.
type EdgeRow struct {
	ID             int64
	Kind           model.EdgeKind
	FileID         int64
	Path           string
	ModuleID       int64
	Line           int
	Context        string
	SourceSymbolID string // "" for file scope
	SourceName     string // enclosing symbol name
	TargetName     string
	ScopeHint      string
	TargetSymbolID string // "" when dangling
	Candidates     int
}

// Target returns the two-state target of the edge.
func (e EdgeRow) Target() model.Target {
	if e.TargetSymbolID != "" {
		return model.ResolvedTarget(e.TargetSymbolID, e.TargetName)
	}
	return model.UnresolvedTarget(e.TargetName, e.ScopeHint)
}

// ImportRow is an import with its declaring file.
type ImportRow struct {
	model.Import
	FileID int64
	Path   string
}

// XMLRefRow is an xml class reference with its file.
type XMLRefRow struct {
	model.XMLRef
	Path     string
	ModuleID int64
}

// ResourceRow is a resource definition or reference with its file.
type ResourceRow struct {
	model.ResourceRef
	Path     string
	ModuleID int64
}

// MarkerRow is a TODO-style marker with its file.
type MarkerRow struct {
	model.Marker
	Path string
}

// ModuleRow is a module with its declared dependency counts.
type ModuleRow struct {
	model.Module
	FileCount int
}

// ModuleDepRow is a resolved module dependency.
type ModuleDepRow struct {
	FromID   int64
	FromName string
	ToID     int64
	ToName   string
	Kind     model.DependencyKind
}

// Counts summarizes the index for the stats command.
type Counts struct {
	Files      int
	Symbols    int
	Edges      int
	Dangling   int
	Ambiguous  int
	Imports    int
	Modules    int
	ModuleDeps int
	XMLRefs    int
	Resources  int
	Markers    int
	Unindexed  int
	ByLanguage map[model.Language]int
	ByKind     map[model.SymbolKind]int
}
