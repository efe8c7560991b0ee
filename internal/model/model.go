// Package model defines the symbol graph types shared by extractors, the
// store, the builder and the query engine.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language identifies which extractor handles a file.
type Language string

const (
	LangUnknown Language = ""
	LangKotlin  Language = "kotlin"
	LangJava    Language = "java"
	LangSwift   Language = "swift"
	LangObjC    Language = "objc"
	LangPerl    Language = "perl"
	LangPython  Language = "python"
	LangGradle  Language = "gradle"
	LangSPM     Language = "spm"
	LangXML     Language = "xml"
)

// IsManifest reports whether files of this language declare modules.
func (l Language) IsManifest() bool {
	return l == LangGradle || l == LangSPM
}

// SymbolKind is the declaration kind of a symbol.
type SymbolKind string

const (
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindProtocol  SymbolKind = "protocol"
	KindStruct    SymbolKind = "struct"
	KindFunction  SymbolKind = "function"
	KindProperty  SymbolKind = "property"
	KindEnum      SymbolKind = "enum"
	KindObject    SymbolKind = "object"
	KindExtension SymbolKind = "extension"
	KindTypeAlias SymbolKind = "typealias"
	KindPackage   SymbolKind = "package"
	KindConstant  SymbolKind = "constant"
)

// TypeKinds are the kinds that can take part in a type hierarchy.
var TypeKinds = []SymbolKind{
	KindClass, KindInterface, KindProtocol, KindStruct, KindEnum,
	KindObject, KindExtension, KindTypeAlias, KindPackage,
}

// IsType reports whether k declares a type.
func (k SymbolKind) IsType() bool {
	for _, t := range TypeKinds {
		if t == k {
			return true
		}
	}
	return false
}

// EdgeKind tags a directed relation between symbols.
type EdgeKind string

const (
	EdgeReference  EdgeKind = "reference"
	EdgeCall       EdgeKind = "call"
	EdgeImplements EdgeKind = "implements"
	EdgeExtends    EdgeKind = "extends"
	EdgeInjects    EdgeKind = "injects"
	EdgeProvides   EdgeKind = "provides"
)

// IsInheritance reports whether the edge is part of a type hierarchy.
func (k EdgeKind) IsInheritance() bool {
	return k == EdgeExtends || k == EdgeImplements
}

// CandidateKinds returns the symbol kinds an edge of this kind may resolve to.
func (k EdgeKind) CandidateKinds() []SymbolKind {
	if k == EdgeCall {
		return []SymbolKind{KindFunction}
	}
	return TypeKinds
}

// Visibility of a declaration.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityInternal  Visibility = "internal"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
)

// Symbol is a named declaration owned by exactly one file.
type Symbol struct {
	ID            string
	Kind          SymbolKind
	Name          string
	Scope         string // enclosing package/type path, "" at top level
	QualifiedName string
	StartLine     int // 1-based, inclusive
	EndLine       int
	Visibility    Visibility
	Signature     string
	Doc           string
	Annotations   []string
	BodyHash      string
	Ordinal       int // declaration order among same (QualifiedName, Kind) in the file
}

// Contains reports whether line falls within the symbol's source range.
func (s *Symbol) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// HasAnnotation reports whether the symbol carries the named annotation.
func (s *Symbol) HasAnnotation(name string) bool {
	for _, a := range s.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

var symbolNamespace = uuid.MustParse("6f1c3a52-6d1e-4c8e-9a0b-2b4f6c1d9e70")

// SymbolID derives the stable identity of a declaration.
func SymbolID(path, qualifiedName string, kind SymbolKind, ordinal int) string {
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d", path, qualifiedName, kind, ordinal)
	return uuid.NewSHA1(symbolNamespace, []byte(key)).String()
}

// TargetState discriminates edge targets.
type TargetState int

const (
	Unresolved TargetState = iota
	Resolved
)

func (s TargetState) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "unresolved"
}

// Target is the two-state endpoint of an edge: either a concrete symbol id,
// or a name (with optional scope hint) awaiting resolution.
type Target struct {
	State     TargetState
	SymbolID  string
	Name      string
	ScopeHint string
}

// ResolvedTarget binds an edge to a symbol, keeping the referenced name.
func ResolvedTarget(symbolID, name string) Target {
	return Target{State: Resolved, SymbolID: symbolID, Name: name}
}

// UnresolvedTarget leaves an edge dangling by name.
func UnresolvedTarget(name, scopeHint string) Target {
	return Target{State: Unresolved, Name: name, ScopeHint: scopeHint}
}

// Edge is a directed relation from a symbol (or file scope) to a target.
type Edge struct {
	Kind           EdgeKind
	SourceSymbolID string // empty means file scope
	Target         Target
	Line           int
	Context        string
	Candidates     int // number of candidates considered when resolved
}

// Import is an import/include statement.
type Import struct {
	Path       string
	Alias      string
	Line       int
	IsWildcard bool
}

// Package returns the import path without its last segment.
func (i Import) Package() string {
	if i.IsWildcard {
		return i.Path
	}
	pkg, _ := i.split()
	return pkg
}

// Simple returns the last segment of the import path.
func (i Import) Simple() string {
	_, simple := i.split()
	return simple
}

func (i Import) split() (string, string) {
	sep := "."
	switch {
	case strings.Contains(i.Path, "::"):
		sep = "::"
	case strings.Contains(i.Path, "/"):
		sep = "/"
	}
	idx := strings.LastIndex(i.Path, sep)
	if idx < 0 {
		return "", i.Path
	}
	return i.Path[:idx], i.Path[idx+len(sep):]
}

// Marker is a TODO-style comment.
type Marker struct {
	Kind string
	Text string
	Line int
}

// XMLRef is a class name referenced from a layout, manifest or storyboard.
type XMLRef struct {
	ClassName string
	Attribute string
	Line      int
}

// SimpleName returns the class name without its package.
func (x XMLRef) SimpleName() string {
	name := strings.TrimPrefix(x.ClassName, ".")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// ResourceRef is an Android resource definition or reference.
type ResourceRef struct {
	Type         string // string, layout, drawable, color, ...
	Name         string
	Line         int
	IsDefinition bool
}

// Key returns "type/name".
func (r ResourceRef) Key() string {
	return r.Type + "/" + r.Name
}

// ModuleKind is the build-system kind of a module.
type ModuleKind string

const (
	ModuleGradle       ModuleKind = "gradle"
	ModuleSPMTarget    ModuleKind = "spm-target"
	ModuleTestTarget   ModuleKind = "test-target"
	ModuleBinaryTarget ModuleKind = "binary-target"
)

// DependencyKind is the scope of a module dependency.
type DependencyKind string

const (
	DepAPI            DependencyKind = "api"
	DepImplementation DependencyKind = "implementation"
	DepTest           DependencyKind = "test"
	DepCompileOnly    DependencyKind = "compile-only"
)

// Module is a build-system compilation unit.
type Module struct {
	ID           int64
	Name         string
	Kind         ModuleKind
	RootPath     string // relative to project root, "" for the root module
	ManifestPath string
}

// ModuleDependency is a declared dependency between modules, by name.
type ModuleDependency struct {
	From string
	To   string
	Kind DependencyKind
	Line int
}

// FileResult is everything one extraction produced for one file.
type FileResult struct {
	Path        string
	Language    Language
	Fingerprint string
	ModTime     time.Time
	Size        int64

	Symbols   []Symbol
	Edges     []Edge
	Imports   []Import
	Markers   []Marker
	XMLRefs   []XMLRef
	Resources []ResourceRef

	Modules    []Module
	ModuleDeps []ModuleDependency
}

// SymbolNames returns the distinct names declared in the result.
func (r *FileResult) SymbolNames() []string {
	seen := make(map[string]bool, len(r.Symbols))
	names := make([]string, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	return names
}
