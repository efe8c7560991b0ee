package query

import (
	"context"
	"strings"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// XMLUsages returns layout, manifest and storyboard references to a class.
// A qualified name also matches relative references such as ".MainActivity".
func (e *Engine) XMLUsages(ctx context.Context, class, module string) ([]storage.XMLRefRow, error) {
	class, err := requireName(class)
	if err != nil {
		return nil, err
	}
	var out []storage.XMLRefRow
	err = e.view(ctx, func(r *storage.Reader) error {
		mod, err := moduleID(ctx, r, module)
		if err != nil {
			return err
		}
		out, err = r.XMLRefs(ctx, class, mod)
		return err
	})
	return out, err
}

// ResourceUsages returns definitions and references of an Android resource.
// resource is "type/name", "@type/name", "R.type.name" or a bare name.
func (e *Engine) ResourceUsages(ctx context.Context, resource, module string) ([]storage.ResourceRow, error) {
	resource, err := requireName(resource)
	if err != nil {
		return nil, err
	}
	q := ParseResource(resource)
	var out []storage.ResourceRow
	err = e.view(ctx, func(r *storage.Reader) error {
		if q.ModuleID, err = moduleID(ctx, r, module); err != nil {
			return err
		}
		out, err = r.Resources(ctx, q)
		return err
	})
	return out, err
}

// ParseResource splits the accepted resource spellings into a query.
func ParseResource(s string) storage.ResourceQuery {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "@"), "+")
	s = strings.TrimPrefix(s, "R.")
	if i := strings.IndexAny(s, "/."); i > 0 && i < len(s)-1 {
		return storage.ResourceQuery{Type: s[:i], Name: s[i+1:]}
	}
	return storage.ResourceQuery{Name: s}
}

// Todo returns TODO/FIXME/HACK/XXX markers whose kind or text contains
// pattern; an empty pattern lists all of them.
func (e *Engine) Todo(ctx context.Context, pattern, module string, limit int) ([]storage.MarkerRow, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []storage.MarkerRow
	err := e.view(ctx, func(r *storage.Reader) error {
		mod, err := moduleID(ctx, r, module)
		if err != nil {
			return err
		}
		out, err = r.Markers(ctx, strings.TrimSpace(pattern), mod, limit)
		return err
	})
	return out, err
}

// Annotated returns symbols carrying an annotation or decorator, given
// with or without the leading "@".
func (e *Engine) Annotated(ctx context.Context, annotation, module string) ([]storage.SymbolRow, error) {
	annotation, err := requireName(strings.TrimPrefix(strings.TrimSpace(annotation), "@"))
	if err != nil {
		return nil, err
	}
	var out []storage.SymbolRow
	err = e.view(ctx, func(r *storage.Reader) error {
		mod, err := moduleID(ctx, r, module)
		if err != nil {
			return err
		}
		out, err = r.AnnotatedSymbols(ctx, annotation, mod)
		return err
	})
	return out, err
}

// unusedKinds are the declarations UnusedSymbols considers.
var unusedKinds = []model.SymbolKind{
	model.KindClass, model.KindInterface, model.KindProtocol, model.KindStruct,
	model.KindEnum, model.KindObject, model.KindFunction, model.KindTypeAlias,
}

// entryPointAnnotations mark symbols reached by frameworks rather than code.
var entryPointAnnotations = map[string]bool{
	"Composable": true, "Preview": true, "Provides": true, "Binds": true,
	"Test": true, "IBAction": true, "IBOutlet": true, "objc": true,
}

// UnusedSymbols lists declarations nothing in the index references: no
// edge resolves to them, no dangling edge names them, and no xml file
// mentions them. Framework entry points are left out.
func (e *Engine) UnusedSymbols(ctx context.Context, module string, exportedOnly bool) ([]storage.SymbolRow, error) {
	var out []storage.SymbolRow
	err := e.view(ctx, func(r *storage.Reader) error {
		mod, err := moduleID(ctx, r, module)
		if err != nil {
			return err
		}
		syms, err := r.UnreferencedSymbols(ctx, unusedKinds, mod, exportedOnly)
		if err != nil {
			return err
		}
		for _, s := range syms {
			if !isEntryPoint(s) {
				out = append(out, s)
			}
		}
		return nil
	})
	return out, err
}

func isEntryPoint(s storage.SymbolRow) bool {
	switch s.Name {
	case "main", "onCreate", "init", "__init__", "setUp", "tearDown":
		return true
	}
	for _, a := range s.Annotations {
		if entryPointAnnotations[a] {
			return true
		}
	}
	return strings.HasPrefix(s.Name, "test")
}

// Stats summarizes the index.
type Stats struct {
	storage.Counts
	ProjectRoot  string `json:"project_root"`
	LastRebuild  string `json:"last_rebuild,omitempty"`
	LastUpdate   string `json:"last_update,omitempty"`
	LastFailures string `json:"last_failures,omitempty"`
	Generation   string `json:"generation"`
	IndexPath    string `json:"index_path"`
}

// Stats returns table counts and run metadata.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{IndexPath: e.store.Path()}
	err := e.view(ctx, func(r *storage.Reader) error {
		counts, err := r.Counts(ctx)
		if err != nil {
			return err
		}
		st.Counts = *counts
		for key, dst := range map[string]*string{
			storage.MetaProjectRoot:  &st.ProjectRoot,
			storage.MetaLastRebuild:  &st.LastRebuild,
			storage.MetaLastUpdate:   &st.LastUpdate,
			storage.MetaLastFailures: &st.LastFailures,
			storage.MetaGeneration:   &st.Generation,
		} {
			if *dst, err = r.Metadata(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
