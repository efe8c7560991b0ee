package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/ast-index/internal/model"
)

// Reader serves read queries against one snapshot. Obtain one via Store.View.
type Reader struct {
	q execQueryer
}

var symbolColumns = []string{
	"s.id", "s.kind", "s.name", "s.scope", "s.qualified_name", "s.start_line", "s.end_line",
	"s.visibility", "s.signature", "s.doc", "s.body_hash", "s.ordinal",
	"s.file_id", "f.path", "COALESCE(f.module_id, 0)", "COALESCE(m.name, '')",
}

func selectSymbols() sq.SelectBuilder {
	return sq.Select(symbolColumns...).
		From("symbols s").
		Join("files f ON f.id = s.file_id").
		LeftJoin("modules m ON m.id = f.module_id")
}

func (r *Reader) querySymbols(ctx context.Context, b sq.SelectBuilder) ([]SymbolRow, error) {
	rows, err := b.RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolRow
	for rows.Next() {
		var s SymbolRow
		var kind, vis string
		if err := rows.Scan(&s.ID, &kind, &s.Name, &s.Scope, &s.QualifiedName, &s.StartLine, &s.EndLine,
			&vis, &s.Signature, &s.Doc, &s.BodyHash, &s.Ordinal,
			&s.FileID, &s.Path, &s.ModuleID, &s.ModuleName); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		s.Kind = model.SymbolKind(kind)
		s.Visibility = model.Visibility(vis)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.attachAnnotations(ctx, out)
}

func (r *Reader) attachAnnotations(ctx context.Context, syms []SymbolRow) error {
	if len(syms) == 0 {
		return nil
	}
	index := make(map[string]int, len(syms))
	ids := make([]string, 0, len(syms))
	for i, s := range syms {
		index[s.ID] = i
		ids = append(ids, s.ID)
	}
	for start := 0; start < len(ids); start += 500 {
		end := min(start+500, len(ids))
		rows, err := sq.Select("symbol_id", "name").
			From("symbol_annotations").
			Where(sq.Eq{"symbol_id": ids[start:end]}).
			OrderBy("name").
			RunWith(r.q).
			QueryContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to query annotations: %w", err)
		}
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return err
			}
			i := index[id]
			syms[i].Annotations = append(syms[i].Annotations, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// SymbolsByName returns symbols with exactly this name, optionally limited
// to some kinds.
func (r *Reader) SymbolsByName(ctx context.Context, name string, kinds ...model.SymbolKind) ([]SymbolRow, error) {
	b := selectSymbols().Where(sq.Eq{"s.name": name})
	if len(kinds) > 0 {
		b = b.Where(sq.Eq{"s.kind": kindStrings(kinds)})
	}
	return r.querySymbols(ctx, b.OrderBy("f.path", "s.start_line"))
}

// SymbolsByQualifiedName returns symbols whose qualified name matches exactly.
func (r *Reader) SymbolsByQualifiedName(ctx context.Context, qn string) ([]SymbolRow, error) {
	return r.querySymbols(ctx, selectSymbols().Where(sq.Eq{"s.qualified_name": qn}).OrderBy("f.path", "s.start_line"))
}

// SymbolsByPrefix returns symbols whose name starts with prefix, case-insensitively.
func (r *Reader) SymbolsByPrefix(ctx context.Context, prefix string, limit int) ([]SymbolRow, error) {
	b := selectSymbols().
		Where("s.name LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		OrderBy("length(s.name)", "f.path")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.querySymbols(ctx, b)
}

// SymbolByID returns one symbol, or nil when absent.
func (r *Reader) SymbolByID(ctx context.Context, id string) (*SymbolRow, error) {
	syms, err := r.querySymbols(ctx, selectSymbols().Where(sq.Eq{"s.id": id}))
	if err != nil || len(syms) == 0 {
		return nil, err
	}
	return &syms[0], nil
}

// SymbolsInFile returns a file's symbols in declaration order.
func (r *Reader) SymbolsInFile(ctx context.Context, path string) ([]SymbolRow, error) {
	return r.querySymbols(ctx, selectSymbols().Where(sq.Eq{"f.path": path}).OrderBy("s.start_line", "s.ordinal"))
}

// SymbolsInModule returns a module's symbols; exported limits to non-private ones.
func (r *Reader) SymbolsInModule(ctx context.Context, moduleID int64, exported bool) ([]SymbolRow, error) {
	b := selectSymbols().Where(sq.Eq{"f.module_id": moduleID})
	if exported {
		b = b.Where(sq.NotEq{"s.visibility": string(model.VisibilityPrivate)})
	}
	return r.querySymbols(ctx, b.OrderBy("f.path", "s.start_line"))
}

// AnnotatedSymbols returns symbols carrying the annotation.
func (r *Reader) AnnotatedSymbols(ctx context.Context, annotation string, moduleID int64) ([]SymbolRow, error) {
	b := selectSymbols().
		Join("symbol_annotations a ON a.symbol_id = s.id").
		Where(sq.Eq{"a.name": annotation})
	if moduleID != 0 {
		b = b.Where(sq.Eq{"f.module_id": moduleID})
	}
	return r.querySymbols(ctx, b.OrderBy("f.path", "s.start_line"))
}

// UnreferencedSymbols returns symbols of the given kinds with no incoming
// edge (resolved or by name) and no xml reference.
func (r *Reader) UnreferencedSymbols(ctx context.Context, kinds []model.SymbolKind, moduleID int64, exportedOnly bool) ([]SymbolRow, error) {
	b := selectSymbols().
		Where(sq.Eq{"s.kind": kindStrings(kinds)}).
		Where("NOT EXISTS (SELECT 1 FROM edges e WHERE e.target_symbol_id = s.id)").
		Where("NOT EXISTS (SELECT 1 FROM edges e WHERE e.target_symbol_id IS NULL AND e.target_name = s.name)").
		Where("NOT EXISTS (SELECT 1 FROM xml_refs x WHERE x.simple_name = s.name)")
	if moduleID != 0 {
		b = b.Where(sq.Eq{"f.module_id": moduleID})
	}
	if exportedOnly {
		b = b.Where(sq.NotEq{"s.visibility": string(model.VisibilityPrivate)})
	}
	return r.querySymbols(ctx, b.OrderBy("f.path", "s.start_line"))
}

// EdgeFilter selects edges for traversal.
type EdgeFilter struct {
	Kinds    []model.EdgeKind
	ModuleID int64 // source file's module; 0 for any
}

var edgeColumns = []string{
	"e.id", "e.kind", "e.file_id", "f.path", "COALESCE(f.module_id, 0)", "e.line", "e.context",
	"COALESCE(e.source_symbol_id, '')", "COALESCE(src.name, '')",
	"e.target_name", "e.scope_hint", "COALESCE(e.target_symbol_id, '')", "e.candidates",
}

func selectEdges() sq.SelectBuilder {
	return sq.Select(edgeColumns...).
		From("edges e").
		Join("files f ON f.id = e.file_id").
		LeftJoin("symbols src ON src.id = e.source_symbol_id")
}

func (f EdgeFilter) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		b = b.Where(sq.Eq{"e.kind": kinds})
	}
	if f.ModuleID != 0 {
		b = b.Where(sq.Eq{"f.module_id": f.ModuleID})
	}
	return b
}

func (r *Reader) queryEdges(ctx context.Context, b sq.SelectBuilder) ([]EdgeRow, error) {
	rows, err := b.RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var e EdgeRow
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.FileID, &e.Path, &e.ModuleID, &e.Line, &e.Context,
			&e.SourceSymbolID, &e.SourceName, &e.TargetName, &e.ScopeHint, &e.TargetSymbolID, &e.Candidates); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Kind = model.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesInto returns edges whose target is one of ids, plus dangling edges
// that reference name. Sorted by path then line.
func (r *Reader) EdgesInto(ctx context.Context, ids []string, name string, f EdgeFilter) ([]EdgeRow, error) {
	or := sq.Or{}
	if len(ids) > 0 {
		or = append(or, sq.Eq{"e.target_symbol_id": ids})
	}
	if name != "" {
		or = append(or, sq.And{sq.Eq{"e.target_symbol_id": nil}, sq.Eq{"e.target_name": name}})
	}
	if len(or) == 0 {
		return nil, nil
	}
	b := f.apply(selectEdges().Where(or)).OrderBy("f.path", "e.line", "e.id")
	return r.queryEdges(ctx, b)
}

// EdgesFrom returns edges whose source is one of the symbol ids.
func (r *Reader) EdgesFrom(ctx context.Context, ids []string, f EdgeFilter) ([]EdgeRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := f.apply(selectEdges().Where(sq.Eq{"e.source_symbol_id": ids})).OrderBy("f.path", "e.line", "e.id")
	return r.queryEdges(ctx, b)
}

// EdgesInFile returns every edge originating in path.
func (r *Reader) EdgesInFile(ctx context.Context, path string) ([]EdgeRow, error) {
	return r.queryEdges(ctx, selectEdges().Where(sq.Eq{"f.path": path}).OrderBy("e.line", "e.id"))
}

// ResolvedEdgesBetweenModules returns edges from files of one module into
// non-private symbols declared in another, at most limit when positive.
func (r *Reader) ResolvedEdgesBetweenModules(ctx context.Context, from, to int64, limit int) ([]EdgeRow, error) {
	b := selectEdges().
		Join("symbols t ON t.id = e.target_symbol_id").
		Join("files tf ON tf.id = t.file_id").
		Where(sq.Eq{"f.module_id": from, "tf.module_id": to}).
		Where(sq.NotEq{"t.visibility": string(model.VisibilityPrivate)}).
		OrderBy("f.path", "e.line")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.queryEdges(ctx, b)
}

func kindStrings(kinds []model.SymbolKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
