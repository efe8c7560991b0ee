package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/ast-index/internal/model"
)

func (r *Reader) queryFiles(ctx context.Context, b sq.SelectBuilder) ([]FileRow, error) {
	rows, err := b.RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var f FileRow
		var lang string
		var mtime int64
		if err := rows.Scan(&f.ID, &f.Path, &lang, &f.Fingerprint, &mtime, &f.Size, &f.ModuleID, &f.ModuleName, &f.Failure); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		f.Language = model.Language(lang)
		f.ModTime = time.Unix(0, mtime)
		out = append(out, f)
	}
	return out, rows.Err()
}

func selectFiles() sq.SelectBuilder {
	return sq.Select("f.id", "f.path", "f.language", "f.fingerprint", "f.mtime", "f.size",
		"COALESCE(f.module_id, 0)", "COALESCE(m.name, '')", "f.failure").
		From("files f").
		LeftJoin("modules m ON m.id = f.module_id")
}

// Files returns every indexed file keyed by path. Used by the change detector.
func (r *Reader) Files(ctx context.Context) (map[string]FileRow, error) {
	files, err := r.queryFiles(ctx, selectFiles())
	if err != nil {
		return nil, err
	}
	out := make(map[string]FileRow, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out, nil
}

// FileByPath returns one file, or nil when not indexed.
func (r *Reader) FileByPath(ctx context.Context, path string) (*FileRow, error) {
	files, err := r.queryFiles(ctx, selectFiles().Where(sq.Eq{"f.path": path}))
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return &files[0], nil
}

// FilesByLanguage returns files of the given languages, ordered by path.
func (r *Reader) FilesByLanguage(ctx context.Context, langs ...model.Language) ([]FileRow, error) {
	names := make([]string, len(langs))
	for i, l := range langs {
		names[i] = string(l)
	}
	return r.queryFiles(ctx, selectFiles().Where(sq.Eq{"f.language": names}).OrderBy("f.path"))
}

// UnindexedFiles returns files whose last extraction failed, ordered by path.
func (r *Reader) UnindexedFiles(ctx context.Context) ([]FileRow, error) {
	return r.queryFiles(ctx, selectFiles().Where(sq.NotEq{"f.failure": ""}).OrderBy("f.path"))
}

// ImportsInModule returns the imports of every file in a module.
func (r *Reader) ImportsInModule(ctx context.Context, moduleID int64) ([]ImportRow, error) {
	rows, err := sq.Select("i.file_id", "f.path", "i.path", "i.alias", "i.line", "i.is_wildcard").
		From("imports i").
		Join("files f ON f.id = i.file_id").
		Where(sq.Eq{"f.module_id": moduleID}).
		OrderBy("f.path", "i.line").
		RunWith(r.q).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var out []ImportRow
	for rows.Next() {
		var i ImportRow
		if err := rows.Scan(&i.FileID, &i.Path, &i.Import.Path, &i.Alias, &i.Line, &i.IsWildcard); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// XMLRefs returns xml class references matching name (simple or qualified),
// or every reference in a module when name is empty.
func (r *Reader) XMLRefs(ctx context.Context, name string, moduleID int64) ([]XMLRefRow, error) {
	b := sq.Select("x.class_name", "x.attribute", "x.line", "f.path", "COALESCE(f.module_id, 0)").
		From("xml_refs x").
		Join("files f ON f.id = x.file_id")
	if name != "" {
		simple := name
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			simple = name[idx+1:]
		}
		b = b.Where(sq.Eq{"x.simple_name": simple})
		if strings.Contains(name, ".") {
			b = b.Where(sq.Or{sq.Eq{"x.class_name": name}, sq.Like{"x.class_name": ".%"}})
		}
	}
	if moduleID != 0 {
		b = b.Where(sq.Eq{"f.module_id": moduleID})
	}
	rows, err := b.OrderBy("f.path", "x.line").RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query xml refs: %w", err)
	}
	defer rows.Close()

	var out []XMLRefRow
	for rows.Next() {
		var x XMLRefRow
		if err := rows.Scan(&x.ClassName, &x.Attribute, &x.Line, &x.Path, &x.ModuleID); err != nil {
			return nil, fmt.Errorf("failed to scan xml ref: %w", err)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// ResourceQuery selects resource rows.
type ResourceQuery struct {
	Type       string
	Name       string
	ModuleID   int64
	Definition *bool // nil for both
}

// Resources returns resource definitions and references.
func (r *Reader) Resources(ctx context.Context, q ResourceQuery) ([]ResourceRow, error) {
	b := sq.Select("r.type", "r.name", "r.line", "r.is_definition", "f.path", "COALESCE(f.module_id, 0)").
		From("resources r").
		Join("files f ON f.id = r.file_id")
	if q.Type != "" {
		b = b.Where(sq.Eq{"r.type": q.Type})
	}
	if q.Name != "" {
		b = b.Where(sq.Eq{"r.name": q.Name})
	}
	if q.ModuleID != 0 {
		b = b.Where(sq.Eq{"f.module_id": q.ModuleID})
	}
	if q.Definition != nil {
		b = b.Where(sq.Eq{"r.is_definition": *q.Definition})
	}
	rows, err := b.OrderBy("f.path", "r.line").RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var out []ResourceRow
	for rows.Next() {
		var res ResourceRow
		if err := rows.Scan(&res.Type, &res.Name, &res.Line, &res.IsDefinition, &res.Path, &res.ModuleID); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Markers returns TODO-style markers whose kind or text contains pattern.
// This is an audit scan and may touch every marker row.
func (r *Reader) Markers(ctx context.Context, pattern string, moduleID int64, limit int) ([]MarkerRow, error) {
	b := sq.Select("k.kind", "k.text", "k.line", "f.path").
		From("markers k").
		Join("files f ON f.id = k.file_id")
	if pattern != "" {
		like := "%" + escapeLike(pattern) + "%"
		b = b.Where(sq.Or{
			sq.Expr("k.kind LIKE ? ESCAPE '\\'", like),
			sq.Expr("k.text LIKE ? ESCAPE '\\'", like),
		})
	}
	if moduleID != 0 {
		b = b.Where(sq.Eq{"f.module_id": moduleID})
	}
	b = b.OrderBy("f.path", "k.line")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := b.RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query markers: %w", err)
	}
	defer rows.Close()

	var out []MarkerRow
	for rows.Next() {
		var m MarkerRow
		if err := rows.Scan(&m.Kind, &m.Text, &m.Line, &m.Path); err != nil {
			return nil, fmt.Errorf("failed to scan marker: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Counts gathers table sizes for the stats command.
func (r *Reader) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{
		ByLanguage: make(map[model.Language]int),
		ByKind:     make(map[model.SymbolKind]int),
	}
	scalars := []struct {
		dst   *int
		query string
	}{
		{&c.Files, "SELECT COUNT(*) FROM files"},
		{&c.Symbols, "SELECT COUNT(*) FROM symbols"},
		{&c.Edges, "SELECT COUNT(*) FROM edges"},
		{&c.Dangling, "SELECT COUNT(*) FROM edges WHERE target_symbol_id IS NULL"},
		{&c.Ambiguous, "SELECT COUNT(*) FROM edges WHERE candidates > 1"},
		{&c.Imports, "SELECT COUNT(*) FROM imports"},
		{&c.Modules, "SELECT COUNT(*) FROM modules"},
		{&c.ModuleDeps, "SELECT COUNT(*) FROM module_deps"},
		{&c.XMLRefs, "SELECT COUNT(*) FROM xml_refs"},
		{&c.Resources, "SELECT COUNT(*) FROM resources"},
		{&c.Markers, "SELECT COUNT(*) FROM markers"},
		{&c.Unindexed, "SELECT COUNT(*) FROM files WHERE failure != ''"},
	}
	for _, s := range scalars {
		if err := r.q.QueryRowContext(ctx, s.query).Scan(s.dst); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", s.query, err)
		}
	}

	if err := r.groupCount(ctx, "SELECT language, COUNT(*) FROM files GROUP BY language", func(k string, n int) {
		c.ByLanguage[model.Language(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "SELECT kind, COUNT(*) FROM symbols GROUP BY kind", func(k string, n int) {
		c.ByKind[model.SymbolKind(k)] = n
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Reader) groupCount(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		fn(k, n)
	}
	return rows.Err()
}

// Metadata reads a metadata value inside the snapshot.
func (r *Reader) Metadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, r.q, key)
}
