package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/resolve"
)

// FileWriter commits per-file extraction results.
//
// Every method runs in its own transaction, and the full-text rows are
// written in that same transaction, so readers never observe a file half
// replaced or a symbol without its full-text entry.
type FileWriter struct {
	db       *sql.DB
	resolver *resolve.Resolver
}

// NewFileWriter creates a FileWriter that resolves edges with resolver.
func NewFileWriter(s *Store, resolver *resolve.Resolver) *FileWriter {
	if resolver == nil {
		resolver = resolve.New(nil)
	}
	return &FileWriter{db: s.db, resolver: resolver}
}

// ReplaceFile atomically swaps the stored rows of res.Path for res.
//
// Edges into symbols that disappear become dangling-by-name. Edges anywhere
// in the index whose target name was declared before or after the change are
// re-resolved against the new snapshot, so resolution stays a function of
// the committed state regardless of commit order.
func (w *FileWriter) ReplaceFile(ctx context.Context, res *model.FileResult) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	fileID, moduleID, err := upsertFile(ctx, tx, res)
	if err != nil {
		return err
	}

	oldIDs, oldNames, err := fileSymbols(ctx, tx, fileID)
	if err != nil {
		return err
	}
	if err := clearFileRows(ctx, tx, fileID); err != nil {
		return err
	}

	newIDs := make(map[string]bool, len(res.Symbols))
	for i := range res.Symbols {
		if err := insertSymbol(ctx, tx, fileID, &res.Symbols[i]); err != nil {
			return fmt.Errorf("failed to insert symbol %s in %s: %w", res.Symbols[i].QualifiedName, res.Path, err)
		}
		newIDs[res.Symbols[i].ID] = true
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO files_fts (file_id, path) VALUES (?, ?)", fileID, res.Path); err != nil {
		return fmt.Errorf("failed to index path %s: %w", res.Path, err)
	}

	var vanished []string
	for id := range oldIDs {
		if !newIDs[id] {
			vanished = append(vanished, id)
		}
	}
	if err := detachTargets(ctx, tx, vanished); err != nil {
		return err
	}

	src := resolve.Source{FileID: fileID, Path: res.Path, ModuleID: moduleID}
	cache, err := lru.New[string, []resolve.Candidate](candidateCacheSize)
	if err != nil {
		return err
	}
	for _, e := range res.Edges {
		if err := w.insertEdge(ctx, tx, src, newIDs, e, cache); err != nil {
			return fmt.Errorf("failed to insert edge in %s: %w", res.Path, err)
		}
	}

	touched := oldNames
	for _, name := range res.SymbolNames() {
		touched[name] = true
	}
	if err := w.reresolveNames(ctx, tx, touched, fileID); err != nil {
		return err
	}

	if err := insertFacets(ctx, tx, fileID, res); err != nil {
		return err
	}
	if err := bumpGeneration(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit %s: %v", ErrStoreUnavailable, res.Path, err)
	}
	return nil
}

// DeleteFile removes a file and everything it owns. Edges from other files
// into its symbols stay behind as dangling-by-name references, or move to
// another candidate of the same name.
func (w *FileWriter) DeleteFile(ctx context.Context, path string) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	var fileID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM files WHERE path = ?", path).Scan(&fileID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", path, err)
	}

	oldIDs, oldNames, err := fileSymbols(ctx, tx, fileID)
	if err != nil {
		return err
	}
	if err := clearFileRows(ctx, tx, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}

	vanished := make([]string, 0, len(oldIDs))
	for id := range oldIDs {
		vanished = append(vanished, id)
	}
	if err := detachTargets(ctx, tx, vanished); err != nil {
		return err
	}
	if err := w.reresolveNames(ctx, tx, oldNames, 0); err != nil {
		return err
	}
	if err := bumpGeneration(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit delete of %s: %v", ErrStoreUnavailable, path, err)
	}
	return nil
}

// MarkFailed records an extraction failure for path. A file already in the
// index keeps its previous rows; a new one is stored with no symbols and an
// empty fingerprint so the next update retries it.
func (w *FileWriter) MarkFailed(ctx context.Context, path string, lang model.Language, size int64, reason string) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	res, err := tx.ExecContext(ctx, "UPDATE files SET failure = ? WHERE path = ?", reason, path)
	if err != nil {
		return fmt.Errorf("failed to mark %s unindexed: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err := sq.Insert("files").
			Columns("path", "language", "fingerprint", "mtime", "size", "indexed_at", "failure").
			Values(path, string(lang), "", 0, size, time.Now().UTC().Format(time.RFC3339), reason).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to write file %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO files_fts (file_id, path) SELECT id, path FROM files WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to index path %s: %w", path, err)
		}
		if err := bumpGeneration(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit failure of %s: %v", ErrStoreUnavailable, path, err)
	}
	return nil
}

// TouchFiles stores new modification times for files whose content matched
// the stored fingerprint. Matching content also means the stored rows are
// current, so any recorded failure is cleared.
func (w *FileWriter) TouchFiles(ctx context.Context, mtimes map[string]time.Time) error {
	if len(mtimes) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	stmt, err := tx.PrepareContext(ctx, "UPDATE files SET mtime = ?, failure = '' WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare mtime update: %w", err)
	}
	defer stmt.Close()
	for path, mtime := range mtimes {
		if _, err := stmt.ExecContext(ctx, mtime.UnixNano(), path); err != nil {
			return fmt.Errorf("failed to update mtime of %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit mtime updates: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func upsertFile(ctx context.Context, tx *sql.Tx, res *model.FileResult) (int64, int64, error) {
	_, err := sq.Insert("files").
		Columns("path", "language", "fingerprint", "mtime", "size", "indexed_at").
		Values(res.Path, string(res.Language), res.Fingerprint, res.ModTime.UnixNano(), res.Size,
			time.Now().UTC().Format(time.RFC3339)).
		Suffix(`ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			fingerprint = excluded.fingerprint,
			mtime = excluded.mtime,
			size = excluded.size,
			indexed_at = excluded.indexed_at,
			failure = ''`).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to write file %s: %w", res.Path, err)
	}

	var fileID int64
	var moduleID sql.NullInt64
	err = tx.QueryRowContext(ctx, "SELECT id, module_id FROM files WHERE path = ?", res.Path).Scan(&fileID, &moduleID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read back file %s: %w", res.Path, err)
	}
	return fileID, moduleID.Int64, nil
}

func fileSymbols(ctx context.Context, tx *sql.Tx, fileID int64) (map[string]bool, map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id, name FROM symbols WHERE file_id = ?", fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load previous symbols: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	names := make(map[string]bool)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		ids[id] = true
		names[name] = true
	}
	return ids, names, rows.Err()
}

// clearFileRows deletes everything owned by a file except the files row.
func clearFileRows(ctx context.Context, tx *sql.Tx, fileID int64) error {
	stmts := []struct {
		what  string
		query string
	}{
		{"edges", "DELETE FROM edges WHERE file_id = ?"},
		{"symbol full-text", "DELETE FROM symbols_fts WHERE symbol_id IN (SELECT id FROM symbols WHERE file_id = ?)"},
		{"symbols", "DELETE FROM symbols WHERE file_id = ?"},
		{"imports", "DELETE FROM imports WHERE file_id = ?"},
		{"markers", "DELETE FROM markers WHERE file_id = ?"},
		{"xml refs", "DELETE FROM xml_refs WHERE file_id = ?"},
		{"resources", "DELETE FROM resources WHERE file_id = ?"},
		{"path full-text", "DELETE FROM files_fts WHERE file_id = ?"},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, fileID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", s.what, err)
		}
	}
	return nil
}

func insertSymbol(ctx context.Context, tx *sql.Tx, fileID int64, s *model.Symbol) error {
	_, err := sq.Insert("symbols").
		Columns("id", "file_id", "kind", "name", "scope", "qualified_name",
			"start_line", "end_line", "visibility", "signature", "doc", "body_hash", "ordinal").
		Values(s.ID, fileID, string(s.Kind), s.Name, s.Scope, s.QualifiedName,
			s.StartLine, s.EndLine, string(s.Visibility), s.Signature, s.Doc, s.BodyHash, s.Ordinal).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return err
	}

	for _, a := range s.Annotations {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO symbol_annotations (symbol_id, name) VALUES (?, ?)", s.ID, a); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO symbols_fts (symbol_id, name, qualified_name, doc) VALUES (?, ?, ?, ?)",
		s.ID, s.Name, s.QualifiedName, s.Doc)
	return err
}

// detachTargets turns edges into removed symbols into dangling references.
func detachTargets(ctx context.Context, tx *sql.Tx, ids []string) error {
	for start := 0; start < len(ids); start += 500 {
		end := min(start+500, len(ids))
		_, err := sq.Update("edges").
			Set("target_symbol_id", nil).
			Set("candidates", 0).
			Where(sq.Eq{"target_symbol_id": ids[start:end]}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to detach edges: %w", err)
		}
	}
	return nil
}

// candidateCacheSize bounds the per-commit memo of candidate lookups. Files
// reference far fewer distinct names than this in practice.
const candidateCacheSize = 1024

func (w *FileWriter) insertEdge(ctx context.Context, tx *sql.Tx, src resolve.Source, local map[string]bool, e model.Edge, cache *lru.Cache[string, []resolve.Candidate]) error {
	cands, ok := cache.Get(e.Target.Name)
	if !ok {
		var err error
		cands, err = loadCandidates(ctx, tx, e.Target.Name)
		if err != nil {
			return err
		}
		cache.Add(e.Target.Name, cands)
	}
	target, n := w.resolver.Resolve(src, e.Kind, e.Target.Name, e.Target.ScopeHint, cands)

	var source, targetID interface{}
	if e.SourceSymbolID != "" && local[e.SourceSymbolID] {
		source = e.SourceSymbolID
	}
	if target.State == model.Resolved {
		targetID = target.SymbolID
	}

	_, err := sq.Insert("edges").
		Columns("file_id", "source_symbol_id", "kind", "target_name", "scope_hint",
			"target_symbol_id", "candidates", "line", "context").
		Values(src.FileID, source, string(e.Kind), e.Target.Name, e.Target.ScopeHint,
			targetID, n, e.Line, e.Context).
		RunWith(tx).
		ExecContext(ctx)
	return err
}

func loadCandidates(ctx context.Context, q execQueryer, name string) ([]resolve.Candidate, error) {
	rows, err := sq.Select("s.id", "s.name", "s.qualified_name", "s.scope", "s.kind",
		"s.file_id", "f.path", "COALESCE(f.module_id, 0)").
		From("symbols s").
		Join("files f ON f.id = s.file_id").
		Where(sq.Eq{"s.name": name}).
		RunWith(q).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates for %s: %w", name, err)
	}
	defer rows.Close()

	var out []resolve.Candidate
	for rows.Next() {
		var c resolve.Candidate
		var kind string
		if err := rows.Scan(&c.SymbolID, &c.Name, &c.QualifiedName, &c.Scope, &kind,
			&c.FileID, &c.Path, &c.ModuleID); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Kind = model.SymbolKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

type pendingEdge struct {
	id        int64
	kind      model.EdgeKind
	scopeHint string
	target    string
	count     int
	src       resolve.Source
}

// reresolveNames recomputes the target of every edge pointing at one of
// names, skipping edges owned by skipFileID (already resolved by the caller).
func (w *FileWriter) reresolveNames(ctx context.Context, tx *sql.Tx, names map[string]bool, skipFileID int64) error {
	for name := range names {
		cands, err := loadCandidates(ctx, tx, name)
		if err != nil {
			return err
		}
		if err := w.reresolveName(ctx, tx, name, cands, skipFileID); err != nil {
			return err
		}
	}
	return nil
}

func (w *FileWriter) reresolveName(ctx context.Context, tx *sql.Tx, name string, cands []resolve.Candidate, skipFileID int64) error {
	rows, err := sq.Select("e.id", "e.kind", "e.scope_hint", "COALESCE(e.target_symbol_id, '')",
		"e.candidates", "e.file_id", "f.path", "COALESCE(f.module_id, 0)").
		From("edges e").
		Join("files f ON f.id = e.file_id").
		Where(sq.Eq{"e.target_name": name}).
		Where(sq.NotEq{"e.file_id": skipFileID}).
		RunWith(tx).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to load edges for %s: %w", name, err)
	}

	var pending []pendingEdge
	for rows.Next() {
		var p pendingEdge
		var kind string
		if err := rows.Scan(&p.id, &kind, &p.scopeHint, &p.target, &p.count,
			&p.src.FileID, &p.src.Path, &p.src.ModuleID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		p.kind = model.EdgeKind(kind)
		pending = append(pending, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pending {
		target, n := w.resolver.Resolve(p.src, p.kind, name, p.scopeHint, cands)
		if target.SymbolID == p.target && n == p.count {
			continue
		}
		var targetID interface{}
		if target.State == model.Resolved {
			targetID = target.SymbolID
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE edges SET target_symbol_id = ?, candidates = ? WHERE id = ?", targetID, n, p.id); err != nil {
			return fmt.Errorf("failed to update edge %d: %w", p.id, err)
		}
	}
	return nil
}

func insertFacets(ctx context.Context, tx *sql.Tx, fileID int64, res *model.FileResult) error {
	for _, imp := range res.Imports {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO imports (file_id, path, alias, line, is_wildcard) VALUES (?, ?, ?, ?, ?)",
			fileID, imp.Path, imp.Alias, imp.Line, imp.IsWildcard); err != nil {
			return fmt.Errorf("failed to insert import %s: %w", imp.Path, err)
		}
	}
	for _, m := range res.Markers {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO markers (file_id, kind, text, line) VALUES (?, ?, ?, ?)",
			fileID, m.Kind, m.Text, m.Line); err != nil {
			return fmt.Errorf("failed to insert marker: %w", err)
		}
	}
	for _, x := range res.XMLRefs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO xml_refs (file_id, class_name, simple_name, attribute, line) VALUES (?, ?, ?, ?, ?)",
			fileID, x.ClassName, x.SimpleName(), x.Attribute, x.Line); err != nil {
			return fmt.Errorf("failed to insert xml ref %s: %w", x.ClassName, err)
		}
	}
	for _, r := range res.Resources {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO resources (file_id, type, name, line, is_definition) VALUES (?, ?, ?, ?, ?)",
			fileID, r.Type, r.Name, r.Line, r.IsDefinition); err != nil {
			return fmt.Errorf("failed to insert resource %s: %w", r.Key(), err)
		}
	}
	return nil
}

// AmbiguousScope limits ReresolveAmbiguous to the names a change can
// affect.
type AmbiguousScope struct {
	Names   []string // names declared by committed files
	FileIDs []int64  // files whose module changed
}

// ReresolveAmbiguous re-runs the tie-break for names declared more than
// once. Run after module membership changes, since the same-module rule
// depends on it. A nil scope covers every name in the index; otherwise only
// scope.Names plus the names declared or referenced by scope.FileIDs are
// considered.
func (w *FileWriter) ReresolveAmbiguous(ctx context.Context, scope *AmbiguousScope) (int, error) {
	var names []string
	var err error
	if scope == nil {
		names, err = queryStrings(ctx, w.db, sq.Select("DISTINCT e.target_name").
			From("edges e").
			Where(ambiguousName))
	} else {
		names, err = w.ambiguousIn(ctx, scope)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to find ambiguous names: %v", ErrStoreUnavailable, err)
	}

	const batch = 200
	for start := 0; start < len(names); start += batch {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(start+batch, len(names))
		set := make(map[string]bool, end-start)
		for _, n := range names[start:end] {
			set[n] = true
		}

		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
		}
		if err := w.reresolveNames(ctx, tx, set, 0); err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("%w: failed to commit re-resolution: %v", ErrStoreUnavailable, err)
		}
	}
	return len(names), nil
}

const ambiguousName = "e.target_name IN (SELECT name FROM symbols GROUP BY name HAVING COUNT(*) > 1)"

// sqlBatch keeps IN lists under SQLite's bound parameter limit.
const sqlBatch = 500

func (w *FileWriter) ambiguousIn(ctx context.Context, scope *AmbiguousScope) ([]string, error) {
	seen := make(map[string]bool, len(scope.Names))
	for _, n := range scope.Names {
		seen[n] = true
	}
	for start := 0; start < len(scope.FileIDs); start += sqlBatch {
		ids := scope.FileIDs[start:min(start+sqlBatch, len(scope.FileIDs))]
		for _, b := range []sq.SelectBuilder{
			sq.Select("name").From("symbols").Where(sq.Eq{"file_id": ids}),
			sq.Select("target_name").From("edges").Where(sq.Eq{"file_id": ids}),
		} {
			found, err := queryStrings(ctx, w.db, b)
			if err != nil {
				return nil, err
			}
			for _, n := range found {
				seen[n] = true
			}
		}
	}

	candidates := make([]string, 0, len(seen))
	for n := range seen {
		candidates = append(candidates, n)
	}
	sort.Strings(candidates)

	var out []string
	for start := 0; start < len(candidates); start += sqlBatch {
		found, err := queryStrings(ctx, w.db, sq.Select("DISTINCT e.target_name").
			From("edges e").
			Where(sq.Eq{"e.target_name": candidates[start:min(start+sqlBatch, len(candidates))]}).
			Where(ambiguousName))
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func queryStrings(ctx context.Context, q execQueryer, b sq.SelectBuilder) ([]string, error) {
	rows, err := b.RunWith(q).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
