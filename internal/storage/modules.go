package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/ast-index/internal/model"
)

// ReplaceModules swaps the module graph for the given set in one
// transaction. Modules keep their ids across calls when their name is
// unchanged. Dependencies naming an unknown module are returned, not stored.
func (s *Store) ReplaceModules(ctx context.Context, modules []model.Module, deps []model.ModuleDependency) ([]model.ModuleDependency, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM module_deps"); err != nil {
		return nil, fmt.Errorf("failed to clear module deps: %w", err)
	}

	keep := make([]string, 0, len(modules))
	for _, m := range modules {
		_, err := sq.Insert("modules").
			Columns("name", "kind", "root_path", "manifest_path").
			Values(m.Name, string(m.Kind), m.RootPath, m.ManifestPath).
			Suffix(`ON CONFLICT(name) DO UPDATE SET
				kind = excluded.kind,
				root_path = excluded.root_path,
				manifest_path = excluded.manifest_path`).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to write module %s: %w", m.Name, err)
		}
		keep = append(keep, m.Name)
	}

	del := sq.Delete("modules")
	if len(keep) > 0 {
		del = del.Where(sq.NotEq{"name": keep})
	}
	if _, err := del.RunWith(tx).ExecContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to prune modules: %w", err)
	}

	ids, err := moduleIDs(ctx, tx)
	if err != nil {
		return nil, err
	}

	var unknown []model.ModuleDependency
	for _, d := range deps {
		from, okFrom := ids[d.From]
		to, okTo := ids[d.To]
		if !okFrom || !okTo {
			unknown = append(unknown, d)
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO module_deps (from_id, to_id, kind, line) VALUES (?, ?, ?, ?)",
			from, to, string(d.Kind), d.Line); err != nil {
			return nil, fmt.Errorf("failed to write dependency %s -> %s: %w", d.From, d.To, err)
		}
	}

	if err := bumpGeneration(ctx, tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit modules: %v", ErrStoreUnavailable, err)
	}
	return unknown, nil
}

func moduleIDs(ctx context.Context, q execQueryer) (map[string]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name FROM modules")
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// AssignModules sets every file's module to the module with the longest
// root path containing it. Returns the number of files whose module changed.
func (s *Store) AssignModules(ctx context.Context) (int, error) {
	ids, err := s.ReassignModules(ctx)
	return len(ids), err
}

// ReassignModules is AssignModules returning the ids of the files whose
// module changed.
func (s *Store) ReassignModules(ctx context.Context) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	r := &Reader{q: tx}
	modules, err := r.Modules(ctx)
	if err != nil {
		return nil, err
	}
	// Longest root first so nested modules win.
	sort.Slice(modules, func(i, j int) bool {
		return len(modules[i].RootPath) > len(modules[j].RootPath)
	})

	rows, err := tx.QueryContext(ctx, "SELECT id, path, COALESCE(module_id, 0) FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}
	type assignment struct {
		fileID, moduleID int64
	}
	var changes []assignment
	for rows.Next() {
		var id, current int64
		var path string
		if err := rows.Scan(&id, &path, &current); err != nil {
			rows.Close()
			return nil, err
		}
		want := owningModule(modules, path)
		if want != current {
			changes = append(changes, assignment{id, want})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range changes {
		var moduleID interface{}
		if c.moduleID != 0 {
			moduleID = c.moduleID
		}
		if _, err := tx.ExecContext(ctx, "UPDATE files SET module_id = ? WHERE id = ?", moduleID, c.fileID); err != nil {
			return nil, fmt.Errorf("failed to assign module: %w", err)
		}
	}
	if len(changes) > 0 {
		if err := bumpGeneration(ctx, tx); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit module assignment: %v", ErrStoreUnavailable, err)
	}
	ids := make([]int64, len(changes))
	for i, c := range changes {
		ids[i] = c.fileID
	}
	return ids, nil
}

// owningModule expects modules sorted by descending root length.
func owningModule(modules []ModuleRow, path string) int64 {
	for _, m := range modules {
		if m.RootPath == "" || path == m.RootPath || strings.HasPrefix(path, m.RootPath+"/") {
			return m.ID
		}
	}
	return 0
}

// Modules lists all modules ordered by name.
func (r *Reader) Modules(ctx context.Context) ([]ModuleRow, error) {
	rows, err := sq.Select("m.id", "m.name", "m.kind", "m.root_path", "m.manifest_path",
		"(SELECT COUNT(*) FROM files f WHERE f.module_id = m.id)").
		From("modules m").
		OrderBy("m.name").
		RunWith(r.q).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	var out []ModuleRow
	for rows.Next() {
		var m ModuleRow
		var kind string
		if err := rows.Scan(&m.ID, &m.Name, &kind, &m.RootPath, &m.ManifestPath, &m.FileCount); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		m.Kind = model.ModuleKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ModuleByName returns the named module, or nil when absent.
func (r *Reader) ModuleByName(ctx context.Context, name string) (*ModuleRow, error) {
	var m ModuleRow
	var kind string
	err := sq.Select("id", "name", "kind", "root_path", "manifest_path").
		From("modules").
		Where(sq.Eq{"name": name}).
		RunWith(r.q).
		QueryRowContext(ctx).
		Scan(&m.ID, &m.Name, &kind, &m.RootPath, &m.ManifestPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module %s: %w", name, err)
	}
	m.Kind = model.ModuleKind(kind)
	return &m, nil
}

// ModuleDeps returns every module dependency edge.
func (r *Reader) ModuleDeps(ctx context.Context) ([]ModuleDepRow, error) {
	rows, err := sq.Select("d.from_id", "mf.name", "d.to_id", "mt.name", "d.kind").
		From("module_deps d").
		Join("modules mf ON mf.id = d.from_id").
		Join("modules mt ON mt.id = d.to_id").
		OrderBy("mf.name", "mt.name", "d.kind").
		RunWith(r.q).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query module deps: %w", err)
	}
	defer rows.Close()

	var out []ModuleDepRow
	for rows.Next() {
		var d ModuleDepRow
		var kind string
		if err := rows.Scan(&d.FromID, &d.FromName, &d.ToID, &d.ToName, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan module dep: %w", err)
		}
		d.Kind = model.DependencyKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}
