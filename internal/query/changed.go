package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvp-joe/ast-index/internal/extract"
	"github.com/mvp-joe/ast-index/internal/git"
	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// ErrNoVersionControl is returned by Changed when the engine has no git
// collaborator.
var ErrNoVersionControl = errors.New("version control not available")

// SymbolChange is one symbol added, removed or modified.
type SymbolChange struct {
	Name          string           `json:"name"`
	QualifiedName string           `json:"qualified_name"`
	Kind          model.SymbolKind `json:"kind"`
	Line          int              `json:"line"`
}

// FileDiff is the symbol-level diff of one changed file.
type FileDiff struct {
	Path     string           `json:"path"`
	OldPath  string           `json:"old_path,omitempty"`
	Status   git.ChangeStatus `json:"status"`
	Added    []SymbolChange   `json:"added,omitempty"`
	Removed  []SymbolChange   `json:"removed,omitempty"`
	Modified []SymbolChange   `json:"modified,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ChangedReport is the result of Changed.
type ChangedReport struct {
	Base  string     `json:"base"`
	Files []FileDiff `json:"files"`
}

// Changed diffs symbols between the baseline revision and the current state
// of the project. The current side comes from the index when the file's
// fingerprint still matches the working tree, otherwise from a fresh
// extraction. An empty base defaults to the main/master ancestor, or HEAD.
func (e *Engine) Changed(ctx context.Context, base string) (*ChangedReport, error) {
	if e.git == nil {
		return nil, ErrNoVersionControl
	}
	if base = strings.TrimSpace(base); base == "" {
		base = e.defaultBase()
	}

	changes, err := e.git.ChangedFiles(e.root, base)
	if err != nil {
		return nil, err
	}
	prefix := e.worktreePrefix()

	report := &ChangedReport{Base: base, Files: []FileDiff{}}
	err = e.view(ctx, func(r *storage.Reader) error {
		for _, c := range changes {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, ok := trimPrefix(c.Path, prefix)
			if !ok || !extract.IsSupported(rel) {
				continue
			}
			diff, err := e.diffFile(ctx, r, base, c, rel)
			if err != nil {
				return err
			}
			if diff.Error != "" || len(diff.Added)+len(diff.Removed)+len(diff.Modified) > 0 {
				report.Files = append(report.Files, diff)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) defaultBase() string {
	branch := e.git.GetCurrentBranch(e.root)
	if ancestor := e.git.FindAncestorBranch(e.root, branch); ancestor != "" && ancestor != branch {
		return ancestor
	}
	return "HEAD"
}

// worktreePrefix is the project root relative to the git worktree, "" when
// they coincide. git reports paths relative to the worktree.
func (e *Engine) worktreePrefix() string {
	top := e.git.GetWorktreeRoot(e.root)
	if resolved, err := filepath.EvalSymlinks(top); err == nil {
		top = resolved
	}
	root := e.root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	rel, err := filepath.Rel(top, root)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel) + "/"
}

func trimPrefix(p, prefix string) (string, bool) {
	if prefix == "" {
		return p, true
	}
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	return strings.TrimPrefix(p, prefix), true
}

func (e *Engine) diffFile(ctx context.Context, r *storage.Reader, base string, c git.FileChange, rel string) (FileDiff, error) {
	diff := FileDiff{Path: rel, Status: c.Status}
	if c.OldPath != "" {
		diff.OldPath = c.OldPath
	}

	var before, after []model.Symbol
	var err error

	switch c.Status {
	case git.StatusAdded, git.StatusUntracked:
		if c.OldPath != "" {
			before, err = e.baseline(base, c.OldPath)
		}
	default:
		old := c.Path
		if c.OldPath != "" {
			old = c.OldPath
		}
		before, err = e.baseline(base, old)
	}
	if err != nil {
		diff.Error = err.Error()
		return diff, nil
	}

	if c.Status != git.StatusDeleted {
		after, err = e.current(ctx, r, rel)
		if err != nil {
			var failure *extract.Failure
			if errors.As(err, &failure) {
				diff.Error = err.Error()
				return diff, nil
			}
			return diff, err
		}
	}

	diff.Added, diff.Removed, diff.Modified = diffSymbols(before, after)
	return diff, nil
}

// baseline extracts the symbols of worktreePath at rev; a path absent
// from the revision has none.
func (e *Engine) baseline(rev, worktreePath string) ([]model.Symbol, error) {
	content, err := e.git.ShowFile(e.root, rev, worktreePath)
	if errors.Is(err, git.ErrNotInRevision) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res, err := extract.Extract(worktreePath, extract.DetectLanguage(worktreePath), content)
	if err != nil {
		return nil, err
	}
	return res.Symbols, nil
}

// current returns the symbols of rel as they are now, preferring the index
// when it is up to date with the file on disk.
func (e *Engine) current(ctx context.Context, r *storage.Reader, rel string) ([]model.Symbol, error) {
	content, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	f, err := r.FileByPath(ctx, rel)
	if err != nil {
		return nil, err
	}
	if f != nil && f.Fingerprint == extract.Fingerprint(content) {
		rows, err := r.SymbolsInFile(ctx, rel)
		if err != nil {
			return nil, err
		}
		syms := make([]model.Symbol, len(rows))
		for i, row := range rows {
			syms[i] = row.Symbol
		}
		return syms, nil
	}

	res, err := extract.Extract(rel, extract.DetectLanguage(rel), content)
	if err != nil {
		return nil, err
	}
	return res.Symbols, nil
}

type symbolKey struct {
	qn      string
	kind    model.SymbolKind
	ordinal int
}

// diffSymbols matches declarations by (qualified name, kind, ordinal); a
// matched pair whose body hash differs is modified.
func diffSymbols(before, after []model.Symbol) (added, removed, modified []SymbolChange) {
	old := make(map[symbolKey]model.Symbol, len(before))
	for _, s := range before {
		old[symbolKey{s.QualifiedName, s.Kind, s.Ordinal}] = s
	}
	for _, s := range after {
		k := symbolKey{s.QualifiedName, s.Kind, s.Ordinal}
		prev, ok := old[k]
		if !ok {
			added = append(added, change(s))
			continue
		}
		delete(old, k)
		if prev.BodyHash != s.BodyHash {
			modified = append(modified, change(s))
		}
	}
	for _, s := range old {
		removed = append(removed, change(s))
	}
	for _, list := range [][]SymbolChange{added, removed, modified} {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Line != list[j].Line {
				return list[i].Line < list[j].Line
			}
			return list[i].QualifiedName < list[j].QualifiedName
		})
	}
	return added, removed, modified
}

func change(s model.Symbol) SymbolChange {
	return SymbolChange{Name: s.Name, QualifiedName: s.QualifiedName, Kind: s.Kind, Line: s.StartLine}
}
