package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mvp-joe/ast-index/internal/extract"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// ChangeSet contains the result of change detection.
type ChangeSet struct {
	Added     []SourceFile // New files not in the index
	Modified  []SourceFile // Files whose fingerprint differs from the index
	Deleted   []string     // Indexed paths no longer discovered
	Unchanged []string     // Same mtime, or same fingerprint after mtime drift
	Touched   []SourceFile // Subset of Unchanged whose stored mtime is stale
}

// Changed reports whether anything needs committing.
func (c *ChangeSet) Changed() bool {
	return len(c.Added)+len(c.Modified)+len(c.Deleted) > 0
}

// ChangeDetector compares discovered files to the stored file rows.
type ChangeDetector struct {
	rootDir string
	store   *storage.Store
}

// NewChangeDetector creates a change detector for rootDir.
func NewChangeDetector(rootDir string, store *storage.Store) *ChangeDetector {
	return &ChangeDetector{rootDir: rootDir, store: store}
}

// DetectChanges classifies discovered files.
//
// Algorithm:
//  1. Load stored (path, mtime, fingerprint) rows in one read transaction
//  2. For each discovered file:
//     a. Not stored: Added
//     b. Stored with equal mtime: Unchanged (fast path, no hashing)
//     c. Otherwise hash the content: equal fingerprint is Unchanged
//     (mtime drift) and Touched, a different one is Modified
//  3. Stored paths not discovered: Deleted
func (cd *ChangeDetector) DetectChanges(ctx context.Context, discovered []SourceFile) (*ChangeSet, error) {
	var stored map[string]storage.FileRow
	err := cd.store.View(ctx, func(r *storage.Reader) error {
		var err error
		stored, err = r.Files(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read files from index: %w", err)
	}

	changes := &ChangeSet{}
	for _, f := range discovered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, ok := stored[f.Path]
		if !ok {
			changes.Added = append(changes.Added, f)
			continue
		}
		delete(stored, f.Path) // Mark as seen

		if row.ModTime.Equal(f.ModTime) {
			changes.Unchanged = append(changes.Unchanged, f.Path)
			continue
		}

		content, err := os.ReadFile(filepath.Join(cd.rootDir, filepath.FromSlash(f.Path)))
		if err != nil {
			// Vanished between discovery and hashing.
			if os.IsNotExist(err) {
				changes.Deleted = append(changes.Deleted, f.Path)
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		if extract.Fingerprint(content) == row.Fingerprint {
			changes.Unchanged = append(changes.Unchanged, f.Path)
			changes.Touched = append(changes.Touched, f)
		} else {
			changes.Modified = append(changes.Modified, f)
		}
	}

	for path := range stored {
		changes.Deleted = append(changes.Deleted, path)
	}
	sort.Strings(changes.Deleted)
	return changes, nil
}
