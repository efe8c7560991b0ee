// Package cache decides where a project's index lives.
//
// Indexes are kept outside the project, one directory per project root:
//
//	~/.ast-index/indexes/{remoteHash}-{rootHash}/index.db
//	~/.ast-index/indexes/{remoteHash}-{rootHash}/metadata.json
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mvp-joe/ast-index/internal/git"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// IndexFile is the database file name inside an index directory.
const IndexFile = "index.db"

// Cache resolves index locations under a root directory.
type Cache struct {
	root string
	git  git.Operations
}

// New creates a Cache. An empty root uses DefaultRoot(); a nil git uses
// the git binary.
func New(root string, ops git.Operations) *Cache {
	if ops == nil {
		ops = git.NewOperations()
	}
	return &Cache{root: root, git: ops}
}

// DefaultRoot returns ~/.ast-index/indexes.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".ast-index", "indexes")
}

// Root returns the directory holding every project's index directory.
func (c *Cache) Root() string {
	if c.root == "" {
		return DefaultRoot()
	}
	return c.root
}

// Dir returns the index directory for a project root.
func (c *Cache) Dir(projectRoot string) (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	return filepath.Join(c.Root(), Key(abs, c.git.GetRemoteURL(abs))), nil
}

// IndexPath returns the database path for a project root.
func (c *Cache) IndexPath(projectRoot string) (string, error) {
	dir, err := c.Dir(projectRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, IndexFile), nil
}

// Open opens (creating when needed) the index at path and records which
// project it belongs to. path is normally IndexPath(projectRoot) but may be
// an explicit override.
func (c *Cache) Open(projectRoot, path string) (*storage.Store, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	store, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta, err := LoadMetadata(dir)
	if err != nil || meta == nil {
		remote := c.git.GetRemoteURL(abs)
		meta = &Metadata{
			Key:         Key(abs, remote),
			ProjectRoot: abs,
			RemoteURL:   normalizeRemoteURL(remote),
			CreatedAt:   now,
		}
	}
	meta.LastOpened = now
	if err := meta.Save(dir); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
