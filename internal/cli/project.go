package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mvp-joe/ast-index/internal/cache"
	"github.com/mvp-joe/ast-index/internal/config"
	"github.com/mvp-joe/ast-index/internal/git"
	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/query"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// ErrNoIndex is returned by query commands when the project was never indexed.
var ErrNoIndex = errors.New("no index found")

// project is an opened project: its configuration and index store.
type project struct {
	root      string
	cfg       *config.Config
	git       git.Operations
	cache     *cache.Cache
	indexPath string
	derived   bool // indexPath lives in the cache
	store     *storage.Store
}

// resolveProject finds the project root and loads its configuration.
// --root wins over project_root from the environment or config file, which
// wins over the working directory.
func resolveProject(opts *options) (*project, error) {
	root := opts.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.root == "" && cfg.ProjectRoot != "" {
		override, err := filepath.Abs(cfg.ProjectRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve project root: %w", err)
		}
		if override != root {
			root = override
			if cfg, err = config.LoadConfigFromDir(root); err != nil {
				return nil, fmt.Errorf("failed to load configuration: %w", err)
			}
		}
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	ops := git.NewOperations()
	p := &project{
		root:  root,
		cfg:   cfg,
		git:   ops,
		cache: cache.New(cfg.Cache.Root, ops),
	}

	switch {
	case opts.indexPath != "":
		p.indexPath = opts.indexPath
	case cfg.Index.Path != "":
		p.indexPath = cfg.Index.Path
	default:
		p.derived = true
		if p.indexPath, err = p.cache.IndexPath(root); err != nil {
			return nil, fmt.Errorf("failed to derive index path: %w", err)
		}
	}
	if p.indexPath, err = filepath.Abs(p.indexPath); err != nil {
		return nil, fmt.Errorf("failed to resolve index path: %w", err)
	}
	return p, nil
}

// openProject resolves the project and opens its index. With mustExist a
// missing index is ErrNoIndex instead of being created.
func openProject(opts *options, mustExist bool) (*project, error) {
	p, err := resolveProject(opts)
	if err != nil {
		return nil, err
	}
	if mustExist {
		if _, err := os.Stat(p.indexPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s; run 'ast-index rebuild' first", ErrNoIndex, p.root)
		}
	}
	if p.derived {
		p.store, err = p.cache.Open(p.root, p.indexPath)
	} else {
		p.store, err = storage.Open(p.indexPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return p, nil
}

// Close releases the store.
func (p *project) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// builder creates an index builder wired to the project's configuration.
func (p *project) builder(progress indexer.ProgressReporter, noDeps bool) (*indexer.Builder, error) {
	resolver, err := p.cfg.Resolver()
	if err != nil {
		return nil, err
	}
	cfg := p.cfg.ToIndexerConfig(p.root)
	cfg.NoDeps = noDeps
	b, err := indexer.New(cfg, p.store, resolver, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}
	return b, nil
}

// engine creates a query engine over the project's index.
func (p *project) engine() (*query.Engine, error) {
	e, err := query.New(p.store, p.root, p.git)
	if err != nil {
		return nil, fmt.Errorf("failed to create query engine: %w", err)
	}
	return e, nil
}

// withEngine opens an existing index and runs fn against a query engine.
func withEngine(opts *options, fn func(p *project, e *query.Engine) error) error {
	p, err := openProject(opts, true)
	if err != nil {
		return err
	}
	defer p.Close()

	e, err := p.engine()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(p, e)
}
