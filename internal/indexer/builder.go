package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/ast-index/internal/extract"
	"github.com/mvp-joe/ast-index/internal/model"
	"github.com/mvp-joe/ast-index/internal/resolve"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Builder keeps the store in sync with the files under a project root.
//
// Extraction runs on a bounded worker pool; a single goroutine commits the
// results one file per transaction, so readers never observe a file half
// written. Runs are serialized.
type Builder struct {
	config    *Config
	store     *storage.Store
	writer    *storage.FileWriter
	discovery *FileDiscovery
	detector  *ChangeDetector
	progress  ProgressReporter

	state atomic.Int32
	mu    sync.Mutex
}

// New creates a builder over an open store. A nil resolver uses the default
// tie-break order; a nil progress reporter stays silent.
func New(config *Config, store *storage.Store, resolver *resolve.Resolver, progress ProgressReporter) (*Builder, error) {
	if store == nil {
		return nil, fmt.Errorf("index store is required")
	}
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	cfg := *config
	cfg.RootDir = root
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	discovery, err := NewFileDiscovery(root, cfg.IgnorePatterns, cfg.MaxFileSize, cfg.UseGitignore)
	if err != nil {
		return nil, fmt.Errorf("failed to create file discovery: %w", err)
	}
	if progress == nil {
		progress = NoOpProgressReporter{}
	}

	return &Builder{
		config:    &cfg,
		store:     store,
		writer:    storage.NewFileWriter(store, resolver),
		discovery: discovery,
		detector:  NewChangeDetector(root, store),
		progress:  progress,
	}, nil
}

// State returns the current phase.
func (b *Builder) State() State {
	return State(b.state.Load())
}

// RootDir returns the absolute project root.
func (b *Builder) RootDir() string {
	return b.config.RootDir
}

// Discovery exposes the file filter, e.g. for the watcher.
func (b *Builder) Discovery() *FileDiscovery {
	return b.discovery
}

func (b *Builder) setState(s State) {
	b.state.Store(int32(s))
}

// Rebuild clears the store and indexes every discovered file.
func (b *Builder) Rebuild(ctx context.Context) (*Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.setState(StateIdle)
	start := time.Now()

	files, err := b.discover()
	if err != nil {
		return nil, err
	}
	if err := b.store.Reset(ctx); err != nil {
		return nil, err
	}

	stats := &Stats{Discovered: len(files), Added: len(files)}
	if _, err := b.commitFiles(ctx, files, stats); err != nil {
		return nil, err
	}
	if err := b.finish(ctx, files, true, nil, stats); err != nil {
		return nil, err
	}
	if err := b.store.SetMetadata(ctx, storage.MetaLastRebuild, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	b.progress.OnComplete(stats)
	return stats, nil
}

// Update indexes added and modified files and removes deleted ones.
// Unchanged files are not read beyond an mtime check.
func (b *Builder) Update(ctx context.Context) (*Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.setState(StateIdle)
	start := time.Now()

	files, err := b.discover()
	if err != nil {
		return nil, err
	}
	changes, err := b.detector.DetectChanges(ctx, files)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Discovered: len(files),
		Added:      len(changes.Added),
		Modified:   len(changes.Modified),
		Deleted:    len(changes.Deleted),
		Unchanged:  len(changes.Unchanged),
	}

	b.setState(StateCommitting)
	manifestsChanged := false
	for _, path := range changes.Deleted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.writer.DeleteFile(ctx, path); err != nil {
			return nil, err
		}
		if extract.DetectLanguage(path).IsManifest() {
			manifestsChanged = true
		}
	}

	if len(changes.Touched) > 0 {
		mtimes := make(map[string]time.Time, len(changes.Touched))
		for _, f := range changes.Touched {
			mtimes[f.Path] = f.ModTime
		}
		if err := b.writer.TouchFiles(ctx, mtimes); err != nil {
			return nil, err
		}
	}

	toProcess := append(append([]SourceFile{}, changes.Added...), changes.Modified...)
	for _, f := range toProcess {
		if f.Language.IsManifest() {
			manifestsChanged = true
		}
	}
	declared, err := b.commitFiles(ctx, toProcess, stats)
	if err != nil {
		return nil, err
	}
	if declared == nil {
		declared = []string{}
	}

	if changes.Changed() {
		if err := b.finish(ctx, files, manifestsChanged, declared, stats); err != nil {
			return nil, err
		}
	}
	if err := b.store.SetMetadata(ctx, storage.MetaLastUpdate, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	b.progress.OnComplete(stats)
	return stats, nil
}

func (b *Builder) discover() ([]SourceFile, error) {
	b.setState(StateDiscovering)
	b.progress.OnDiscoveryStart()
	files, err := b.discovery.Discover()
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	b.progress.OnDiscoveryComplete(len(files))
	return files, nil
}

type extracted struct {
	file SourceFile
	res  *model.FileResult
	err  error
}

// commitFiles extracts files in parallel and commits each result from a
// single goroutine. Extraction failures are recorded in stats and mark the
// file unindexed, leaving its previous rows in place; store failures abort
// the run. Returns the symbol names declared by the committed files.
func (b *Builder) commitFiles(ctx context.Context, files []SourceFile, stats *Stats) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	b.setState(StateExtracting)
	b.progress.OnExtractionStart(len(files))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan extracted, b.config.Workers)
	var declared []string
	var commitErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if commitErr != nil {
				continue // drain
			}
			if r.err != nil {
				failure := asFailure(r.file.Path, r.err)
				stats.Failures = append(stats.Failures, failure)
				b.progress.OnFileFailed(r.file.Path, failure.Err)
				if err := b.writer.MarkFailed(ctx, r.file.Path, r.file.Language, r.file.Size, fmt.Sprint(failure.Err)); err != nil {
					commitErr = err
					cancel()
				}
				continue
			}
			if err := ctx.Err(); err != nil {
				commitErr = err
				continue
			}
			b.setState(StateCommitting)
			if err := b.writer.ReplaceFile(ctx, r.res); err != nil {
				commitErr = err
				cancel()
				continue
			}
			stats.Committed++
			declared = append(declared, r.res.SymbolNames()...)
			b.progress.OnFileCommitted(r.file.Path)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Workers)
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := b.extractFile(f)
			select {
			case results <- extracted{file: f, res: res, err: err}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	waitErr := g.Wait()
	close(results)
	<-done

	if commitErr != nil {
		return nil, commitErr
	}
	if waitErr != nil {
		return nil, waitErr
	}
	return declared, ctx.Err()
}

func (b *Builder) extractFile(f SourceFile) (*model.FileResult, error) {
	content, err := os.ReadFile(filepath.Join(b.config.RootDir, filepath.FromSlash(f.Path)))
	if err != nil {
		return nil, err
	}
	res, err := extract.Extract(f.Path, f.Language, content)
	if err != nil {
		return nil, err
	}
	res.ModTime = f.ModTime
	return res, nil
}

func asFailure(path string, err error) *extract.Failure {
	var failure *extract.Failure
	if errors.As(err, &failure) {
		return failure
	}
	return &extract.Failure{Path: path, Err: err}
}

// finish runs the whole-index passes after file commits: module graph,
// membership, ambiguous re-resolution and run metadata.
//
// Replacing or deleting a file already re-resolves the names it declared or
// removed in its own transaction, against module ids known at that time.
// What remains is the same-module tie-break for files whose module changed,
// plus the names declared by this run. Only a new module graph, or a nil
// declared list (full rebuild), re-resolves every ambiguous name.
func (b *Builder) finish(ctx context.Context, files []SourceFile, modulesChanged bool, declared []string, stats *Stats) error {
	b.setState(StateCommitting)

	newGraph := !b.config.NoDeps && modulesChanged
	if newGraph {
		modules, deps, failures := b.collectModules(files)
		stats.Failures = append(stats.Failures, failures...)
		unknown, err := b.store.ReplaceModules(ctx, modules, deps)
		if err != nil {
			return err
		}
		stats.UnknownDeps = unknown
		b.progress.OnModulesResolved(len(modules), len(deps)-len(unknown))
	}

	reassigned, err := b.store.ReassignModules(ctx)
	if err != nil {
		return err
	}
	var scope *storage.AmbiguousScope
	if declared != nil && !newGraph {
		scope = &storage.AmbiguousScope{Names: declared, FileIDs: reassigned}
	}
	ambiguous, err := b.writer.ReresolveAmbiguous(ctx, scope)
	if err != nil {
		return err
	}
	stats.Ambiguous = ambiguous

	err = b.store.View(ctx, func(r *storage.Reader) error {
		counts, err := r.Counts(ctx)
		if err != nil {
			return err
		}
		stats.Dangling = counts.Dangling
		stats.Modules = counts.Modules
		return nil
	})
	if err != nil {
		return err
	}

	if err := b.store.SetMetadata(ctx, storage.MetaLastFailures, strconv.Itoa(len(stats.Failures))); err != nil {
		return err
	}
	return b.store.SetMetadata(ctx, storage.MetaProjectRoot, b.config.RootDir)
}
