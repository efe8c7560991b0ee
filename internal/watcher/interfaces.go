// Package watcher keeps an index current while the project is being edited.
//
// A FileWatcher reports debounced batches of changed source files; a
// GitWatcher reports branch switches. The WatchCoordinator turns both into
// incremental index updates.
package watcher

import (
	"context"

	"github.com/mvp-joe/ast-index/internal/indexer"
)

// FileWatcher monitors source files for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching, calling callback with each debounced batch of
	// changed paths relative to the project root.
	Start(ctx context.Context, callback func(files []string)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}

// GitWatcher monitors .git/HEAD for branch switches.
type GitWatcher interface {
	Start(ctx context.Context, callback func(oldBranch, newBranch string)) error
	Stop() error
}

// Updater brings the index in line with the working tree.
// *indexer.Builder satisfies it.
type Updater interface {
	Update(ctx context.Context) (*indexer.Stats, error)
}

// PathFilter decides whether a root-relative path is worth an update.
// *indexer.FileDiscovery satisfies it.
type PathFilter interface {
	Accepts(relPath string) bool
}
