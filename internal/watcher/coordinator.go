package watcher

import (
	"context"
	"log"
	"sync"

	"github.com/mvp-joe/ast-index/internal/indexer"
)

// WatchCoordinator routes FileWatcher batches and GitWatcher branch
// switches to incremental index updates. The git watcher is optional.
type WatchCoordinator struct {
	git     GitWatcher
	files   FileWatcher
	updater Updater

	mu  sync.Mutex
	ctx context.Context
}

// NewWatchCoordinator creates a new watch coordinator. git may be nil when
// the project is not a git checkout.
func NewWatchCoordinator(git GitWatcher, files FileWatcher, updater Updater) *WatchCoordinator {
	return &WatchCoordinator{
		git:     git,
		files:   files,
		updater: updater,
		ctx:     context.Background(),
	}
}

// Start begins coordinating watchers and routing events to the updater.
// Blocks until context is cancelled or a watcher fails to start.
func (c *WatchCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	gitErr := make(chan error, 1)
	filesErr := make(chan error, 1)

	if c.git != nil {
		go func() {
			if err := c.git.Start(ctx, c.handleBranchSwitch); err != nil {
				gitErr <- err
			}
		}()
	}

	go func() {
		if err := c.files.Start(ctx, c.handleFileChange); err != nil {
			filesErr <- err
		}
	}()

	select {
	case err := <-gitErr:
		c.cleanup()
		return err
	case err := <-filesErr:
		c.cleanup()
		return err
	case <-ctx.Done():
		c.cleanup()
		return ctx.Err()
	}
}

// cleanup stops both watchers.
func (c *WatchCoordinator) cleanup() {
	if c.git != nil {
		if err := c.git.Stop(); err != nil {
			log.Printf("⚠ git watcher stop failed: %v", err)
		}
	}

	if err := c.files.Stop(); err != nil {
		log.Printf("⚠ file watcher stop failed: %v", err)
	}
}

func (c *WatchCoordinator) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// handleBranchSwitch pauses file callbacks while the whole tree is
// reconciled against the index, then resumes; edits made meanwhile are
// delivered after the resume.
func (c *WatchCoordinator) handleBranchSwitch(oldBranch, newBranch string) {
	log.Printf("Branch switch detected: %s → %s", oldBranch, newBranch)

	c.files.Pause()
	defer c.files.Resume()

	stats, err := c.updater.Update(c.context())
	if err != nil {
		log.Printf("⚠ update after branch switch failed: %v", err)
		return
	}
	logStats(stats)
}

// handleFileChange processes file change events from the file watcher.
func (c *WatchCoordinator) handleFileChange(files []string) {
	if len(files) == 0 {
		return
	}

	log.Printf("Processing %d file change(s)...", len(files))

	stats, err := c.updater.Update(c.context())
	if err != nil {
		log.Printf("⚠ update failed: %v", err)
		return
	}
	logStats(stats)
}

func logStats(stats *indexer.Stats) {
	log.Printf("✓ Updated %d file(s), deleted %d", stats.Added+stats.Modified, stats.Deleted)
	for _, f := range stats.Failures {
		log.Printf("⚠ %v", f)
	}
}
