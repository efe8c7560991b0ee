package watcher

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mvp-joe/ast-index/internal/indexer"
)

// DefaultDebounce is the quiet period before a batch of changes is delivered.
const DefaultDebounce = 500 * time.Millisecond

// fileWatcher implements FileWatcher over a project root.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	filter   PathFilter
	excluded map[string]bool
	debounce time.Duration

	callback func(files []string)
	ctx      context.Context
	cancel   context.CancelFunc

	paused   bool
	pausedMu sync.RWMutex

	// Pending root-relative paths, delivered together once the tree is quiet.
	pending   map[string]bool
	pendingMu sync.Mutex

	timer   *time.Timer
	timerMu sync.Mutex

	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewFileWatcher watches every directory under root except excluded ones.
// Events are kept when filter accepts the root-relative path; a nil filter
// keeps every supported source file. A non-positive debounce uses
// DefaultDebounce.
func NewFileWatcher(root string, filter PathFilter, debounce time.Duration) (FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if filter == nil {
		fd, err := indexer.NewFileDiscovery(abs, nil, 0, false)
		if err != nil {
			w.Close()
			return nil, err
		}
		filter = fd
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw := &fileWatcher{
		watcher:  w,
		root:     abs,
		filter:   filter,
		excluded: make(map[string]bool, len(indexer.ExcludedDirs)),
		debounce: debounce,
		pending:  make(map[string]bool),
		doneCh:   make(chan struct{}),
	}
	for _, d := range indexer.ExcludedDirs {
		fw.excluded[d] = true
	}

	if err := fw.addTree(abs); err != nil {
		w.Close()
		return nil, err
	}
	return fw, nil
}

// Start begins watching for file changes.
func (fw *fileWatcher) Start(ctx context.Context, callback func(files []string)) error {
	if callback == nil {
		return nil
	}

	fw.callback = callback
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	go fw.watch()
	return nil
}

// Stop stops the file watcher. Safe to call more than once.
func (fw *fileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		if fw.cancel != nil {
			fw.cancel()
			<-fw.doneCh
		} else {
			close(fw.doneCh)
		}
		err = fw.watcher.Close()
	})
	return err
}

// Pause stops firing callbacks but continues accumulating events.
func (fw *fileWatcher) Pause() {
	fw.pausedMu.Lock()
	defer fw.pausedMu.Unlock()
	fw.paused = true
}

// Resume fires callbacks again, delivering anything accumulated meanwhile.
func (fw *fileWatcher) Resume() {
	fw.pausedMu.Lock()
	wasPaused := fw.paused
	fw.paused = false
	fw.pausedMu.Unlock()

	if wasPaused {
		fw.flush()
	}
}

func (fw *fileWatcher) isPaused() bool {
	fw.pausedMu.RLock()
	defer fw.pausedMu.RUnlock()
	return fw.paused
}

func (fw *fileWatcher) watch() {
	defer close(fw.doneCh)

	fire := make(chan struct{}, 1)

	for {
		select {
		case <-fw.ctx.Done():
			fw.stopTimer()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// New directories are watched as they appear.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !fw.excluded[info.Name()] {
						if err := fw.addTree(event.Name); err != nil {
							log.Printf("⚠ failed to watch new directory %s: %v", event.Name, err)
						}
					}
					continue
				}
			}

			rel, ok := fw.relevant(event)
			if !ok {
				continue
			}

			fw.pendingMu.Lock()
			fw.pending[rel] = true
			fw.pendingMu.Unlock()

			fw.resetTimer(fire)

		case <-fire:
			if !fw.isPaused() {
				fw.flush()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠ file watcher error: %v", err)
		}
	}
}

// flush delivers pending paths, sorted, in a single callback.
func (fw *fileWatcher) flush() {
	fw.pendingMu.Lock()
	if len(fw.pending) == 0 {
		fw.pendingMu.Unlock()
		return
	}
	files := make([]string, 0, len(fw.pending))
	for p := range fw.pending {
		files = append(files, p)
	}
	fw.pending = make(map[string]bool)
	fw.pendingMu.Unlock()

	sort.Strings(files)
	if fw.callback != nil {
		fw.callback(files)
	}
}

func (fw *fileWatcher) resetTimer(fire chan struct{}) {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
}

func (fw *fileWatcher) stopTimer() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
}

// relevant maps an event to a root-relative path when it is a write,
// create, remove or rename of a file the filter accepts.
func (fw *fileWatcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	rel, err := filepath.Rel(fw.root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !fw.filter.Accepts(rel) {
		return "", false
	}
	return rel, true
}

// addTree watches dir and its subdirectories, skipping excluded names.
func (fw *fileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Printf("⚠ cannot access %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root && fw.excluded[d.Name()] {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			log.Printf("⚠ failed to watch directory %s: %v", path, err)
		}
		return nil
	})
}
