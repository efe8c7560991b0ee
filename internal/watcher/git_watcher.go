package watcher

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrNotGitCheckout is returned by FindGitDir when no .git is found above
// the project root.
var ErrNotGitCheckout = errors.New("not a git checkout")

// gitWatcher is the concrete implementation of GitWatcher.
type gitWatcher struct {
	gitDir   string
	headPath string
	watcher  *fsnotify.Watcher

	mu         sync.RWMutex
	lastBranch string

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// FindGitDir returns the git directory for a project root, walking up
// through parent directories. A .git file (worktrees, submodules) is
// followed to the directory it names.
func FindGitDir(root string) (string, error) {
	dir, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, ".git")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return candidate, nil
			}
			return readGitFile(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotGitCheckout
		}
		dir = parent
	}
}

func readGitFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir:") {
		return "", fmt.Errorf("unrecognized .git file %s", path)
	}
	target := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}

// NewGitWatcher creates a GitWatcher for the given git directory.
// Fails when HEAD cannot be read.
func NewGitWatcher(gitDir string) (GitWatcher, error) {
	headPath := filepath.Join(gitDir, "HEAD")

	initial, err := readBranch(headPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", headPath, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &gitWatcher{
		gitDir:     gitDir,
		headPath:   headPath,
		watcher:    w,
		lastBranch: initial,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins monitoring HEAD. The git directory is watched rather than
// the file because git replaces HEAD through a rename.
func (gw *gitWatcher) Start(ctx context.Context, callback func(oldBranch, newBranch string)) error {
	if err := gw.watcher.Add(gw.gitDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", gw.gitDir, err)
	}

	gw.mu.Lock()
	gw.started = true
	gw.mu.Unlock()

	go gw.watch(ctx, callback)
	return nil
}

// Stop stops the watcher and cleans up resources.
func (gw *gitWatcher) Stop() error {
	var err error
	gw.stopOnce.Do(func() {
		close(gw.stopCh)
		gw.mu.RLock()
		started := gw.started
		gw.mu.RUnlock()
		if started {
			<-gw.doneCh
		}
		err = gw.watcher.Close()
	})
	return err
}

func (gw *gitWatcher) watch(ctx context.Context, callback func(oldBranch, newBranch string)) {
	defer close(gw.doneCh)

	for {
		select {
		case <-ctx.Done():
			return

		case <-gw.stopCh:
			return

		case event, ok := <-gw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != gw.headPath {
				continue
			}
			// A removed HEAD is about to be recreated.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			newBranch, err := readBranch(gw.headPath)
			if err != nil {
				log.Printf("⚠ failed to read %s: %v", gw.headPath, err)
				continue
			}
			// Truncated mid-write; the write that follows carries the content.
			if newBranch == "" {
				continue
			}

			gw.mu.Lock()
			oldBranch := gw.lastBranch
			gw.lastBranch = newBranch
			gw.mu.Unlock()

			if newBranch != oldBranch {
				gw.fire(callback, oldBranch, newBranch)
			}

		case err, ok := <-gw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠ git watcher error: %v", err)
		}
	}
}

func (gw *gitWatcher) fire(callback func(oldBranch, newBranch string), oldBranch, newBranch string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠ branch switch handler panicked: %v", r)
		}
	}()
	callback(oldBranch, newBranch)
}

func readBranch(headPath string) (string, error) {
	content, err := os.ReadFile(headPath)
	if err != nil {
		return "", err
	}
	return parseBranch(content), nil
}

// parseBranch returns the branch HEAD points at, or "detached-<sha7>" for a
// detached HEAD, matching git.Operations.GetCurrentBranch.
func parseBranch(content []byte) string {
	line := string(bytes.TrimSpace(content))

	if ref, ok := strings.CutPrefix(line, "ref:"); ok {
		ref = strings.TrimSpace(ref)
		return strings.TrimPrefix(ref, "refs/heads/")
	}

	if (len(line) == 40 || len(line) == 64) && isHex(line) {
		return "detached-" + line[:7]
	}
	return line
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
