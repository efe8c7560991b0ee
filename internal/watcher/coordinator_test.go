package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Test Plan for WatchCoordinator:
// - Start blocks until the context is cancelled, then stops both watchers
// - A file batch triggers one Update
// - A branch switch pauses files, runs Update, resumes (in that order)
// - File changes during a branch switch are delivered after resume
// - Update errors are logged and the coordinator keeps running
// - Watcher start errors are returned
// - A nil git watcher is allowed
// - End to end: an edited file lands in the store through a real Builder

type mockGitWatcher struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	callback func(oldBranch, newBranch string)
	stopped  bool
}

func (m *mockGitWatcher) Start(ctx context.Context, callback func(oldBranch, newBranch string)) error {
	m.mu.Lock()
	m.callback = callback
	startErr := m.startErr
	m.mu.Unlock()
	if startErr != nil {
		return startErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockGitWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return m.stopErr
}

func (m *mockGitWatcher) switchBranch(oldBranch, newBranch string) {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(oldBranch, newBranch)
	}
}

type mockFileWatcher struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	callback func(files []string)
	paused   bool
	queued   [][]string
	stopped  bool
	events   []string
}

func (m *mockFileWatcher) Start(ctx context.Context, callback func(files []string)) error {
	m.mu.Lock()
	m.callback = callback
	startErr := m.startErr
	m.mu.Unlock()
	if startErr != nil {
		return startErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockFileWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return m.stopErr
}

func (m *mockFileWatcher) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.events = append(m.events, "pause")
}

func (m *mockFileWatcher) Resume() {
	m.mu.Lock()
	m.paused = false
	m.events = append(m.events, "resume")
	queued, cb := m.queued, m.callback
	m.queued = nil
	m.mu.Unlock()

	for _, files := range queued {
		cb(files)
	}
}

func (m *mockFileWatcher) change(files ...string) {
	m.mu.Lock()
	if m.paused {
		m.queued = append(m.queued, files)
		m.mu.Unlock()
		return
	}
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(files)
	}
}

func (m *mockFileWatcher) log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type mockUpdater struct {
	mu    sync.Mutex
	err   error
	calls int
	files *mockFileWatcher
	// hook runs inside Update, e.g. to simulate edits mid-update.
	hook func()
}

func (m *mockUpdater) Update(ctx context.Context) (*indexer.Stats, error) {
	m.mu.Lock()
	m.calls++
	err, hook := m.err, m.hook
	m.mu.Unlock()

	if m.files != nil {
		m.files.mu.Lock()
		m.files.events = append(m.files.events, "update")
		m.files.mu.Unlock()
	}
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &indexer.Stats{Modified: 1}, nil
}

func (m *mockUpdater) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func setupCoordinator(t *testing.T) (*WatchCoordinator, *mockGitWatcher, *mockFileWatcher, *mockUpdater, context.CancelFunc, chan error) {
	t.Helper()
	git := &mockGitWatcher{}
	files := &mockFileWatcher{}
	updater := &mockUpdater{files: files}
	coord := NewWatchCoordinator(git, files, updater)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- coord.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	return coord, git, files, updater, cancel, done
}

func TestWatchCoordinator_Shutdown(t *testing.T) {
	t.Parallel()

	_, git, files, _, cancel, done := setupCoordinator(t)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	git.mu.Lock()
	assert.True(t, git.stopped)
	git.mu.Unlock()
	files.mu.Lock()
	assert.True(t, files.stopped)
	files.mu.Unlock()
}

func TestWatchCoordinator_FileChange(t *testing.T) {
	t.Parallel()

	_, _, files, updater, _, _ := setupCoordinator(t)

	files.change()
	assert.Equal(t, 0, updater.count(), "empty batch is ignored")

	files.change("app/src/Main.kt", "app/src/Util.kt")
	assert.Equal(t, 1, updater.count())
}

func TestWatchCoordinator_BranchSwitch(t *testing.T) {
	t.Parallel()

	_, git, files, updater, _, _ := setupCoordinator(t)
	updater.hook = func() {
		updater.hook = nil
		files.change("src/Edited.kt")
	}

	git.switchBranch("main", "feature")

	assert.Equal(t, []string{"pause", "update", "resume", "update"}, files.log())
	assert.Equal(t, 2, updater.count())
}

func TestWatchCoordinator_UpdateErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	_, git, files, updater, _, done := setupCoordinator(t)
	updater.err = errors.New("disk full")

	files.change("A.kt")
	git.switchBranch("main", "feature")
	files.change("B.kt")

	assert.Equal(t, 3, updater.count())
	assert.Equal(t, []string{"update", "pause", "update", "resume", "update"}, files.log())
	select {
	case err := <-done:
		t.Fatalf("coordinator exited: %v", err)
	default:
	}
}

func TestWatchCoordinator_StartErrors(t *testing.T) {
	t.Parallel()

	t.Run("git", func(t *testing.T) {
		t.Parallel()
		git := &mockGitWatcher{startErr: errors.New("git watcher failed")}
		coord := NewWatchCoordinator(git, &mockFileWatcher{}, &mockUpdater{})
		err := coord.Start(context.Background())
		assert.EqualError(t, err, "git watcher failed")
	})

	t.Run("files", func(t *testing.T) {
		t.Parallel()
		files := &mockFileWatcher{startErr: errors.New("file watcher failed")}
		coord := NewWatchCoordinator(&mockGitWatcher{}, files, &mockUpdater{})
		err := coord.Start(context.Background())
		assert.EqualError(t, err, "file watcher failed")
	})

	t.Run("stop errors are logged", func(t *testing.T) {
		t.Parallel()
		git := &mockGitWatcher{stopErr: errors.New("x")}
		files := &mockFileWatcher{stopErr: errors.New("y")}
		coord := NewWatchCoordinator(git, files, &mockUpdater{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, coord.Start(ctx), context.Canceled)
	})
}

func TestWatchCoordinator_WithoutGit(t *testing.T) {
	t.Parallel()

	files := &mockFileWatcher{}
	updater := &mockUpdater{}
	coord := NewWatchCoordinator(nil, files, updater)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	files.change("A.kt")
	assert.Equal(t, 1, updater.count())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchCoordinator_EndToEnd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "src/Foo.kt", "class Foo\n")

	store := storage.NewTestStore(t)
	cfg := indexer.DefaultConfig(root)
	cfg.UseGitignore = false
	b, err := indexer.New(cfg, store, nil, nil)
	require.NoError(t, err)
	_, err = b.Rebuild(context.Background())
	require.NoError(t, err)

	files, err := NewFileWatcher(root, b.Discovery(), testDebounce)
	require.NoError(t, err)
	coord := NewWatchCoordinator(nil, files, b)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src/Bar.kt"), []byte("class Bar\n"), 0644))

	assert.Eventually(t, func() bool {
		var found bool
		err := store.View(context.Background(), func(r *storage.Reader) error {
			rows, err := r.SymbolsByName(context.Background(), "Bar")
			found = len(rows) == 1
			return err
		})
		return err == nil && found
	}, 5*time.Second, 50*time.Millisecond)
}
