package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for FileWatcher:
// - Creating, editing and deleting a supported file fires a callback with its
//   root-relative path
// - Rapid edits across files are coalesced into one sorted, deduplicated batch
// - Unsupported extensions and excluded directories are ignored
// - New directories are watched recursively
// - Pause accumulates; Resume delivers the accumulated batch
// - A custom PathFilter narrows events
// - Stop is idempotent and safe without Start; context cancellation stops the loop
// - Construction fails for a missing root

const testDebounce = 50 * time.Millisecond

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *batchRecorder) record(files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, files)
}

func (r *batchRecorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func (r *batchRecorder) all() []string {
	var out []string
	for _, b := range r.snapshot() {
		out = append(out, b...)
	}
	return out
}

func startFileWatcher(t *testing.T, root string, filter PathFilter) (FileWatcher, *batchRecorder) {
	t.Helper()
	w, err := NewFileWatcher(root, filter, testDebounce)
	require.NoError(t, err)
	rec := &batchRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	require.NoError(t, w.Start(ctx, rec.record))
	time.Sleep(50 * time.Millisecond)
	return w, rec
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestFileWatcher_CreateEditDelete(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app/src"), 0755))
	_, rec := startFileWatcher(t, root, nil)

	write(t, root, "app/src/Main.kt", "class Main\n")
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"app/src/Main.kt"}, rec.snapshot()[0])

	write(t, root, "app/src/Main.kt", "class Main2\n")
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "app/src/Main.kt")))
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"app/src/Main.kt"}, rec.snapshot()[2])
}

func TestFileWatcher_Batching(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, rec := startFileWatcher(t, root, nil)

	for i := 0; i < 3; i++ {
		write(t, root, "B.swift", "class B {}\n")
		write(t, root, "A.java", "class A {}\n")
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testDebounce)

	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"A.java", "B.swift"}, batches[0])
}

func TestFileWatcher_Filtering(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build/generated"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	_, rec := startFileWatcher(t, root, nil)

	write(t, root, "README.md", "# readme\n")
	write(t, root, "build/generated/R.java", "class R {}\n")
	write(t, root, "src/notes.txt", "notes\n")
	write(t, root, "src/Keep.kt", "class Keep\n")

	assert.Eventually(t, func() bool { return len(rec.all()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, []string{"src/Keep.kt"}, rec.all())
}

type prefixFilter string

func (p prefixFilter) Accepts(rel string) bool {
	return len(rel) >= len(p) && rel[:len(p)] == string(p)
}

func TestFileWatcher_CustomFilter(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ios"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "android"), 0755))
	_, rec := startFileWatcher(t, root, prefixFilter("ios/"))

	write(t, root, "android/Main.kt", "class Main\n")
	write(t, root, "ios/App.swift", "class App {}\n")

	assert.Eventually(t, func() bool { return len(rec.all()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, []string{"ios/App.swift"}, rec.all())
}

func TestFileWatcher_NewDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, rec := startFileWatcher(t, root, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "feature"), 0755))
	time.Sleep(100 * time.Millisecond)
	write(t, root, "feature/Login.kt", "class Login\n")

	assert.Eventually(t, func() bool {
		for _, f := range rec.all() {
			if f == "feature/Login.kt" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_PauseResume(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, rec := startFileWatcher(t, root, nil)

	w.Pause()
	write(t, root, "Paused.kt", "class Paused\n")
	time.Sleep(4 * testDebounce)
	assert.Empty(t, rec.snapshot(), "no callback while paused")

	w.Resume()
	batches := rec.snapshot()
	require.Len(t, batches, 1, "resume delivers synchronously")
	assert.Equal(t, []string{"Paused.kt"}, batches[0])

	w.Resume()
	assert.Len(t, rec.snapshot(), 1, "resume without pause is a no-op")
}

func TestFileWatcher_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("stop without start", func(t *testing.T) {
		t.Parallel()
		w, err := NewFileWatcher(t.TempDir(), nil, 0)
		require.NoError(t, err)
		assert.NoError(t, w.Stop())
		assert.NoError(t, w.Stop())
	})

	t.Run("concurrent stop", func(t *testing.T) {
		t.Parallel()
		w, err := NewFileWatcher(t.TempDir(), nil, testDebounce)
		require.NoError(t, err)
		require.NoError(t, w.Start(context.Background(), func([]string) {}))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = w.Stop()
			}()
		}
		wg.Wait()
	})

	t.Run("context cancel", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		w, err := NewFileWatcher(root, nil, testDebounce)
		require.NoError(t, err)
		rec := &batchRecorder{}
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, w.Start(ctx, rec.record))
		cancel()
		time.Sleep(50 * time.Millisecond)

		write(t, root, "Late.kt", "class Late\n")
		time.Sleep(4 * testDebounce)
		assert.Empty(t, rec.snapshot())
		assert.NoError(t, w.Stop())
	})

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()
		w, err := NewFileWatcher(filepath.Join(t.TempDir(), "nope"), nil, 0)
		assert.Error(t, err)
		assert.Nil(t, w)
	})
}
