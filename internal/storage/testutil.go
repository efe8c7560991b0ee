package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestStore opens a fully configured index in t.TempDir().
//
// A file database is used rather than ":memory:" because every pooled
// connection to ":memory:" would see its own empty database, and read
// snapshots run on their own connection.
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    store := storage.NewTestStore(t)
//	    // ... test code ...
//	    // No need to close - t.Cleanup() handles it
//	}
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}
