//go:build fts5 || sqlite_fts5

// Package storage persists the symbol graph in SQLite with FTS5 full-text
// tables. Build with -tags="fts5" (or "sqlite_fts5") so mattn/go-sqlite3
// compiles FTS5 in.
package storage

import (
	_ "github.com/mattn/go-sqlite3"
)
