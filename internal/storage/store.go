package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreUnavailable marks failures to open, migrate or write the index.
// Commands surface it as fatal.
var ErrStoreUnavailable = errors.New("index store unavailable")

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaGeneration    = "generation"
	MetaLastRebuild   = "last_rebuild_at"
	MetaLastUpdate    = "last_update_at"
	MetaLastFailures  = "last_failures"
	MetaProjectRoot   = "project_root"
)

// Store owns the SQLite connection pool for one project index.
// Its lifecycle is explicit: Open at command start, Close at command end.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create index directory: %v", ErrStoreUnavailable, err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %v", ErrStoreUnavailable, err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch version {
	case "0":
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	case SchemaVersion:
	default:
		// Derived data only: an old layout is dropped and rebuilt from source.
		if err := resetSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// View runs fn inside a read-only transaction so every read in fn observes
// the same committed snapshot.
func (s *Store) View(ctx context.Context, fn func(r *Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: failed to begin read transaction: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // Read-only, nothing to commit

	return fn(&Reader{q: tx})
}

// Reset drops and recreates every table. The generation keeps counting
// across resets so caches keyed by it never see a value reused.
func (s *Store) Reset(ctx context.Context) error {
	gen, err := s.Generation(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := resetSchema(s.db); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.SetMetadata(ctx, MetaGeneration, strconv.FormatInt(gen+1, 10))
}

func resetSchema(db *sql.DB) error {
	for _, table := range dropTables {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return CreateSchema(db)
}

// SetMetadata upserts a metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, s.db, key, value)
}

// GetMetadata returns a metadata value, or "" when absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, s.db, key)
}

// Generation returns the commit counter of the index.
func (s *Store) Generation(ctx context.Context) (int64, error) {
	v, err := s.GetMetadata(ctx, MetaGeneration)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

type execQueryer interface {
	sq.BaseRunner
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func setMetadata(ctx context.Context, q execQueryer, key, value string) error {
	_, err := sq.Insert("index_metadata").
		Columns("key", "value", "updated_at").
		Values(key, value, time.Now().UTC().Format(time.RFC3339)).
		Options("OR REPLACE").
		RunWith(q).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

func getMetadata(ctx context.Context, q execQueryer, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM index_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

func bumpGeneration(ctx context.Context, q execQueryer) error {
	_, err := q.ExecContext(ctx,
		"UPDATE index_metadata SET value = CAST(value AS INTEGER) + 1, updated_at = ? WHERE key = ?",
		time.Now().UTC().Format(time.RFC3339), MetaGeneration)
	if err != nil {
		return fmt.Errorf("failed to bump generation: %w", err)
	}
	return nil
}
