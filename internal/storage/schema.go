package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is bumped whenever the DDL below changes incompatibly.
const SchemaVersion = "2"

// CreateSchema creates all tables, indexes, and full-text tables of the index.
// Uses a transaction for atomicity - all schema creation succeeds or fails together.
//
// Schema includes:
//   - files, symbols, symbol_annotations, edges, imports
//   - markers, xml_refs, resources (audit facets)
//   - modules, module_deps
//   - symbols_fts, files_fts (FTS5, trigram tokenizer)
//   - index_metadata bootstrapped with the schema version
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"modules", createModulesTable},
		{"module_deps", createModuleDepsTable},
		{"files", createFilesTable},
		{"symbols", createSymbolsTable},
		{"symbol_annotations", createSymbolAnnotationsTable},
		{"edges", createEdgesTable},
		{"imports", createImportsTable},
		{"markers", createMarkersTable},
		{"xml_refs", createXMLRefsTable},
		{"resources", createResourcesTable},
		{"index_metadata", createIndexMetadataTable},
		{"symbols_fts", createSymbolsFTSTable},
		{"files_fts", createFilesFTSTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	bootstrap := map[string]string{
		MetaSchemaVersion: SchemaVersion,
		MetaGeneration:    "0",
	}
	for k, v := range bootstrap {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO index_metadata (key, value, updated_at) VALUES (?, ?, ?)",
			k, v, now,
		); err != nil {
			return fmt.Errorf("failed to bootstrap metadata %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version, or "0" for a new database.
func GetSchemaVersion(db *sql.DB) (string, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'index_metadata'",
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to inspect schema: %w", err)
	}
	if exists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM index_metadata WHERE key = ?", MetaSchemaVersion).Scan(&version)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// dropTables lists every table in reverse dependency order.
var dropTables = []string{
	"files_fts", "symbols_fts",
	"index_metadata", "resources", "xml_refs", "markers", "imports",
	"edges", "symbol_annotations", "symbols", "files", "module_deps", "modules",
}

const createModulesTable = `
CREATE TABLE IF NOT EXISTS modules (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,              -- ":feature:login", "CoreKit"
    kind TEXT NOT NULL,                     -- gradle | spm-target | test-target | binary-target
    root_path TEXT NOT NULL,                -- relative to project root, '' for root module
    manifest_path TEXT NOT NULL DEFAULT ''
)`

const createModuleDepsTable = `
CREATE TABLE IF NOT EXISTS module_deps (
    from_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    to_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,                     -- api | implementation | test | compile-only
    line INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (from_id, to_id, kind)
)`

const createFilesTable = `
CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,              -- relative to project root, forward slashes
    language TEXT NOT NULL,
    fingerprint TEXT NOT NULL,              -- sha256 of content
    mtime INTEGER NOT NULL,                 -- unix nanoseconds
    size INTEGER NOT NULL,
    module_id INTEGER REFERENCES modules(id) ON DELETE SET NULL,
    indexed_at TEXT NOT NULL,
    failure TEXT NOT NULL DEFAULT ''        -- last extraction error; non-empty means unindexed
)`

const createSymbolsTable = `
CREATE TABLE IF NOT EXISTS symbols (
    id TEXT PRIMARY KEY,                    -- stable name-based uuid
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    qualified_name TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    visibility TEXT NOT NULL DEFAULT 'public',
    signature TEXT NOT NULL DEFAULT '',
    doc TEXT NOT NULL DEFAULT '',
    body_hash TEXT NOT NULL DEFAULT '',
    ordinal INTEGER NOT NULL DEFAULT 0
)`

const createSymbolAnnotationsTable = `
CREATE TABLE IF NOT EXISTS symbol_annotations (
    symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
    name TEXT NOT NULL,                     -- without '@'
    PRIMARY KEY (symbol_id, name)
)`

// target_symbol_id is checked at commit so a file's symbols can be replaced
// in place without breaking edges from other files.
const createEdgesTable = `
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    source_symbol_id TEXT REFERENCES symbols(id) ON DELETE CASCADE,  -- NULL = file scope
    kind TEXT NOT NULL,
    target_name TEXT NOT NULL,
    scope_hint TEXT NOT NULL DEFAULT '',
    target_symbol_id TEXT REFERENCES symbols(id) DEFERRABLE INITIALLY DEFERRED,  -- NULL = dangling
    candidates INTEGER NOT NULL DEFAULT 0,
    line INTEGER NOT NULL,
    context TEXT NOT NULL DEFAULT ''
)`

const createImportsTable = `
CREATE TABLE IF NOT EXISTS imports (
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    alias TEXT NOT NULL DEFAULT '',
    line INTEGER NOT NULL,
    is_wildcard INTEGER NOT NULL DEFAULT 0
)`

const createMarkersTable = `
CREATE TABLE IF NOT EXISTS markers (
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,                     -- TODO | FIXME | HACK | XXX
    text TEXT NOT NULL,
    line INTEGER NOT NULL
)`

const createXMLRefsTable = `
CREATE TABLE IF NOT EXISTS xml_refs (
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    class_name TEXT NOT NULL,
    simple_name TEXT NOT NULL,
    attribute TEXT NOT NULL DEFAULT '',
    line INTEGER NOT NULL
)`

const createResourcesTable = `
CREATE TABLE IF NOT EXISTS resources (
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    line INTEGER NOT NULL,
    is_definition INTEGER NOT NULL DEFAULT 0
)`

const createIndexMetadataTable = `
CREATE TABLE IF NOT EXISTS index_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

const createSymbolsFTSTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
    symbol_id UNINDEXED,
    name,
    qualified_name,
    doc,
    tokenize = 'trigram'
)`

const createFilesFTSTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
    file_id UNINDEXED,
    path,
    tokenize = 'trigram'
)`

func getAllIndexes() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_files_module ON files(module_id)",
		"CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)",
		"CREATE INDEX IF NOT EXISTS idx_symbols_name_nocase ON symbols(name COLLATE NOCASE)",
		"CREATE INDEX IF NOT EXISTS idx_symbols_qualified ON symbols(qualified_name)",
		"CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind)",
		"CREATE INDEX IF NOT EXISTS idx_annotations_name ON symbol_annotations(name)",
		"CREATE INDEX IF NOT EXISTS idx_edges_file ON edges(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_symbol_id)",
		"CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_symbol_id)",
		"CREATE INDEX IF NOT EXISTS idx_edges_target_name ON edges(target_name, kind)",
		"CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_imports_path ON imports(path)",
		"CREATE INDEX IF NOT EXISTS idx_markers_file ON markers(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_xml_refs_file ON xml_refs(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_xml_refs_simple ON xml_refs(simple_name)",
		"CREATE INDEX IF NOT EXISTS idx_resources_key ON resources(type, name)",
		"CREATE INDEX IF NOT EXISTS idx_resources_file ON resources(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_module_deps_to ON module_deps(to_id)",
	}
}
