package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the project configuration file inside Dir.
const FileName = "config.yml"

const defaultConfigYAML = `# ast-index project configuration.
# Every key can be overridden with an AST_INDEX_* environment variable,
# e.g. AST_INDEX_INDEX_WORKERS=4.

index:
  # Explicit index.db location; empty keeps it under ~/.ast-index/indexes.
  path: ""
  # Glob patterns, relative to the project root, that are never indexed.
  ignore: []
  use_gitignore: true
  max_file_size: 1048576
  # 0 uses one worker per CPU.
  workers: 0

resolve:
  # Rules that pick among equally named declarations, in order.
  tie_break: [same-module, same-file, lexicographic]

watch:
  debounce: 500ms

search:
  limit: 50

cache:
  root: ""
  max_age_days: 30
`

// WriteDefault writes a commented default config.yml under rootDir unless
// one exists. It returns the file path and whether it was created.
func WriteDefault(rootDir string) (string, bool, error) {
	dir := filepath.Join(rootDir, Dir)
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return "", false, fmt.Errorf("failed to write config: %w", err)
	}
	return path, true, nil
}
