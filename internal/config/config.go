// Package config loads ast-index settings.
//
// Sources, highest priority first:
//  1. Environment variables (AST_INDEX_*), including those set by a .env
//     file in the project root
//  2. .ast-index/config.yml (or .yaml) in the project root
//  3. Default()
//
// Nested keys map to underscores: index.path is AST_INDEX_INDEX_PATH.
package config

import (
	"time"

	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/resolve"
)

// Dir is the per-project directory holding config.yml.
const Dir = ".ast-index"

// Config represents the complete ast-index configuration.
type Config struct {
	// ProjectRoot overrides the directory commands run against.
	ProjectRoot string        `yaml:"project_root" mapstructure:"project_root"`
	Index       IndexConfig   `yaml:"index" mapstructure:"index"`
	Resolve     ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Watch       WatchConfig   `yaml:"watch" mapstructure:"watch"`
	Search      SearchConfig  `yaml:"search" mapstructure:"search"`
	Cache       CacheConfig   `yaml:"cache" mapstructure:"cache"`
}

// IndexConfig controls discovery and the builder.
type IndexConfig struct {
	Path         string   `yaml:"path" mapstructure:"path"`                   // explicit index.db location; empty derives one per project
	Ignore       []string `yaml:"ignore" mapstructure:"ignore"`               // glob patterns relative to the root
	UseGitignore bool     `yaml:"use_gitignore" mapstructure:"use_gitignore"` // honour the root .gitignore
	MaxFileSize  int64    `yaml:"max_file_size" mapstructure:"max_file_size"` // bytes; 0 disables the limit
	Workers      int      `yaml:"workers" mapstructure:"workers"`             // 0 means one per CPU
}

// ResolveConfig controls reference resolution.
type ResolveConfig struct {
	// TieBreak orders the rules that pick among equally named candidates.
	TieBreak []string `yaml:"tie_break" mapstructure:"tie_break"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// SearchConfig controls query defaults.
type SearchConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// CacheConfig controls where derived indexes live and when they are pruned.
type CacheConfig struct {
	Root       string `yaml:"root" mapstructure:"root"` // empty means ~/.ast-index/indexes
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			UseGitignore: true,
			MaxFileSize:  1 << 20,
		},
		Resolve: ResolveConfig{
			TieBreak: append([]string(nil), resolve.DefaultOrder...),
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Search: SearchConfig{
			Limit: 50,
		},
		Cache: CacheConfig{
			MaxAgeDays: 30,
		},
	}
}

// ToIndexerConfig converts a Config to an indexer.Config for rootDir.
func (c *Config) ToIndexerConfig(rootDir string) *indexer.Config {
	cfg := indexer.DefaultConfig(rootDir)
	cfg.IgnorePatterns = c.Index.Ignore
	cfg.UseGitignore = c.Index.UseGitignore
	cfg.MaxFileSize = c.Index.MaxFileSize
	if c.Index.Workers > 0 {
		cfg.Workers = c.Index.Workers
	}
	return cfg
}

// Resolver builds the reference resolver for the configured tie-break order.
func (c *Config) Resolver() (*resolve.Resolver, error) {
	chain, err := resolve.NewChain(c.Resolve.TieBreak)
	if err != nil {
		return nil, err
	}
	return resolve.New(chain), nil
}
