package indexer

import (
	"runtime"
	"time"

	"github.com/mvp-joe/ast-index/internal/extract"
	"github.com/mvp-joe/ast-index/internal/model"
)

// State is the phase of the builder.
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateExtracting
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateExtracting:
		return "extracting"
	case StateCommitting:
		return "committing"
	}
	return "idle"
}

// Config contains configuration for the builder.
type Config struct {
	// Root directory of the project to index
	RootDir string

	// Glob patterns, relative to RootDir, never indexed
	IgnorePatterns []string

	// Honour the root .gitignore
	UseGitignore bool

	// Files larger than this are skipped; 0 disables the limit
	MaxFileSize int64

	// Extraction parallelism; 0 means runtime.NumCPU()
	Workers int

	// Skip module resolution
	NoDeps bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(rootDir string) *Config {
	return &Config{
		RootDir:      rootDir,
		UseGitignore: true,
		MaxFileSize:  1 << 20,
		Workers:      runtime.NumCPU(),
	}
}

// Stats summarizes one Rebuild or Update.
type Stats struct {
	Discovered int
	Added      int
	Modified   int
	Deleted    int
	Unchanged  int
	Committed  int

	// Files whose extraction failed; their previous rows are kept.
	Failures []*extract.Failure

	Modules int
	// Declared dependencies naming a module that does not exist.
	UnknownDeps []model.ModuleDependency

	// Names re-resolved after module membership changed.
	Ambiguous int
	Dangling  int

	Duration time.Duration
}
