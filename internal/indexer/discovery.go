package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/mvp-joe/ast-index/internal/extract"
	"github.com/mvp-joe/ast-index/internal/model"
)

// ExcludedDirs are build outputs and tool caches that never hold sources
// worth indexing.
var ExcludedDirs = []string{
	"build", "node_modules", ".gradle", ".git", "target", ".idea",
	"__pycache__", ".dart_tool", "Pods", "DerivedData", ".build",
	".ast-index",
}

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// SourceFile is a discovered file eligible for extraction.
type SourceFile struct {
	Path     string // relative to the root, slash separated
	Language model.Language
	Size     int64
	ModTime  time.Time
}

// FileDiscovery walks a project root applying exclusion rules.
type FileDiscovery struct {
	rootDir        string
	maxFileSize    int64
	excludedDirs   map[string]bool
	ignorePatterns []compiledPattern
	gitignore      *ignore.GitIgnore
}

// NewFileDiscovery compiles the ignore patterns. The root .gitignore is
// honoured when useGitignore is set and the file exists.
func NewFileDiscovery(rootDir string, ignorePatterns []string, maxFileSize int64, useGitignore bool) (*FileDiscovery, error) {
	fd := &FileDiscovery{
		rootDir:      rootDir,
		maxFileSize:  maxFileSize,
		excludedDirs: make(map[string]bool, len(ExcludedDirs)),
	}
	for _, d := range ExcludedDirs {
		fd.excludedDirs[d] = true
	}

	for _, pattern := range ignorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		fd.ignorePatterns = append(fd.ignorePatterns, compiledPattern{pattern: pattern, glob: g})
	}

	if useGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(rootDir, ".gitignore")); err == nil {
			fd.gitignore = gi
		}
	}
	return fd, nil
}

// Discover returns supported files sorted by path.
func (fd *FileDiscovery) Discover() ([]SourceFile, error) {
	var files []SourceFile

	err := filepath.WalkDir(fd.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == fd.rootDir {
				return err
			}
			return nil // unreadable entries are skipped
		}

		relPath, err := filepath.Rel(fd.rootDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == fd.rootDir {
				return nil
			}
			if fd.excludedDirs[d.Name()] || fd.shouldIgnore(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		lang := extract.DetectLanguage(relPath)
		if lang == model.LangUnknown || fd.shouldIgnore(relPath, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if fd.maxFileSize > 0 && info.Size() > fd.maxFileSize {
			return nil
		}

		files = append(files, SourceFile{
			Path:     relPath,
			Language: lang,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Accepts reports whether a relative path would be discovered, ignoring
// size. Used by the watcher to filter events without walking.
func (fd *FileDiscovery) Accepts(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, part := range strings.Split(relPath, "/")[:strings.Count(relPath, "/")] {
		if fd.excludedDirs[part] {
			return false
		}
	}
	return extract.IsSupported(relPath) && !fd.shouldIgnore(relPath, false)
}

// shouldIgnore checks ignore globs and .gitignore rules.
func (fd *FileDiscovery) shouldIgnore(relPath string, isDir bool) bool {
	if fd.gitignore != nil {
		p := relPath
		if isDir {
			p += "/"
		}
		if fd.gitignore.MatchesPath(p) {
			return true
		}
	}

	if fd.matchesAnyPattern(relPath) {
		return true
	}

	// A directory "node_modules" also matches the pattern "node_modules/**".
	return fd.matchesAnyPattern(relPath + "/**")
}

func (fd *FileDiscovery) matchesAnyPattern(path string) bool {
	for _, cp := range fd.ignorePatterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// Root-level paths also match "**/"-prefixed patterns with the prefix
	// removed, so "**/*.gen.kt" matches "Foo.gen.kt".
	if !strings.Contains(path, "/") {
		for _, cp := range fd.ignorePatterns {
			if !strings.HasPrefix(cp.pattern, "**/") {
				continue
			}
			if g, err := glob.Compile(strings.TrimPrefix(cp.pattern, "**/"), '/'); err == nil && g.Match(path) {
				return true
			}
		}
	}
	return false
}
