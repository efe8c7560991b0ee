package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ErrNotInRevision is returned by ShowFile when the path does not exist
// at the requested revision.
var ErrNotInRevision = errors.New("path not present in revision")

// ChangeStatus is the kind of change a file underwent relative to a base.
type ChangeStatus string

const (
	StatusAdded     ChangeStatus = "added"
	StatusModified  ChangeStatus = "modified"
	StatusDeleted   ChangeStatus = "deleted"
	StatusRenamed   ChangeStatus = "renamed"
	StatusUntracked ChangeStatus = "untracked"
)

// FileChange is one path changed between a base revision and the working
// tree. OldPath is set for renames.
type FileChange struct {
	Status  ChangeStatus
	Path    string
	OldPath string
}

// Operations defines the interface for git operations.
// This allows mocking git commands in tests.
type Operations interface {
	// GetCurrentBranch returns the current branch name.
	// For detached HEAD, returns "detached-{short-hash}".
	// Returns "unknown" if all git commands fail.
	GetCurrentBranch(projectPath string) string

	// FindAncestorBranch finds the ancestor branch (main or master).
	// Returns empty string if no ancestor found.
	FindAncestorBranch(projectPath, currentBranch string) string

	// GetRemoteURL returns the git remote URL.
	// Tries 'origin' first, then falls back to first available remote.
	// Returns empty string if no remote configured.
	GetRemoteURL(projectPath string) string

	// GetWorktreeRoot returns the git worktree root path.
	// Falls back to projectPath if not a git repository.
	GetWorktreeRoot(projectPath string) string

	// ChangedFiles lists files that differ between base and the working
	// tree, including untracked files, sorted by path. Paths are relative
	// to the worktree root.
	ChangedFiles(projectPath, base string) ([]FileChange, error)

	// ShowFile returns the content of path at rev.
	ShowFile(projectPath, rev, path string) ([]byte, error)
}

// gitOps is the real implementation using exec.Command.
type gitOps struct{}

// NewOperations returns the default git operations implementation.
func NewOperations() Operations {
	return &gitOps{}
}

func (g *gitOps) GetCurrentBranch(projectPath string) string {
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = projectPath
	output, err := cmd.Output()
	if err != nil || len(strings.TrimSpace(string(output))) == 0 {
		// Might be detached HEAD
		cmd = exec.Command("git", "rev-parse", "--short", "HEAD")
		cmd.Dir = projectPath
		output, err = cmd.Output()
		if err != nil {
			return "unknown"
		}
		return "detached-" + strings.TrimSpace(string(output))
	}
	return strings.TrimSpace(string(output))
}

func (g *gitOps) FindAncestorBranch(projectPath, currentBranch string) string {
	for _, candidate := range []string{"main", "master"} {
		cmd := exec.Command("git", "merge-base", currentBranch, candidate)
		cmd.Dir = projectPath
		if output, err := cmd.Output(); err == nil && len(output) > 0 {
			return candidate
		}
	}
	return ""
}

func (g *gitOps) GetRemoteURL(projectPath string) string {
	// Try 'origin' first
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = projectPath
	output, err := cmd.Output()
	if err == nil {
		return strings.TrimSpace(string(output))
	}

	// Fallback: first remote
	cmd = exec.Command("git", "remote")
	cmd.Dir = projectPath
	output, err = cmd.Output()
	if err != nil {
		return ""
	}

	remotes := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(remotes) > 0 && remotes[0] != "" {
		cmd = exec.Command("git", "remote", "get-url", remotes[0])
		cmd.Dir = projectPath
		output, _ = cmd.Output()
		return strings.TrimSpace(string(output))
	}

	return ""
}

func (g *gitOps) GetWorktreeRoot(projectPath string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = projectPath
	output, err := cmd.Output()
	if err != nil {
		return projectPath
	}
	return strings.TrimSpace(string(output))
}

func (g *gitOps) ChangedFiles(projectPath, base string) ([]FileChange, error) {
	diff, err := run(projectPath, "diff", "--name-status", "-M", base, "--")
	if err != nil {
		return nil, fmt.Errorf("failed to diff against %s: %w", base, err)
	}
	changes := ParseNameStatus(diff)

	untracked, err := run(projectPath, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("failed to list untracked files: %w", err)
	}
	for _, line := range strings.Split(untracked, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			changes = append(changes, FileChange{Status: StatusUntracked, Path: line})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func (g *gitOps) ShowFile(projectPath, rev, path string) ([]byte, error) {
	cmd := exec.Command("git", "show", rev+":"+path)
	cmd.Dir = projectPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "does not exist") || strings.Contains(msg, "exists on disk, but not in") {
			return nil, fmt.Errorf("%w: %s at %s", ErrNotInRevision, path, rev)
		}
		return nil, fmt.Errorf("git show %s:%s failed: %w: %s", rev, path, err, strings.TrimSpace(msg))
	}
	return output, nil
}

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(output), nil
}

// ParseNameStatus parses `git diff --name-status` output.
func ParseNameStatus(out string) []FileChange {
	var changes []FileChange
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		switch fields[0][0] {
		case 'A':
			changes = append(changes, FileChange{Status: StatusAdded, Path: fields[1]})
		case 'D':
			changes = append(changes, FileChange{Status: StatusDeleted, Path: fields[1]})
		case 'R', 'C':
			if len(fields) < 3 {
				continue
			}
			status := StatusRenamed
			if fields[0][0] == 'C' {
				status = StatusAdded
			}
			changes = append(changes, FileChange{Status: status, Path: fields[2], OldPath: fields[1]})
		default:
			// M, T, U
			changes = append(changes, FileChange{Status: StatusModified, Path: fields[1]})
		}
	}
	return changes
}
