package git

import "fmt"

// MockGitOps is a mock implementation of Operations for testing.
type MockGitOps struct {
	CurrentBranch  string
	AncestorBranch string
	RemoteURL      string
	WorktreeRoot   string

	// Changes is returned by ChangedFiles; ChangesError takes precedence.
	Changes      []FileChange
	ChangesError error

	// Revisions maps rev -> path -> content for ShowFile.
	Revisions map[string]map[string][]byte
}

// NewMockGitOps creates a mock with sensible defaults.
func NewMockGitOps() *MockGitOps {
	return &MockGitOps{
		CurrentBranch:  "main",
		AncestorBranch: "",
		RemoteURL:      "https://github.com/user/repo.git",
		WorktreeRoot:   "/tmp/test-repo",
		Revisions:      make(map[string]map[string][]byte),
	}
}

func (m *MockGitOps) GetCurrentBranch(projectPath string) string {
	return m.CurrentBranch
}

func (m *MockGitOps) FindAncestorBranch(projectPath, currentBranch string) string {
	return m.AncestorBranch
}

func (m *MockGitOps) GetRemoteURL(projectPath string) string {
	return m.RemoteURL
}

func (m *MockGitOps) GetWorktreeRoot(projectPath string) string {
	return m.WorktreeRoot
}

func (m *MockGitOps) ChangedFiles(projectPath, base string) ([]FileChange, error) {
	if m.ChangesError != nil {
		return nil, m.ChangesError
	}
	return m.Changes, nil
}

func (m *MockGitOps) ShowFile(projectPath, rev, path string) ([]byte, error) {
	content, ok := m.Revisions[rev][path]
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNotInRevision, path, rev)
	}
	return content, nil
}

// SetFile records the content of path at rev.
func (m *MockGitOps) SetFile(rev, path, content string) {
	if m.Revisions == nil {
		m.Revisions = make(map[string]map[string][]byte)
	}
	if m.Revisions[rev] == nil {
		m.Revisions[rev] = make(map[string][]byte)
	}
	m.Revisions[rev][path] = []byte(content)
}

// String returns a human-readable representation of the mock state.
func (m *MockGitOps) String() string {
	return fmt.Sprintf("MockGitOps{branch=%s, ancestor=%s, remote=%s, changes=%d}",
		m.CurrentBranch, m.AncestorBranch, m.RemoteURL, len(m.Changes))
}
