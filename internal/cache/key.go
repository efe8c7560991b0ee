package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
)

// noRemote stands in for the remote hash of projects without a git remote.
const noRemote = "00000000"

// Key identifies a project's index directory.
// Format: {remoteHash}-{rootHash}, 8 hex chars each. The root hash keeps
// two checkouts of the same repository apart; the remote hash groups them.
func Key(projectRoot, remoteURL string) string {
	remote := noRemote
	if normalized := normalizeRemoteURL(remoteURL); normalized != "" {
		remote = shortHash(normalized)
	}
	return remote + "-" + shortHash(filepath.Clean(projectRoot))
}

// normalizeRemoteURL reduces equivalent remote spellings to one form.
//
//   - https://github.com/user/repo.git -> github.com/user/repo
//   - git@github.com:user/repo.git -> github.com/user/repo
func normalizeRemoteURL(remote string) string {
	remote = strings.TrimSpace(remote)
	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		remote = strings.TrimPrefix(remote, scheme)
	}
	remote = strings.TrimSuffix(remote, ".git")

	if rest, ok := strings.CutPrefix(remote, "git@"); ok {
		remote = strings.Replace(rest, ":", "/", 1)
	}
	return strings.TrimSuffix(remote, "/")
}

func shortHash(s string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(s))[:8]
}
