package cache

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PrunePolicy controls which index directories Prune removes.
type PrunePolicy struct {
	// Remove indexes not opened for this long; 0 disables the age check.
	MaxAge time.Duration
	// Report without deleting.
	DryRun bool
}

// DefaultPrunePolicy removes indexes unused for 30 days.
func DefaultPrunePolicy() PrunePolicy {
	return PrunePolicy{MaxAge: 30 * 24 * time.Hour}
}

// PruneReason says why an index directory was selected.
type PruneReason string

const (
	ReasonMissingProject PruneReason = "project root no longer exists"
	ReasonStale          PruneReason = "not opened recently"
	ReasonNoMetadata     PruneReason = "no metadata"
	ReasonRequested      PruneReason = "removed on request"
)

// Pruned is one removed (or, in a dry run, removable) index directory.
type Pruned struct {
	Dir         string      `json:"dir"`
	ProjectRoot string      `json:"project_root,omitempty"`
	Reason      PruneReason `json:"reason"`
	SizeBytes   int64       `json:"size_bytes"`
}

// PruneResult summarizes a Prune run.
type PruneResult struct {
	Removed    []Pruned      `json:"removed"`
	FreedBytes int64         `json:"freed_bytes"`
	Kept       int           `json:"kept"`
	Duration   time.Duration `json:"duration"`
}

// Prune removes index directories whose project is gone or that have not
// been opened within policy.MaxAge. now is injected for tests.
func (c *Cache) Prune(policy PrunePolicy, now time.Time) (*PruneResult, error) {
	start := time.Now()
	result := &PruneResult{Removed: []Pruned{}}

	entries, err := os.ReadDir(c.Root())
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.Root(), e.Name())
		candidate, ok := pruneCandidate(dir, policy, now)
		if !ok {
			result.Kept++
			continue
		}
		if !policy.DryRun {
			if err := os.RemoveAll(dir); err != nil {
				log.Printf("⚠ failed to remove %s: %v", dir, err)
				result.Kept++
				continue
			}
		}
		result.Removed = append(result.Removed, candidate)
		result.FreedBytes += candidate.SizeBytes
	}

	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].Dir < result.Removed[j].Dir })
	result.Duration = time.Since(start)
	return result, nil
}

func pruneCandidate(dir string, policy PrunePolicy, now time.Time) (Pruned, bool) {
	p := Pruned{Dir: dir, SizeBytes: dirSize(dir)}

	meta, err := LoadMetadata(dir)
	if err != nil || meta == nil {
		// Directories without metadata only go once they are old, so an
		// index being created right now is never touched.
		info, statErr := os.Stat(dir)
		if statErr == nil && policy.MaxAge > 0 && now.Sub(info.ModTime()) > policy.MaxAge {
			p.Reason = ReasonNoMetadata
			return p, true
		}
		return p, false
	}

	p.ProjectRoot = meta.ProjectRoot
	if _, err := os.Stat(meta.ProjectRoot); os.IsNotExist(err) {
		p.Reason = ReasonMissingProject
		return p, true
	}
	if policy.MaxAge > 0 && now.Sub(meta.LastOpened) > policy.MaxAge {
		p.Reason = ReasonStale
		return p, true
	}
	return p, false
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
