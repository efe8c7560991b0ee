package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/ast-index/internal/cache"
)

// cleanResult is the --json form of clean.
type cleanResult struct {
	DryRun     bool           `json:"dry_run"`
	Removed    []cache.Pruned `json:"removed"`
	FreedBytes int64          `json:"freed_bytes"`
	Kept       int            `json:"kept"`
}

func newCleanCmd(opts *options) *cobra.Command {
	var (
		current bool
		dryRun  bool
		maxAge  int
	)
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale indexes from the index cache",
		Long: `Clean removes cached indexes whose project directory no longer exists or
that have not been opened for cache.max_age_days (default 30).

With --current only this project's index is removed; the next command
rebuilds it. The configuration file (.ast-index/config.yml) is preserved.

Examples:
  # Prune indexes of deleted or long-unused projects
  ast-index clean

  # Show what would be removed
  ast-index clean --dry-run

  # Drop this project's index to force a full rebuild
  ast-index clean --current`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(opts)
			if err != nil {
				return err
			}

			var res cleanResult
			res.DryRun = dryRun
			if current {
				dir := filepath.Dir(p.indexPath)
				if !p.derived {
					dir = ""
				}
				pruned, err := removeIndex(p.indexPath, dir, dryRun)
				if err != nil {
					return err
				}
				res.Removed = pruned
			} else {
				policy := cache.PrunePolicy{DryRun: dryRun}
				days := p.cfg.Cache.MaxAgeDays
				if cmd.Flags().Changed("max-age") {
					days = maxAge
				}
				policy.MaxAge = time.Duration(days) * 24 * time.Hour
				pr, err := p.cache.Prune(policy, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("failed to prune index cache: %w", err)
				}
				res.Removed, res.Kept = pr.Removed, pr.Kept
			}
			if res.Removed == nil {
				res.Removed = []cache.Pruned{}
			}
			for _, r := range res.Removed {
				res.FreedBytes += r.SizeBytes
			}

			return newPrinter(cmd.OutOrStdout(), opts).emit(res, func(w io.Writer) {
				printCleanResult(w, res, current)
			})
		},
	}
	cmd.Flags().BoolVar(&current, "current", false, "remove only this project's index")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without deleting")
	cmd.Flags().IntVar(&maxAge, "max-age", 30, "days since last use before an index is stale (0 disables)")
	return cmd
}

// removeIndex deletes one project's index. dir is the cache directory that
// holds it, or "" for an index at an explicit path.
func removeIndex(path, dir string, dryRun bool) ([]cache.Pruned, error) {
	target := dir
	if target == "" {
		target = path
	}
	size := pathSize(target)
	if size < 0 {
		return nil, nil
	}
	pruned := []cache.Pruned{{Dir: target, Reason: cache.ReasonRequested, SizeBytes: size}}
	if dryRun {
		return pruned, nil
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove index: %w", err)
		}
		return pruned, nil
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove index: %w", err)
		}
	}
	return pruned, nil
}

// pathSize returns the size of a file or directory tree, or -1 if it does
// not exist.
func pathSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}

func printCleanResult(w io.Writer, res cleanResult, current bool) {
	verb := "Removed"
	if res.DryRun {
		verb = "Would remove"
	}
	if len(res.Removed) == 0 {
		if current {
			fmt.Fprintln(w, "No index found for this project")
		} else {
			fmt.Fprintf(w, "Nothing to clean (%d index(es) kept)\n", res.Kept)
		}
		return
	}
	for _, r := range res.Removed {
		fmt.Fprintf(w, "%s %s (%s, ~%.1f MB)\n", verb, r.Dir, r.Reason, float64(r.SizeBytes)/(1024*1024))
	}
	fmt.Fprintf(w, "✓ %s %d index(es), ~%.1f MB\n", verb, len(res.Removed), float64(res.FreedBytes)/(1024*1024))
	if current && !res.DryRun {
		fmt.Fprintln(w, "Next 'ast-index update' will perform a full rebuild")
	}
}
