package cli

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/watcher"
)

func newWatchCmd(opts *options) *cobra.Command {
	var noDeps bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current as files change",
		Long: `Watch brings the index up to date, then runs an update whenever supported
source files change. Bursts of edits are coalesced (watch.debounce, default
500ms). In a git checkout, switching branches pauses file events and runs one
update for the whole switch.

Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := openProject(opts, false)
			if err != nil {
				return err
			}
			defer p.Close()

			var progress indexer.ProgressReporter = indexer.NoOpProgressReporter{}
			if opts.verbose {
				progress = NewCLIProgressReporter(cmd.ErrOrStderr(), true)
			}
			b, err := p.builder(progress, noDeps)
			if err != nil {
				return err
			}

			stats, err := b.Update(ctx)
			if err != nil {
				return fmt.Errorf("initial update failed: %w", err)
			}
			log.Printf("✓ Index ready: %d file(s) updated, %d deleted, %d unchanged\n",
				stats.Added+stats.Modified, stats.Deleted, stats.Unchanged)

			files, err := watcher.NewFileWatcher(p.root, b.Discovery(), p.cfg.Watch.Debounce)
			if err != nil {
				return err
			}

			var git watcher.GitWatcher
			if gitDir, err := watcher.FindGitDir(p.root); err == nil {
				if git, err = watcher.NewGitWatcher(gitDir); err != nil {
					log.Printf("⚠ Branch switches will not be detected: %v\n", err)
					git = nil
				}
			} else if !errors.Is(err, watcher.ErrNotGitCheckout) {
				log.Printf("⚠ Branch switches will not be detected: %v\n", err)
			}

			log.Printf("Watching %s for changes...\n", p.root)
			coord := watcher.NewWatchCoordinator(git, files, b)
			if err := coord.Start(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return fmt.Errorf("watch failed: %w", err)
			}
			log.Println("Watch stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "skip module dependency resolution")
	return cmd
}
