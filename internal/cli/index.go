package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/ast-index/internal/config"
	"github.com/mvp-joe/ast-index/internal/indexer"
)

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newInitCmd(opts *options) *cobra.Command {
	var noDeps bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .ast-index/config.yml and build the first index",
		Long: `Init writes a commented default configuration to .ast-index/config.yml
(an existing file is kept) and runs a full rebuild of the project.

Examples:
  # Initialize the current directory
  ast-index init

  # Initialize another project
  ast-index init --root ~/src/app`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(opts)
			if err != nil {
				return err
			}
			path, created, err := config.WriteDefault(p.root)
			if err != nil {
				return err
			}
			if !opts.json {
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Using existing %s\n", path)
				}
			}
			return runIndex(cmd, opts, true, noDeps)
		},
	}
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "skip module dependency resolution")
	return cmd
}

func newRebuildCmd(opts *options) *cobra.Command {
	var noDeps bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Discard the index and re-extract every file",
		Long: `Rebuild clears the index and extracts every supported file in the project,
then resolves the module graph and cross-file references.

Files that fail to parse are reported and skipped; the rebuild continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, opts, true, noDeps)
		},
	}
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "skip module dependency resolution")
	return cmd
}

func newUpdateCmd(opts *options) *cobra.Command {
	var noDeps bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Re-extract only added and modified files",
		Long: `Update compares the project against the index (modification time, then
content fingerprint), re-extracts added and modified files and removes
deleted ones. Unchanged files are not parsed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, opts, false, noDeps)
		},
	}
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "skip module dependency resolution")
	return cmd
}

// indexResult is the --json form of a rebuild or update.
type indexResult struct {
	Mode        string          `json:"mode"`
	Root        string          `json:"root"`
	IndexPath   string          `json:"index_path"`
	Discovered  int             `json:"discovered"`
	Added       int             `json:"added"`
	Modified    int             `json:"modified"`
	Deleted     int             `json:"deleted"`
	Unchanged   int             `json:"unchanged"`
	Committed   int             `json:"committed"`
	Modules     int             `json:"modules"`
	Ambiguous   int             `json:"ambiguous"`
	Dangling    int             `json:"dangling"`
	Failures    []failureOut    `json:"failures"`
	UnknownDeps []unknownDepOut `json:"unknown_deps,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

type failureOut struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type unknownDepOut struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

func runIndex(cmd *cobra.Command, opts *options, rebuild, noDeps bool) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	p, err := openProject(opts, false)
	if err != nil {
		return err
	}
	defer p.Close()

	var progress indexer.ProgressReporter = indexer.NoOpProgressReporter{}
	if !opts.json {
		progress = NewCLIProgressReporter(cmd.ErrOrStderr(), opts.verbose)
	}
	b, err := p.builder(progress, noDeps)
	if err != nil {
		return err
	}

	mode := "update"
	run := b.Update
	if rebuild {
		mode = "rebuild"
		run = b.Rebuild
	}
	stats, err := run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled", mode)
		}
		return fmt.Errorf("%s failed: %w", mode, err)
	}

	res := indexResult{
		Mode:       mode,
		Root:       p.root,
		IndexPath:  p.indexPath,
		Discovered: stats.Discovered,
		Added:      stats.Added,
		Modified:   stats.Modified,
		Deleted:    stats.Deleted,
		Unchanged:  stats.Unchanged,
		Committed:  stats.Committed,
		Modules:    stats.Modules,
		Ambiguous:  stats.Ambiguous,
		Dangling:   stats.Dangling,
		Failures:   []failureOut{},
		DurationMs: stats.Duration.Milliseconds(),
	}
	for _, f := range stats.Failures {
		res.Failures = append(res.Failures, failureOut{Path: f.Path, Error: f.Err.Error()})
	}
	for _, d := range stats.UnknownDeps {
		res.UnknownDeps = append(res.UnknownDeps, unknownDepOut{From: d.From, To: d.To, Kind: string(d.Kind)})
	}

	return newPrinter(cmd.OutOrStdout(), opts).emit(res, func(w io.Writer) {
		printIndexSummary(w, res, opts.verbose)
	})
}

func printIndexSummary(w io.Writer, res indexResult, verbose bool) {
	fmt.Fprintf(w, "✓ %s complete: %s files committed in %.1fs\n",
		capitalize(res.Mode), formatNumber(res.Committed), float64(res.DurationMs)/1000)
	fmt.Fprintf(w, "  Added: %d  Modified: %d  Deleted: %d  Unchanged: %d\n",
		res.Added, res.Modified, res.Deleted, res.Unchanged)
	if res.Modules > 0 {
		fmt.Fprintf(w, "  Modules: %d\n", res.Modules)
	}
	if verbose {
		fmt.Fprintf(w, "  Ambiguous references: %d  Dangling references: %d\n", res.Ambiguous, res.Dangling)
		fmt.Fprintf(w, "  Index: %s\n", res.IndexPath)
	}
	for _, d := range res.UnknownDeps {
		fmt.Fprintf(w, "⚠ %s declares %s dependency on unknown module %s\n", d.From, d.Kind, d.To)
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "⚠ %d file(s) could not be indexed:\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Error)
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
