// Package cli implements the ast-index command line.
//
// Every command maps to one builder or query-engine operation. The core
// returns data; formatting for humans (or --json) happens here.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every command.
type options struct {
	root      string
	indexPath string
	verbose   bool
	json      bool
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree so tests can run commands in parallel.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ast-index",
		Short: "Structural code index for polyglot mobile codebases",
		Long: `ast-index builds a symbol graph of a project's Kotlin, Java, Swift,
Objective-C, Python, Perl and Android XML sources, plus its Gradle,
SwiftPM and CocoaPods module graph, and answers structural queries from it:
where is this declared, who calls it, what implements it, which module
dependencies are unused.

The index lives under ~/.ast-index/indexes/ and is kept current with
'ast-index update' or 'ast-index watch'.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", "", "project root (default: current directory or AST_INDEX_PROJECT_ROOT)")
	flags.StringVar(&opts.indexPath, "index", "", "index database path (default: derived from the project root)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.json, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newInitCmd(opts),
		newRebuildCmd(opts),
		newUpdateCmd(opts),
		newStatsCmd(opts),
		newSearchCmd(opts),
		newUsagesCmd(opts),
		newCallersCmd(opts),
		newImplementationsCmd(opts),
		newHierarchyCmd(opts),
		newDepsCmd(opts),
		newDependentsCmd(opts),
		newUnusedDepsCmd(opts),
		newModulesCmd(opts),
		newChangedCmd(opts),
		newXMLUsagesCmd(opts),
		newResourceUsagesCmd(opts),
		newTodoCmd(opts),
		newAnnotationsCmd(opts),
		newUnusedSymbolsCmd(opts),
		newWatchCmd(opts),
		newMCPCmd(opts),
		newCleanCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
