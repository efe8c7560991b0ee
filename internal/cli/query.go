package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/ast-index/internal/modules"
	"github.com/mvp-joe/ast-index/internal/query"
)

func newSearchCmd(opts *options) *cobra.Command {
	var (
		typ    string
		exact  bool
		module string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search symbols, files and modules by name",
		Long: `Search matches the query against symbol names, file paths and module names.
Results are ranked exact, then prefix, then full-text, then fuzzy, and within
a rank by shorter name, then path.

Examples:
  ast-index search UserRepository
  ast-index search repo --type symbols --module :core:data
  ast-index search MainActivity --exact`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				if limit <= 0 {
					limit = p.cfg.Search.Limit
				}
				hits, err := e.Search(cmd.Context(), args[0], query.SearchOptions{
					Type: typ, Exact: exact, Module: module, Limit: limit,
				})
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), hits, func(w io.Writer, h query.SearchHit) {
					name := h.Name
					if h.QualifiedName != "" && h.QualifiedName != h.Name {
						name = h.QualifiedName
					}
					fmt.Fprintf(w, "%-8s %-7s %s", h.Quality, strings.TrimSuffix(h.Type, "s"), name)
					if h.Kind != "" {
						fmt.Fprintf(w, " (%s)", h.Kind)
					}
					if h.Path != "" && h.Type != query.TypeFiles {
						fmt.Fprintf(w, "  %s", location(h.Path, h.Line))
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "restrict to one result type: files, symbols or modules")
	cmd.Flags().BoolVar(&exact, "exact", false, "only exact name matches")
	cmd.Flags().StringVar(&module, "module", "", "restrict to one module")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default from search.limit)")
	return cmd
}

func newUsagesCmd(opts *options) *cobra.Command {
	return usagesCmd(opts, "usages <name>", "Find every reference to a symbol",
		`Usages lists calls, type references, inheritance and imports that name the
symbol, whether or not the reference resolved to a declaration in the index.`,
		(*query.Engine).Usages)
}

func newCallersCmd(opts *options) *cobra.Command {
	return usagesCmd(opts, "callers <name>", "Find the call sites of a function",
		`Callers lists the calls to functions and methods with the given name, with
the symbol enclosing each call.`,
		(*query.Engine).Callers)
}

type usagesFunc func(*query.Engine, context.Context, string, query.UsageOptions) ([]query.Usage, error)

func usagesCmd(opts *options, use, short, long string, find usagesFunc) *cobra.Command {
	var (
		module string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				usages, err := find(e, cmd.Context(), args[0], query.UsageOptions{Module: module, Limit: limit})
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), usages, func(w io.Writer, u query.Usage) {
					fmt.Fprintf(w, "%s  %s", location(u.Path, u.Line), u.Kind)
					if u.Symbol != "" {
						fmt.Fprintf(w, " in %s", u.Symbol)
					}
					if opts.verbose && u.Candidates > 1 {
						fmt.Fprintf(w, " (resolved among %d candidates)", u.Candidates)
					}
					fmt.Fprintln(w)
					if u.Context != "" {
						fmt.Fprintf(w, "    %s\n", strings.TrimSpace(u.Context))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "only references from files in this module")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 for all)")
	return cmd
}

func newImplementationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "implementations <type>",
		Short: "List types extending or implementing a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				nodes, err := e.Implementations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), nodes, printTypeNode)
			})
		},
	}
}

func newHierarchyCmd(opts *options) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "hierarchy <type>",
		Short: "Show a type's supertypes and direct subtypes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				h, err := e.Hierarchy(cmd.Context(), args[0], depth)
				if err != nil {
					return err
				}
				return newPrinter(cmd.OutOrStdout(), opts).emit(h, func(w io.Writer) {
					if len(h.Types) == 0 {
						fmt.Fprintln(w, "No results")
						return
					}
					for _, t := range h.Types {
						fmt.Fprintf(w, "%s (%s)  %s\n", qualified(t), t.Kind, location(t.Path, t.Line))
					}
					fmt.Fprintln(w, "Supertypes:")
					printNodes(w, h.Ancestors)
					fmt.Fprintln(w, "Subtypes:")
					printNodes(w, h.Descendants)
				})
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum supertype hops (0 for all)")
	return cmd
}

func printNodes(w io.Writer, nodes []query.TypeNode) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, n := range nodes {
		printTypeNode(w, n)
	}
}

func printTypeNode(w io.Writer, n query.TypeNode) {
	indent := strings.Repeat("  ", max(n.Depth, 1))
	fmt.Fprintf(w, "%s%s", indent, qualified(n))
	if n.Relation != "" {
		fmt.Fprintf(w, " [%s]", n.Relation)
	}
	if n.Resolved {
		fmt.Fprintf(w, "  %s", location(n.Path, n.Line))
	} else {
		fmt.Fprint(w, "  (external)")
	}
	fmt.Fprintln(w)
}

func newDepsCmd(opts *options) *cobra.Command {
	return moduleWalkCmd(opts, "deps <module>", "List the modules a module depends on", (*query.Engine).Deps)
}

func newDependentsCmd(opts *options) *cobra.Command {
	return moduleWalkCmd(opts, "dependents <module>", "List the modules that depend on a module", (*query.Engine).Dependents)
}

type walkFunc func(*query.Engine, context.Context, string, int) ([]modules.Dependency, error)

func moduleWalkCmd(opts *options, use, short string, walk walkFunc) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Without --depth only direct edges are listed. --depth N follows edges up to N
hops; --depth 0 follows them all. Cycles are reported once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				deps, err := walk(e, cmd.Context(), args[0], depth)
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), deps, func(w io.Writer, d modules.Dependency) {
					fmt.Fprintf(w, "%s%s [%s]", strings.Repeat("  ", d.Depth-1), d.Module, joinKinds(d))
					if opts.verbose && d.Via != "" {
						fmt.Fprintf(w, " via %s", d.Via)
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "traversal depth (0 for unbounded)")
	return cmd
}

func joinKinds(d modules.Dependency) string {
	kinds := make([]string, 0, len(d.Kinds))
	for _, k := range d.Kinds {
		kinds = append(kinds, string(k))
	}
	return strings.Join(kinds, ",")
}

func newUnusedDepsCmd(opts *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "unused-deps <module>",
		Short: "Report declared dependencies a module does not use",
		Long: `Unused-deps checks each dependency declared by a module for evidence of use.

By default a dependency counts as used when the module imports from it,
references one of its classes from XML, references a resource it defines, or
uses a module it re-exports through api. With --strict only imports count.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				report, err := e.UnusedDeps(cmd.Context(), args[0], strict)
				if err != nil {
					return err
				}
				return newPrinter(cmd.OutOrStdout(), opts).emit(report, func(w io.Writer) {
					unused := report.Unused()
					for _, d := range report.Deps {
						switch {
						case !d.Used:
							fmt.Fprintf(w, "✗ %s [%s] unused\n", d.Module, joinKinds(d.Dependency))
						case opts.verbose && d.Evidence != nil:
							fmt.Fprintf(w, "✓ %s used: %s at %s (%s)\n", d.Module, d.Evidence.Reason,
								location(d.Evidence.Path, d.Evidence.Line), d.Evidence.Detail)
						}
					}
					fmt.Fprintf(w, "%d of %d dependencies of %s unused\n", len(unused), len(report.Deps), report.Module)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "only count direct imports as use")
	return cmd
}

func newModulesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules found in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				mods, err := e.Modules(cmd.Context())
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), modulesOut(mods), func(w io.Writer, m moduleOut) {
					path := m.Path
					if path == "" {
						path = "."
					}
					fmt.Fprintf(w, "%-30s %-10s %s (%d files)\n", m.Name, m.Kind, path, m.Files)
				})
			})
		},
	}
}

func newChangedCmd(opts *options) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "changed",
		Short: "Show symbols added, removed or modified since a revision",
		Long: `Changed compares the symbols of every changed source file against the
same file at the base revision. Without --base the main or master branch
the current branch forked from is used, falling back to HEAD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				report, err := e.Changed(cmd.Context(), base)
				if err != nil {
					return err
				}
				return newPrinter(cmd.OutOrStdout(), opts).emit(report, func(w io.Writer) {
					if len(report.Files) == 0 {
						fmt.Fprintf(w, "No symbol changes since %s\n", report.Base)
						return
					}
					fmt.Fprintf(w, "Changes since %s:\n", report.Base)
					for _, f := range report.Files {
						fmt.Fprintf(w, "%s %s\n", f.Status, f.Path)
						if f.Error != "" {
							fmt.Fprintf(w, "  ⚠ %s\n", f.Error)
						}
						printChanges(w, "+", f.Added)
						printChanges(w, "-", f.Removed)
						printChanges(w, "~", f.Modified)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "base revision (default: main/master ancestor or HEAD)")
	return cmd
}

func printChanges(w io.Writer, mark string, changes []query.SymbolChange) {
	for _, c := range changes {
		fmt.Fprintf(w, "  %s %s %s :%d\n", mark, c.Kind, c.QualifiedName, c.Line)
	}
}

func newXMLUsagesCmd(opts *options) *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "xml-usages <class>",
		Short: "Find layouts, manifests and storyboards referencing a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				refs, err := e.XMLUsages(cmd.Context(), args[0], module)
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), xmlRefsOut(refs), func(w io.Writer, r xmlRefOut) {
					fmt.Fprintf(w, "%s  %s", location(r.Path, r.Line), r.ClassName)
					if r.Attribute != "" {
						fmt.Fprintf(w, " (%s)", r.Attribute)
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "restrict to one module")
	return cmd
}

func newResourceUsagesCmd(opts *options) *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "resource-usages <resource>",
		Short: "Find definitions and references of an Android resource",
		Long: `Resource-usages accepts R.string.app_name, @string/app_name, string/app_name
or a bare name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				rows, err := e.ResourceUsages(cmd.Context(), args[0], module)
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), resourcesOut(rows), func(w io.Writer, r resourceOut) {
					role := "reference"
					if r.Definition {
						role = "definition"
					}
					fmt.Fprintf(w, "%s  %s/%s %s\n", location(r.Path, r.Line), r.Type, r.Name, role)
				})
			})
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "restrict to one module")
	return cmd
}

func newTodoCmd(opts *options) *cobra.Command {
	var (
		module string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "todo [pattern]",
		Short: "List TODO, FIXME, HACK and XXX comments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return withEngine(opts, func(p *project, e *query.Engine) error {
				markers, err := e.Todo(cmd.Context(), pattern, module, limit)
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), markersOut(markers), func(w io.Writer, m markerOut) {
					fmt.Fprintf(w, "%s  %s: %s\n", location(m.Path, m.Line), m.Kind, m.Text)
				})
			})
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "restrict to one module")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default 50)")
	return cmd
}

func newAnnotationsCmd(opts *options) *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "annotations <annotation>",
		Short: "List symbols carrying an annotation or decorator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				syms, err := e.Annotated(cmd.Context(), args[0], module)
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), symbolsOut(syms), printSymbol)
			})
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "restrict to one module")
	return cmd
}

func newUnusedSymbolsCmd(opts *options) *cobra.Command {
	var (
		module   string
		exported bool
	)
	cmd := &cobra.Command{
		Use:   "unused-symbols",
		Short: "List declarations nothing references",
		Long: `Unused-symbols lists classes, interfaces and functions that no reference in
the index names. Framework entry points (main, @Composable, @Test, ...) are
left out. Reflection and dynamic dispatch are invisible to the index, so treat
the result as candidates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				syms, err := e.UnusedSymbols(cmd.Context(), module, exported)
				if err != nil {
					return err
				}
				return list(newPrinter(cmd.OutOrStdout(), opts), symbolsOut(syms), printSymbol)
			})
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "restrict to one module")
	cmd.Flags().BoolVar(&exported, "exported", false, "only public declarations")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(p *project, e *query.Engine) error {
				st, err := e.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return newPrinter(cmd.OutOrStdout(), opts).emit(st, func(w io.Writer) {
					fmt.Fprintf(w, "Project: %s\n", st.ProjectRoot)
					fmt.Fprintf(w, "Index:   %s\n", st.IndexPath)
					if st.LastRebuild != "" {
						fmt.Fprintf(w, "Last rebuild: %s\n", st.LastRebuild)
					}
					if st.LastUpdate != "" {
						fmt.Fprintf(w, "Last update:  %s\n", st.LastUpdate)
					}
					fmt.Fprintln(w)
					fmt.Fprintf(w, "Files:      %s\n", formatNumber(st.Files))
					fmt.Fprintf(w, "Symbols:    %s\n", formatNumber(st.Symbols))
					fmt.Fprintf(w, "References: %s (%s dangling, %s ambiguous)\n",
						formatNumber(st.Edges), formatNumber(st.Dangling), formatNumber(st.Ambiguous))
					fmt.Fprintf(w, "Imports:    %s\n", formatNumber(st.Imports))
					fmt.Fprintf(w, "Modules:    %s (%s dependencies)\n", formatNumber(st.Modules), formatNumber(st.ModuleDeps))
					fmt.Fprintf(w, "XML refs:   %s\n", formatNumber(st.XMLRefs))
					fmt.Fprintf(w, "Resources:  %s\n", formatNumber(st.Resources))
					fmt.Fprintf(w, "Markers:    %s\n", formatNumber(st.Markers))
					if opts.verbose {
						for _, lang := range slices.Sorted(maps.Keys(st.ByLanguage)) {
							fmt.Fprintf(w, "  %-12s %s files\n", lang, formatNumber(st.ByLanguage[lang]))
						}
					}
					if st.Unindexed > 0 {
						fmt.Fprintf(w, "⚠ Unindexed files: %s (last extraction failed)\n", formatNumber(st.Unindexed))
					}
					if st.LastFailures != "" && st.LastFailures != "0" {
						fmt.Fprintf(w, "⚠ Last run failures: %s\n", st.LastFailures)
					}
				})
			})
		},
	}
}

// qualified prefers the qualified name of a type node.
func qualified(n query.TypeNode) string {
	if n.QualifiedName != "" {
		return n.QualifiedName
	}
	return n.Name
}

func location(path string, line int) string {
	if line <= 0 {
		return path
	}
	return fmt.Sprintf("%s:%d", path, line)
}
