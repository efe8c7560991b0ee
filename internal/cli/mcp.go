package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/ast-index/internal/indexer"
	"github.com/mvp-joe/ast-index/internal/mcp"
)

func newMCPCmd(opts *options) *cobra.Command {
	var skipUpdate bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the index to AI agents over MCP (stdio)",
		Long: `MCP starts a Model Context Protocol server on stdin/stdout exposing the
read-only queries as tools: search, usages, callers, hierarchy,
implementations, deps and unused_deps.

The index is brought up to date before serving unless --no-update is given.

Example client configuration:
  {
    "mcpServers": {
      "ast-index": {
        "command": "ast-index",
        "args": ["mcp", "--root", "/path/to/project"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := openProject(opts, false)
			if err != nil {
				return err
			}
			defer p.Close()

			// stdout carries the protocol; everything else goes to stderr.
			log.SetOutput(cmd.ErrOrStderr())

			if !skipUpdate {
				b, err := p.builder(indexer.NoOpProgressReporter{}, false)
				if err != nil {
					return err
				}
				stats, err := b.Update(ctx)
				if err != nil {
					return fmt.Errorf("failed to update index: %w", err)
				}
				log.Printf("✓ Index ready: %d file(s) updated, %d deleted\n", stats.Added+stats.Modified, stats.Deleted)
			}

			e, err := p.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			return mcp.NewServer(e).Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipUpdate, "no-update", false, "serve the index as is")
	return cmd
}
