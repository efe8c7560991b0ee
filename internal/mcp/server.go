// Package mcp exposes the read-only query engine to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/ast-index/internal/modules"
	"github.com/mvp-joe/ast-index/internal/query"
)

const (
	serverName    = "ast-index"
	serverVersion = "1.0.0"
)

// Querier is the subset of the query engine served as tools.
type Querier interface {
	Search(ctx context.Context, q string, opts query.SearchOptions) ([]query.SearchHit, error)
	Usages(ctx context.Context, name string, opts query.UsageOptions) ([]query.Usage, error)
	Callers(ctx context.Context, name string, opts query.UsageOptions) ([]query.Usage, error)
	Hierarchy(ctx context.Context, name string, maxDepth int) (*query.Hierarchy, error)
	Implementations(ctx context.Context, name string) ([]query.TypeNode, error)
	Deps(ctx context.Context, name string, depth int) ([]modules.Dependency, error)
	Dependents(ctx context.Context, name string, depth int) ([]modules.Dependency, error)
	UnusedDeps(ctx context.Context, name string, strict bool) (*modules.UnusedReport, error)
}

// Server serves one project's index.
type Server struct {
	mcp *server.MCPServer
}

// NewServer registers every tool against q.
func NewServer(q Querier) *Server {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)
	AddQueryTools(s, q)
	return &Server{mcp: s}
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve runs the server on stdio until the client disconnects, the context
// is cancelled or the process is signalled.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting MCP server on stdio...")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("MCP server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-sigCh:
		log.Printf("Received shutdown signal, stopping gracefully...")
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
