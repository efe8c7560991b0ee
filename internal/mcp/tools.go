package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/ast-index/internal/modules"
	"github.com/mvp-joe/ast-index/internal/query"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxDepth     = 50
)

type toolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// listResponse wraps list results with their count.
type listResponse[T any] struct {
	Total   int `json:"total"`
	Results []T `json:"results"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Total: len(items), Results: items}
}

// AddQueryTools registers the query tools on s.
func AddQueryTools(s *server.MCPServer, q Querier) {
	s.AddTool(searchTool(), createSearchHandler(q))
	s.AddTool(usagesTool("usages", "Find every reference to a symbol: calls, type uses, inheritance and imports, sorted by path and line."), createUsagesHandler(q.Usages))
	s.AddTool(usagesTool("callers", "Find the call sites of a function or method, with the enclosing symbol of each call."), createUsagesHandler(q.Callers))
	s.AddTool(hierarchyTool(), createHierarchyHandler(q))
	s.AddTool(implementationsTool(), createImplementationsHandler(q))
	s.AddTool(depsTool(), createDepsHandler(q))
	s.AddTool(unusedDepsTool(), createUnusedDepsHandler(q))
}

// readOnly marks a tool as a pure query.
func readOnly() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func newTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append(opts, readOnly()...)...)
}

func searchTool() mcp.Tool {
	return newTool("search",
		mcp.WithDescription("Search symbols, files and modules by name. Exact matches rank first, then prefix, substring and fuzzy matches."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Name or fragment to search for")),
		mcp.WithString("type",
			mcp.Description("Restrict results to one kind"),
			mcp.Enum(query.TypeSymbols, query.TypeFiles, query.TypeModules)),
		mcp.WithBoolean("exact",
			mcp.Description("Only exact name matches (default: false)")),
		mcp.WithString("module",
			mcp.Description("Restrict symbols and files to one module, e.g. :core:data")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 50, max: 500)")),
	)
}

func usagesTool(name, description string) mcp.Tool {
	return newTool(name,
		mcp.WithDescription(description),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Symbol name")),
		mcp.WithString("module",
			mcp.Description("Only report references from files in this module")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 50, max: 500)")),
	)
}

func hierarchyTool() mcp.Tool {
	return newTool("hierarchy",
		mcp.WithDescription("Show the supertypes and direct subtypes of a class or interface."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Type name")),
		mcp.WithNumber("depth",
			mcp.Description("Maximum ancestor hops (default: unlimited)")),
	)
}

func implementationsTool() mcp.Tool {
	return newTool("implementations",
		mcp.WithDescription("List every type that extends or implements a type, directly or transitively."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Type name")),
	)
}

func depsTool() mcp.Tool {
	return newTool("deps",
		mcp.WithDescription("List the modules a module depends on, or with reverse=true the modules that depend on it."),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Module name, e.g. :app")),
		mcp.WithNumber("depth",
			mcp.Description("Traversal depth (default: 1 for direct dependencies)")),
		mcp.WithBoolean("reverse",
			mcp.Description("Follow dependents instead of dependencies (default: false)")),
	)
}

func unusedDepsTool() mcp.Tool {
	return newTool("unused_deps",
		mcp.WithDescription("Report declared module dependencies with no observed use, with the evidence found for the used ones."),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Module name, e.g. :app")),
		mcp.WithBoolean("strict",
			mcp.Description("Only count direct imports as use (default: false)")),
	)
}

// toolResult maps query errors to results. Bad input becomes a tool error
// the client can act on; anything else is a server failure.
func toolResult(response interface{}, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if errors.Is(err, query.ErrEmptyQuery) || errors.Is(err, modules.ErrModuleNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return marshalToolResponse(response)
}

func createSearchHandler(q Querier) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		text, err := parseStringArg(argsMap, "query", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		typ, err := parseStringArg(argsMap, "type", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		switch typ {
		case "", query.TypeSymbols, query.TypeFiles, query.TypeModules:
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown type %q", typ)), nil
		}
		module, err := parseStringArg(argsMap, "module", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		hits, err := q.Search(ctx, text, query.SearchOptions{
			Type:   typ,
			Exact:  parseBoolArg(argsMap, "exact", false),
			Module: module,
			Limit:  parseClampedInt(argsMap, "limit", defaultLimit, 1, maxLimit),
		})
		return toolResult(newList(hits), err)
	}
}

func createUsagesHandler(find func(context.Context, string, query.UsageOptions) ([]query.Usage, error)) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		name, err := parseStringArg(argsMap, "name", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		module, err := parseStringArg(argsMap, "module", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		usages, err := find(ctx, name, query.UsageOptions{
			Module: module,
			Limit:  parseClampedInt(argsMap, "limit", defaultLimit, 1, maxLimit),
		})
		return toolResult(newList(usages), err)
	}
}

func createHierarchyHandler(q Querier) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		name, err := parseStringArg(argsMap, "name", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		h, err := q.Hierarchy(ctx, name, parseClampedInt(argsMap, "depth", 0, 0, maxDepth))
		return toolResult(h, err)
	}
}

func createImplementationsHandler(q Querier) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		name, err := parseStringArg(argsMap, "name", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		nodes, err := q.Implementations(ctx, name)
		return toolResult(newList(nodes), err)
	}
}

// depsResponse is the deps tool result.
type depsResponse struct {
	Module    string               `json:"module"`
	Direction string               `json:"direction"`
	Total     int                  `json:"total"`
	Results   []modules.Dependency `json:"results"`
}

func createDepsHandler(q Querier) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		module, err := parseStringArg(argsMap, "module", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		depth := parseClampedInt(argsMap, "depth", 1, 1, maxDepth)

		resp := depsResponse{Module: module, Direction: "dependencies"}
		if parseBoolArg(argsMap, "reverse", false) {
			resp.Direction = "dependents"
			resp.Results, err = q.Dependents(ctx, module, depth)
		} else {
			resp.Results, err = q.Deps(ctx, module, depth)
		}
		if resp.Results == nil {
			resp.Results = []modules.Dependency{}
		}
		resp.Total = len(resp.Results)
		return toolResult(resp, err)
	}
}

func createUnusedDepsHandler(q Querier) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}
		module, err := parseStringArg(argsMap, "module", true)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		report, err := q.UnusedDeps(ctx, module, parseBoolArg(argsMap, "strict", false))
		return toolResult(report, err)
	}
}
