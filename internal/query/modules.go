package query

import (
	"context"

	"github.com/mvp-joe/ast-index/internal/modules"
	"github.com/mvp-joe/ast-index/internal/storage"
)

// Deps returns the modules name depends on. depth 1 lists direct
// dependencies; larger depths (or <= 0 for the full closure) walk the graph.
func (e *Engine) Deps(ctx context.Context, name string, depth int) ([]modules.Dependency, error) {
	return e.walkModules(ctx, name, modules.Forward, depth)
}

// Dependents returns the modules that depend on name, with the same depth
// semantics as Deps.
func (e *Engine) Dependents(ctx context.Context, name string, depth int) ([]modules.Dependency, error) {
	return e.walkModules(ctx, name, modules.Reverse, depth)
}

func (e *Engine) walkModules(ctx context.Context, name string, dir modules.Direction, depth int) ([]modules.Dependency, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	var out []modules.Dependency
	err = e.view(ctx, func(r *storage.Reader) error {
		g, err := modules.Load(ctx, r)
		if err != nil {
			return err
		}
		out, err = g.Transitive(name, dir, depth)
		return err
	})
	return out, err
}

// UnusedDeps reports which declared dependencies of a module show no use.
func (e *Engine) UnusedDeps(ctx context.Context, name string, strict bool) (*modules.UnusedReport, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	var report *modules.UnusedReport
	err = e.view(ctx, func(r *storage.Reader) error {
		g, err := modules.Load(ctx, r)
		if err != nil {
			return err
		}
		report, err = modules.UnusedDeps(ctx, r, g, name, strict)
		return err
	})
	return report, err
}

// Modules lists every module with its file count.
func (e *Engine) Modules(ctx context.Context) ([]storage.ModuleRow, error) {
	var out []storage.ModuleRow
	err := e.view(ctx, func(r *storage.Reader) error {
		var err error
		out, err = r.Modules(ctx)
		return err
	})
	return out, err
}
