package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/geobuild/geobuild/pkg/telemetry"
)

// execute runs the graph level by level. Stages within a level run concurrently and
// the first failure cancels the rest of its level; later levels never start.
func (g *Graph) execute(ctx context.Context, p *Pass) error {
	for _, level := range g.levels {
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(level) == 1 {
			if err := g.runStage(ctx, g.stages[level[0]], p); err != nil {
				return err
			}
			continue
		}

		eg, egCtx := errgroup.WithContext(ctx)
		for _, name := range level {
			st := g.stages[name]
			eg.Go(func() error {
				return g.runStage(egCtx, st, p)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) runStage(ctx context.Context, st *Stage, p *Pass) error {
	stage := telemetry.StartStage(ctx, st.Name, telemetry.AttrPassID.String(p.ID))
	err := st.Run(stage.Ctx, p)
	stage.End(err)
	return err
}
