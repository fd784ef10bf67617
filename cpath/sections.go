package cpath

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/maximilian-tech/casita/engine"
)

// processSections resolves each accumulated section to its locally
// critical node set and marks CRITICAL_PATH on every one of them
// (get_critical_local_nodes), fanned out across a worker pool bounded by
// GOMAXPROCS using the same errgroup-bounded fan-out idiom used elsewhere
// for per-CPU analysis passes. Marking is commutative and idempotent
// (CTR_CRITICAL_PATH only ever grows to 1), so sections need no ordering
// guarantee among
// themselves even though the walk that produced them ran in order.
// Concurrent markCritical calls across sections never touch the same node:
// a rank's backward walk visits each node at most once, so the sections it
// accumulates are node-disjoint by construction, which is what makes the
// unsynchronized SetCounter writes below safe.
func processSections(ctx context.Context, e *engine.Engine, sections []section) error {
	if len(sections) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, sec := range sections {
		sec := sec
		g.Go(func() error {
			markCritical(e, sec.nodes)
			return ctx.Err()
		})
	}
	return g.Wait()
}
