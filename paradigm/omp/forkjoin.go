package omp

import (
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// forkJoinRule implements OMPForkJoinRule: the fork
// team's own OMP_FORK_JOIN enter is stashed as the pending fork; any other
// stream's OMP_FORK_JOIN enter observed while a fork is pending is a team
// member joining the parallel region, linked back to the fork by a causal
// edge. The fork's own matching leave closes the scope.
type forkJoinRule struct{ st *state }

func (r *forkJoinRule) Name() string  { return "OMPForkJoinRule" }
func (r *forkJoinRule) Priority() int { return priorityForkJoin }

func (r *forkJoinRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Function != graph.FuncOMPForkJoin {
		return false
	}

	if node.IsEnter() {
		if r.st.pendingForkJoin == graph.NoNode {
			r.st.pendingForkJoin = n
			return true
		}
		fork := e.Graph.Node(r.st.pendingForkJoin)
		if fork.Stream != node.Stream {
			e.Graph.AddEdge(r.st.pendingForkJoin, n, graph.OMP, false)
		}
		return true
	}

	// Leave: the scope closes when the pending fork's own team stream
	// produces its matching leave.
	if r.st.pendingForkJoin != graph.NoNode && e.Graph.Node(r.st.pendingForkJoin).Stream == node.Stream {
		e.Stats.Inc(engine.StatOMPForkJoin)
		r.st.pendingForkJoin = graph.NoNode
	}
	return true
}
