package mpi

import (
	"context"
	"fmt"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
)

// collectiveRule implements the collective completion pattern: every
// participating rank exchanges its enter time via an
// Allreduce-max over the replay communicator (the collective generalization
// of the point-to-point REPLAY/REVERSE_REPLAY round trip -- every rank both
// contributes and receives the same reduced value, so there is no
// initiator/responder asymmetry to model). Every rank whose enter precedes
// that maximum waited for the bottleneck rank to arrive; each is marked as
// a wait state exactly like MPI_Wait's late-partner case. The
// bottleneck rank itself incurs no wait.
type collectiveRule struct{ h *handler }

func (r *collectiveRule) Name() string  { return "CollectiveRule" }
func (r *collectiveRule) Priority() int { return priorityCollective }

func (r *collectiveRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Paradigm&graph.MPI == 0 || node.Function != graph.FuncMPICollective || !node.IsLeave() {
		return false
	}

	if e.Comm == nil {
		e.Abort(fmt.Errorf("mpi: CollectiveRule: no replay communicator configured"))
	}

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)
	enterTime := graph.Timestamp(enter.Time)

	globalMax, err := e.Comm.Allreduce(context.Background(), uint64(enterTime), replay.ReduceMax)
	if err != nil {
		e.Abort(fmt.Errorf("mpi: CollectiveRule: %w", err))
	}

	bottleneck := graph.Timestamp(globalMax)
	if enterTime >= bottleneck {
		// this rank is the bottleneck (or the collective is a no-op with a
		// single participant); it did not wait for anyone.
		return true
	}

	e.Graph.MakeBlocking(mustEnterLeaveEdge(e, enterRef, n))
	waitUntil := node.Time
	if bottleneck < waitUntil {
		waitUntil = bottleneck
	}
	node.SetCounter(graph.CtrWaitingTime, uint64(waitUntil-enterTime))
	e.Stats.Add(engine.StatMPICollectiveWait, uint64(waitUntil-enterTime))
	return true
}
