package omp

import (
	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// targetRule implements OMPTargetRule: on a host
// target-offload region's leave, it stitches the host wait time against
// the device-side work the region offloaded to.
type targetRule struct{ st *state }

func (r *targetRule) Name() string  { return "OMPTargetRule" }
func (r *targetRule) Priority() int { return priorityTarget }

func (r *targetRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Function != graph.FuncOMPTargetOffload || !node.IsLeave() {
		return false
	}

	beginRef, ok := r.st.targetBegin[node.Stream]
	if !ok {
		glog.Warningf("omp: OMPTargetRule: no target-begin recorded for stream %d", node.Stream)
		return false
	}
	begin := e.Graph.Node(beginRef)
	devStream := begin.ReferencedStream
	if devStream == graph.UnknownStream {
		glog.Warningf("omp: OMPTargetRule: target-begin %d has no referenced device stream", beginRef)
		delete(r.st.targetBegin, node.Stream)
		return false
	}

	firstEv, ok1 := r.st.firstEvent[devStream]
	lastEv, ok2 := r.st.lastEvent[devStream]
	if !ok1 || !ok2 {
		glog.Warningf("omp: OMPTargetRule: no device events recorded for stream %d", devStream)
		delete(r.st.targetBegin, node.Stream)
		return false
	}

	r.markHostWaitstate(e, beginRef, n)

	e.Graph.AddEdge(beginRef, firstEv, graph.OMP, false)
	causesRef := e.Graph.AddEdge(lastEv, n, graph.OMP, false)
	e.Graph.SetKind(causesRef, graph.EdgeCausesWaitstate)

	delete(r.st.targetBegin, node.Stream)
	delete(r.st.firstEvent, devStream)
	delete(r.st.lastEvent, devStream)
	e.Stats.Inc(engine.StatOMPTargetWait)
	return true
}

// markHostWaitstate walks the host stream backward from the target-leave
// to the matching target-begin enter, marking every traversed intra-stream
// edge blocking and setting CTR_WAITSTATE on each node to the gap until its
// successor (targetHostWalkCallback).
func (r *targetRule) markHostWaitstate(e *engine.Engine, beginRef, leaveRef graph.NodeRef) {
	prev := leaveRef
	e.Graph.WalkBackward(e.Graph.Node(leaveRef).Stream, leaveRef, func(cur graph.NodeRef) bool {
		if edgeRef, ok := e.Graph.GetEdge(cur, prev); ok {
			e.Graph.MakeBlocking(edgeRef)
		}
		curNode := e.Graph.Node(cur)
		nextNode := e.Graph.Node(prev)
		curNode.SetCounter(graph.CtrWaitstate, uint64(nextNode.Time-curNode.Time))
		prev = cur
		return cur != beginRef
	})
}
