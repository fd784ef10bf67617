package offload

import (
	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// lateSyncRule implements LateSyncRule: on a device
// sync leave, check every device stream it targets for a kernel that
// already finished before the sync even started; if so, the sync was
// late, and a synthetic wait-state region spanning from that kernel's end
// to the sync's leave is inserted on the device stream.
type lateSyncRule struct{}

func (r *lateSyncRule) Name() string  { return "LateSyncRule" }
func (r *lateSyncRule) Priority() int { return priorityLateSync }

func (r *lateSyncRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Function != graph.FuncOffloadSync || !node.IsLeave() {
		return false
	}

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)

	targets, ok := enter.TakePayload().([]graph.StreamID)
	if !ok || len(targets) == 0 {
		glog.Warningf("offload: LateSyncRule: sync %d has no device-stream targets", n)
		return false
	}

	applied := false
	for _, devStream := range targets {
		if r.syncOneDevice(e, devStream, enterRef, n) {
			applied = true
		}
	}
	return applied
}

func (r *lateSyncRule) syncOneDevice(e *engine.Engine, devStream graph.StreamID, syncEnter, syncLeave graph.NodeRef) bool {
	dev, ok := e.Streams.Get(devStream)
	if !ok || dev.Dev == nil {
		glog.Warningf("offload: LateSyncRule: stream %d is not a device stream", devStream)
		return false
	}

	syncEnterTime := e.Graph.Node(syncEnter).Time
	syncLeaveTime := e.Graph.Node(syncLeave).Time

	pending, ok := dev.Dev.LastPendingBefore(int64(syncEnterTime))
	if !ok {
		return false
	}

	waitEnter, err1 := e.Graph.AddNode(devStream, graph.Timestamp(pending.EndTime), graph.Enter, graph.Descriptor{
		Paradigm: graph.CUDA, Function: graph.FuncWaitState,
	})
	waitLeave, err2 := e.Graph.AddNode(devStream, syncLeaveTime, graph.Leave, graph.Descriptor{
		Paradigm: graph.CUDA, Function: graph.FuncWaitState,
	})
	if err1 != nil || err2 != nil {
		glog.Warningf("offload: LateSyncRule: could not insert wait-state node on stream %d: %v / %v", devStream, err1, err2)
		return false
	}

	e.Graph.SetKind(e.Graph.AddEdge(syncEnter, waitEnter, graph.CUDA, false), graph.EdgeCausesWaitstate)
	e.Graph.AddEdge(syncLeave, waitLeave, graph.CUDA, false)

	syncLeaveNode := e.Graph.Node(syncLeave)
	syncLeaveNode.AddCounter(graph.CtrBlame, uint64(syncLeaveTime-syncEnterTime))

	waitLeaveNode := e.Graph.Node(waitLeave)
	waitLeaveNode.SetCounter(graph.CtrWaitingTime, uint64(syncLeaveTime-graph.Timestamp(pending.EndTime)))

	dev.Dev.ClearPending()
	e.Stats.Inc(engine.StatOffloadLateSync)
	return true
}
