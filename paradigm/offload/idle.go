package offload

import (
	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/blame"
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// syncBoundary stops a DeviceIdleRule blame walk at a prior
// synchronization point on the host stream -- a launch or a device wait,
// the natural "paradigm-specific synchronization boundary" for offload
// blame (mirroring paradigm/mpi's mpiBoundary).
func syncBoundary(g *graph.Graph, from graph.NodeRef) bool {
	n := g.Node(from)
	return n.Function == graph.FuncOffloadKernelLaunch || n.Function == graph.FuncOffloadWait
}

// deviceIdleRule implements DeviceIdleRule: tracks
// each device stream's active-task count, and on a kernel enter that ends
// an idle interval, distributes the idle time backward onto whichever host
// region should have kept the device busy.
type deviceIdleRule struct{}

func (r *deviceIdleRule) Name() string  { return "DeviceIdleRule" }
func (r *deviceIdleRule) Priority() int { return priorityDeviceIdle }

func (r *deviceIdleRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Function != graph.FuncOffloadKernel {
		return false
	}

	es, ok := e.Streams.Get(node.Stream)
	if !ok || es.Dev == nil {
		glog.Warningf("offload: DeviceIdleRule: stream %d is not a device stream", node.Stream)
		return false
	}

	if node.IsLeave() {
		enterRef := node.Pair()
		enter := e.Graph.Node(enterRef)
		launchNode, _ := enter.TakePayload().(graph.NodeRef)
		es.Dev.AddPendingKernel(enterRef, n, int64(enter.Time), int64(node.Time), launchNode)
		es.Dev.EndTask(node.Time)
		return true
	}

	wasIdle, idleStart := es.Dev.BeginTask()
	if !wasIdle || node.Time <= idleStart {
		return true
	}

	launchEnter, ok := node.Payload().(graph.NodeRef)
	if !ok {
		// KernelExecutionRule didn't find a launch to pair with; nothing to
		// blame this idle interval on.
		return true
	}

	r.distributeIdleBlame(e, launchEnter, idleStart, node.Time)
	return true
}

// distributeIdleBlame implements the blame-start-node determination and
// open-region proration: find the last host node before the kernel's
// launch time, then either clear the open region and walk backward over
// the interior edges only (if that node is the enter of a launch/wait
// region), credit only the open region (if it's the matching leave), or
// walk backward distributing blame across both the visited interior edges
// and the open region.
func (r *deviceIdleRule) distributeIdleBlame(e *engine.Engine, launchEnter graph.NodeRef, idleStart, idleEnd graph.Timestamp) {
	launch := e.Graph.Node(launchEnter)
	hostStream := launch.Stream
	launchTime := launch.Time

	startNode, ok := e.Graph.FindLastNodeBefore(hostStream, launchTime)
	if !ok {
		startNode = launchEnter
	}
	start := e.Graph.Node(startNode)

	var openRegion uint64
	if launchTime > start.Time {
		openRegion = uint64(launchTime - start.Time)
	} else if launchTime < start.Time {
		glog.Warningf("offload: DeviceIdleRule: launch time %d precedes blame start node %d's time %d", launchTime, startNode, start.Time)
	}

	blameAmount := float64(idleEnd - idleStart)
	e.Stats.Add(engine.StatOffloadIdleBlame, uint64(idleEnd-idleStart))

	var total uint64
	switch {
	case start.IsEnter() && (start.Function == graph.FuncOffloadKernelLaunch || start.Function == graph.FuncOffloadWait):
		// Not blameworthy: this open region is itself inside a launch/wait
		// region, so no time should be attributed to it.
		openRegion = 0
		total = blame.DistributeOpenRegion(e.Graph, startNode, blameAmount, openRegion, blame.EdgeDurationWalk(syncBoundary))
	case start.IsLeave() && (start.Function == graph.FuncOffloadKernelLaunch || start.Function == graph.FuncOffloadWait):
		// The only billable time is the open region itself.
		total = openRegion
	default:
		total = blame.DistributeOpenRegion(e.Graph, startNode, blameAmount, openRegion, blame.EdgeDurationWalk(syncBoundary))
	}

	if total == 0 || openRegion == 0 {
		return
	}
	share := blameAmount * float64(openRegion) / float64(total)

	for _, edgeRef := range e.Graph.OutEdges(startNode) {
		edge := e.Graph.Edge(edgeRef)
		if e.Graph.Node(edge.From).Stream == e.Graph.Node(edge.To).Stream {
			e.Graph.AddBlame(edgeRef, share)
			return
		}
	}
	glog.Warningf("offload: DeviceIdleRule: node %d has no intra-stream outgoing edge to receive open-region blame", startNode)
}
