package offload

import (
	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/tracedata"
)

// handler populates node payloads and per-device bookkeeping tables from
// the trace event's attributes, before rule dispatch sees the node.
type handler struct{}

func (h *handler) onEvent(e *engine.Engine, ev tracedata.Event, n graph.NodeRef) {
	node := e.Graph.Node(n)

	switch {
	case ev.Phase == tracedata.PhaseLeave && node.Function == graph.FuncOffloadKernelLaunch:
		h.enqueueLaunch(e, ev, n, node)
	case ev.Phase == tracedata.PhaseEnter && node.Function == graph.FuncOffloadSync:
		h.stashSyncTargets(ev, node)
	case ev.Phase == tracedata.PhaseLeave && isDeviceFunc(node.Function):
		h.recordDeviceBookkeeping(e, ev, n, node)
	}
}

// enqueueLaunch records the host launch-enter (the enter half of this
// leave) onto the target device stream's launch queue, so
// KernelExecutionRule can pair it with the matching kernel enter in trace
// order (KernelExecutionRule).
func (h *handler) enqueueLaunch(e *engine.Engine, ev tracedata.Event, n graph.NodeRef, node *graph.Node) {
	deviceStream := graph.StreamID(ev.Partner)
	node.SetReferencedStream(deviceStream)

	dev, ok := e.Streams.Get(deviceStream)
	if !ok || dev.Dev == nil {
		glog.Warningf("offload: kernel launch leave %d: stream %d is not a device stream", n, deviceStream)
		return
	}
	dev.Dev.EnqueueLaunch(node.Pair())
}

// stashSyncTargets attaches the list of device streams a device-sync
// enter must check for pending kernels to the enter node's payload, for
// LateSyncRule to consume on the matching leave.
func (h *handler) stashSyncTargets(ev tracedata.Event, node *graph.Node) {
	targets := ev.DeviceStreams
	if len(targets) == 0 && ev.Partner != 0 {
		targets = []tracedata.LocationID{ev.Partner}
	}
	ids := make([]graph.StreamID, len(targets))
	for i, t := range targets {
		ids[i] = graph.StreamID(t)
	}
	node.SetPayload(ids)
}

// recordDeviceBookkeeping maintains the per-device-stream EventRecord/
// EventQuery/StreamWaitEvent tables the paradigm registry keeps; no rule
// here consumes these beyond letting a later event look up "the last
// EventRecord/EventQuery leave for event id X".
func (h *handler) recordDeviceBookkeeping(e *engine.Engine, ev tracedata.Event, n graph.NodeRef, node *graph.Node) {
	es, ok := e.Streams.Get(node.Stream)
	if !ok || es.Dev == nil {
		glog.Warningf("offload: device bookkeeping: stream %d is not a device stream", node.Stream)
		return
	}
	switch node.Function {
	case graph.FuncOffloadEventRecord:
		es.Dev.EventRecordLeave[ev.EventID] = n
	case graph.FuncOffloadEventQuery:
		es.Dev.EventQueryLeave[ev.EventID] = n
	case graph.FuncOffloadStreamWait:
		es.Dev.StreamWaitEvents = append(es.Dev.StreamWaitEvents, n)
	}
}
