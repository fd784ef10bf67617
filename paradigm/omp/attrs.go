package omp

import (
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/tracedata"
)

type handler struct {
	st *state
}

// onEvent populates the per-stream target-region tracking and fork/join
// barrier bookkeeping ahead of rule dispatch.
func (h *handler) onEvent(e *engine.Engine, ev tracedata.Event, n graph.NodeRef) {
	node := e.Graph.Node(n)
	if node.Paradigm != graph.OMP {
		return
	}

	switch node.Function {
	case graph.FuncOMPBarrier:
		node.SetPayload(ev.BarrierID)
	case graph.FuncOMPDevice:
		h.onDeviceEvent(e, ev, n, node)
	case graph.FuncOMPTargetOffload:
		if node.IsEnter() {
			h.st.targetBegin[node.Stream] = n
		}
	case graph.FuncOMPTargetFlush:
		if node.IsLeave() && ev.Partner != 0 {
			refStream := graph.StreamID(ev.Partner)
			node.SetReferencedStream(refStream)
			if beginRef, ok := h.st.targetBegin[node.Stream]; ok {
				e.Graph.Node(beginRef).SetReferencedStream(refStream)
			}
		}
	}
}

// onDeviceEvent records node as the first and/or most recent device event
// observed on its stream ("first/last device event per stream for a target
// region"), and handles the key-value bookkeeping: parent-region ids, the
// per-device target-region stack, and the intra-device edge from a nested
// region's parent (on another device stream) to this region's first event.
func (h *handler) onDeviceEvent(e *engine.Engine, ev tracedata.Event, n graph.NodeRef, node *graph.Node) {
	st := h.st
	if _, ok := st.firstEvent[node.Stream]; !ok {
		st.firstEvent[node.Stream] = n
	}
	st.lastEvent[node.Stream] = n

	regionID, hasRegion := ev.Attributes.Number(tracedata.AttrOMPTargetRegionID)
	parentID, hasParent := ev.Attributes.Number(tracedata.AttrOMPTargetParentRegionID)
	if hasRegion {
		node.SetCounter(graph.CtrOMPRegionID, uint64(regionID))
	}
	if hasParent {
		node.SetCounter(graph.CtrOMPParentRegionID, uint64(parentID))
	}
	if !hasRegion {
		return
	}

	if node.IsEnter() {
		stack := st.targetStack[node.Stream]
		isFirstInRegion := len(stack) == 0 || stack[len(stack)-1] != regionID
		st.targetStack[node.Stream] = append(stack, regionID)
		if isFirstInRegion && hasParent {
			if parentLast, ok := st.regionLastEvent[parentID]; ok {
				e.Graph.AddEdge(parentLast, n, graph.OMP, false)
			}
		}
	} else if node.IsLeave() {
		if stack := st.targetStack[node.Stream]; len(stack) > 0 {
			st.targetStack[node.Stream] = stack[:len(stack)-1]
		}
	}
	st.regionLastEvent[regionID] = n
}
