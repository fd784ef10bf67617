package omp

import (
	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/stream"
)

// barrierRule implements OMPBarrierRule: collects
// barrier enter/leave pairs in a per-scope list (host barriers share a
// single list; device barriers are keyed by barrier id), and on closing
// the scope computes each earlier-arriving thread's WAITING_TIME and
// marks its barrier-enter's incoming edge blocking.
type barrierRule struct{ st *state }

func (r *barrierRule) Name() string  { return "OMPBarrierRule" }
func (r *barrierRule) Priority() int { return priorityBarrier }

func (r *barrierRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Function != graph.FuncOMPBarrier {
		return false
	}

	group := r.groupFor(e, n)

	if node.IsEnter() {
		group.enters = append(group.enters, n)
		return true
	}
	if !node.IsLeave() {
		return false
	}

	group.leaves = append(group.leaves, n)
	if len(group.leaves) < len(group.enters) {
		return true
	}
	r.closeScope(e, group)
	group.enters = nil
	group.leaves = nil
	return true
}

// groupFor returns the barrier scope n's stream belongs to: the shared
// host list, or the device map keyed by the event's barrier id.
func (r *barrierRule) groupFor(e *engine.Engine, n graph.NodeRef) *barrierGroup {
	node := e.Graph.Node(n)
	es, ok := e.Streams.Get(node.Stream)
	if ok && es.Kind == stream.Device {
		id, _ := node.Payload().(int64) // barrier id stashed by the attribute handler
		g, ok := r.st.deviceBarrier[id]
		if !ok {
			g = &barrierGroup{}
			r.st.deviceBarrier[id] = g
		}
		return g
	}
	return r.st.hostBarrier
}

// closeScope computes wait times once every participant that entered this
// barrier scope has also left it (example 5).
func (r *barrierRule) closeScope(e *engine.Engine, group *barrierGroup) {
	if len(group.enters) == 0 {
		return
	}
	if len(group.enters) == 1 {
		e.Graph.Node(group.enters[0]).SetCounter(graph.CtrOMPIgnoreBarrier, 1)
		e.Stats.Inc(engine.StatOMPBarrierIgnored)
		return
	}

	latest := group.enters[0]
	for _, enter := range group.enters[1:] {
		if e.Graph.Node(enter).Time > e.Graph.Node(latest).Time {
			latest = enter
		}
	}

	for _, enter := range group.enters {
		en := e.Graph.Node(enter)
		leave := e.Graph.Node(en.Pair())
		if enter == latest {
			leave.SetCounter(graph.CtrWaitingTime, 0)
			continue
		}
		wait := uint64(leave.Time - en.Time)
		leave.SetCounter(graph.CtrWaitingTime, wait)
		e.Stats.Add(engine.StatOMPBarrierWait, wait)

		markIncomingBlocking(e, enter)
	}
}

// markIncomingBlocking marks n's intra-stream predecessor edge blocking --
// the incoming barrier-enter edge for every earlier-arriving thread.
func markIncomingBlocking(e *engine.Engine, n graph.NodeRef) {
	for _, edgeRef := range e.Graph.InEdges(n) {
		edge := e.Graph.Edge(edgeRef)
		if e.Graph.Node(edge.From).Stream == e.Graph.Node(edge.To).Stream {
			e.Graph.MakeBlocking(edgeRef)
			return
		}
	}
	glog.Warningf("omp: OMPBarrierRule: node %d has no intra-stream incoming edge to mark blocking", n)
}
