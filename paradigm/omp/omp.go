// Package omp implements the OpenMP paradigm rule set (C4.3):
// OMPForkJoinRule pairs a team fork with its join; OMPBarrierRule computes
// per-thread wait time across a barrier's participants; OMPTargetRule
// attributes a host target-offload region's wait time against the device
// work it offloaded to.
package omp

import (
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

const (
	priorityForkJoin = 30
	priorityBarrier  = 20
	priorityTarget   = 20
)

// barrierGroup accumulates one barrier scope's participants: enters as
// threads arrive, leaves as they depart, until every arrived thread has
// also departed and the scope can be closed out.
type barrierGroup struct {
	enters []graph.NodeRef
	leaves []graph.NodeRef
}

// state is the OMP paradigm's shared per-rank bookkeeping: the pending
// fork-join node, barrier lists (host list; device map
// keyed by barrier id), and the per-stream target-region tracking
// OMPTargetRule needs (target-begin per host stream, first/last device
// event per device stream, and the per-device target-region stack).
type state struct {
	pendingForkJoin graph.NodeRef

	hostBarrier   *barrierGroup
	deviceBarrier map[int64]*barrierGroup

	targetBegin map[graph.StreamID]graph.NodeRef
	firstEvent  map[graph.StreamID]graph.NodeRef
	lastEvent   map[graph.StreamID]graph.NodeRef

	targetStack     map[graph.StreamID][]int64
	regionLastEvent map[int64]graph.NodeRef
}

func newState() *state {
	return &state{
		pendingForkJoin: graph.NoNode,
		hostBarrier:     &barrierGroup{},
		deviceBarrier:   make(map[int64]*barrierGroup),
		targetBegin:     make(map[graph.StreamID]graph.NodeRef),
		firstEvent:      make(map[graph.StreamID]graph.NodeRef),
		lastEvent:       make(map[graph.StreamID]graph.NodeRef),
		targetStack:     make(map[graph.StreamID][]int64),
		regionLastEvent: make(map[int64]graph.NodeRef),
	}
}

// Register attaches the OMP paradigm's attribute handler and rules to e.
func Register(e *engine.Engine) {
	st := newState()
	h := &handler{st: st}
	e.RegisterAttributeHandler(h.onEvent)
	e.RegisterRule(&forkJoinRule{st: st})
	e.RegisterRule(&barrierRule{st: st})
	e.RegisterRule(&targetRule{st: st})
}
