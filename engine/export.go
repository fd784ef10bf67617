package engine

import (
	"sort"

	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/tracedata"
)

// Export walks every node in e's graph and returns the annotated events a
// Writer should serialize, ordered by timestamp (ties broken by stream id
// for a deterministic total order) -- "writer consuming
// annotated events in timestamp order". Call this only after ingestion and
// the critical-path run have both completed; counters accumulated later
// would not be reflected in an earlier snapshot.
func (e *Engine) Export() []tracedata.AnnotatedEvent {
	var refs []graph.NodeRef
	for _, es := range e.Streams.All() {
		refs = append(refs, es.Nodes()...)
	}
	sort.Slice(refs, func(i, j int) bool {
		ni, nj := e.Graph.Node(refs[i]), e.Graph.Node(refs[j])
		if ni.Time != nj.Time {
			return ni.Time < nj.Time
		}
		return ni.Stream < nj.Stream
	})

	out := make([]tracedata.AnnotatedEvent, 0, len(refs))
	for _, ref := range refs {
		n := e.Graph.Node(ref)
		ae := tracedata.AnnotatedEvent{
			Event: tracedata.Event{
				Location: tracedata.LocationID(n.Stream),
				Time:     tracedata.Timestamp(n.Time),
				Region:   tracedata.RegionID(n.Region),
				Kind:     eventKindFor(n.Paradigm, n.Function),
				Phase:    phaseFor(n.Kind),
			},
			Counters: counterMap(n.Counters()),
		}
		if n.Function == graph.FuncWaitState {
			ae.SyntheticRegionName = "WAITSTATE"
		}
		out = append(out, ae)
	}
	return out
}

// phaseFor maps the graph's record kind back onto the reader-facing phase,
// the inverse of classify.recordKind.
func phaseFor(k graph.RecordKind) tracedata.Phase {
	switch k {
	case graph.Enter:
		return tracedata.PhaseEnter
	case graph.Leave:
		return tracedata.PhaseLeave
	default:
		return tracedata.PhaseAtomic
	}
}

// counterMap renders a node's sparse counter slots under the recognized
// output counter names, falling back to the CounterID's
// own String() for anything not in that short list (e.g. CTR_OMP_* keys,
// which are engine bookkeeping rather than writer-facing output).
func counterMap(cs map[graph.CounterID]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(cs))
	for id, v := range cs {
		out[counterName(id)] = v
	}
	return out
}

func counterName(id graph.CounterID) string {
	switch id {
	case graph.CtrCriticalPath:
		return tracedata.CounterCriticalPath
	case graph.CtrWaitingTime:
		return tracedata.CounterWaitingTime
	case graph.CtrBlame:
		return tracedata.CounterBlame
	case graph.CtrWaitstate:
		return tracedata.CounterWaitstate
	default:
		return id.String()
	}
}

// eventKindFor maps a node's paradigm/function classification back onto the
// reader-facing event kind, the inverse of classify.descriptorFor. Synthetic
// wait-state nodes (FuncWaitState) and plain host computation both resolve
// to EventGeneric; SyntheticRegionName is what distinguishes the former for
// a writer.
func eventKindFor(p graph.Paradigm, f graph.FunctionKind) tracedata.EventKind {
	switch f {
	case graph.FuncMPISend:
		return tracedata.EventMPISend
	case graph.FuncMPIRecv:
		return tracedata.EventMPIRecv
	case graph.FuncMPIIsend:
		return tracedata.EventMPIIsend
	case graph.FuncMPIIrecv:
		return tracedata.EventMPIIrecv
	case graph.FuncMPIWait:
		return tracedata.EventMPIWait
	case graph.FuncMPIWaitall:
		return tracedata.EventMPIWaitall
	case graph.FuncMPICollective:
		return tracedata.EventMPICollective
	case graph.FuncOMPForkJoin:
		return tracedata.EventThreadForkJoin
	case graph.FuncOMPBarrier:
		return tracedata.EventOMPBarrier
	case graph.FuncOMPTargetOffload:
		return tracedata.EventOMPTargetOffload
	case graph.FuncOMPTargetFlush:
		return tracedata.EventOMPTargetFlush
	case graph.FuncOMPDevice:
		return tracedata.EventOMPDevice
	case graph.FuncOffloadKernelLaunch:
		return tracedata.EventOffloadKernelLaunch
	case graph.FuncOffloadKernel:
		return tracedata.EventOffloadKernel
	case graph.FuncOffloadSync:
		return tracedata.EventOffloadSync
	case graph.FuncOffloadWait:
		return tracedata.EventOffloadWait
	case graph.FuncOffloadEventRecord:
		return tracedata.EventOffloadEventRecord
	case graph.FuncOffloadEventQuery:
		return tracedata.EventOffloadEventQuery
	case graph.FuncOffloadStreamWait:
		return tracedata.EventOffloadStreamWait
	default:
		return tracedata.EventGeneric
	}
}
