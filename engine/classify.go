package engine

import (
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/stream"
	"github.com/maximilian-tech/casita/tracedata"
)

// recordKind maps a trace event's phase onto the graph's enter/leave/atomic
// record kind.
func recordKind(p tracedata.Phase) graph.RecordKind {
	switch p {
	case tracedata.PhaseEnter:
		return graph.Enter
	case tracedata.PhaseLeave:
		return graph.Leave
	default:
		return graph.Atomic
	}
}

// descriptorFor maps an event's kind onto the graph's paradigm/function
// classification ("function descriptor").
func descriptorFor(ev tracedata.Event) graph.Descriptor {
	d := graph.Descriptor{Region: graph.RegionID(ev.Region)}
	switch ev.Kind {
	case tracedata.EventMPISend:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPISend
	case tracedata.EventMPIRecv:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPIRecv
	case tracedata.EventMPIIsend:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPIIsend
	case tracedata.EventMPIIrecv:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPIIrecv
	case tracedata.EventMPIWait:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPIWait
	case tracedata.EventMPIWaitall:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPIWaitall
	case tracedata.EventMPICollective:
		d.Paradigm, d.Function = graph.MPI, graph.FuncMPICollective
	case tracedata.EventThreadForkJoin:
		d.Paradigm, d.Function = graph.OMP, graph.FuncOMPForkJoin
	case tracedata.EventOMPBarrier:
		d.Paradigm, d.Function = graph.OMP, graph.FuncOMPBarrier
	case tracedata.EventOMPTargetOffload:
		d.Paradigm, d.Function = graph.OMP, graph.FuncOMPTargetOffload
	case tracedata.EventOMPTargetFlush:
		d.Paradigm, d.Function = graph.OMP, graph.FuncOMPTargetFlush
	case tracedata.EventOMPDevice:
		d.Paradigm, d.Function = graph.OMP, graph.FuncOMPDevice
	case tracedata.EventOffloadKernelLaunch:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadKernelLaunch
	case tracedata.EventOffloadKernel:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadKernel
	case tracedata.EventOffloadSync:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadSync
	case tracedata.EventOffloadWait:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadWait
	case tracedata.EventOffloadEventRecord:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadEventRecord
	case tracedata.EventOffloadEventQuery:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadEventQuery
	case tracedata.EventOffloadStreamWait:
		d.Paradigm, d.Function = graph.CUDA, graph.FuncOffloadStreamWait
	case tracedata.EventRMAPut, tracedata.EventRMAGet:
		d.Paradigm, d.Function = graph.MPI, graph.FuncGeneric
	default:
		d.Paradigm, d.Function = graph.CPU, graph.FuncGeneric
	}
	return d
}

// streamKindFor infers the physical-location kind an event implies, for
// streams seen for the first time.
func streamKindFor(ev tracedata.Event) stream.Kind {
	switch ev.Kind {
	case tracedata.EventOffloadKernel, tracedata.EventOffloadEventRecord,
		tracedata.EventOffloadEventQuery, tracedata.EventOffloadStreamWait:
		return stream.Device
	case tracedata.EventMPISend, tracedata.EventMPIRecv, tracedata.EventMPIIsend,
		tracedata.EventMPIIrecv, tracedata.EventMPIWait, tracedata.EventMPIWaitall,
		tracedata.EventMPICollective, tracedata.EventRMAPut, tracedata.EventRMAGet:
		return stream.MPIRank
	default:
		return stream.Host
	}
}
