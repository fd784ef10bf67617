// Package graph implements the in-memory causal event graph that the
// analysis engine builds from a multi-stream trace: nodes keyed by
// (stream, timestamp, enter/leave), typed directed edges between them, and
// per-node counter slots for the metrics the rule engine accumulates.
//
// Nodes and edges live in dense arenas owned by the Graph and are addressed
// by opaque NodeRef/EdgeRef indices rather than pointers, so the graph can
// be grown freely without reference-counted cycles or dangling references.
package graph

import "fmt"

// Timestamp is a monotonic event time, in whatever unit the trace uses.
type Timestamp int64

// StreamID identifies a single physical location: a host thread, an MPI
// rank process, or a device stream.
type StreamID int32

// UnknownStream is the zero value for an unset or not-yet-resolved stream
// reference.
const UnknownStream StreamID = -1

// RegionID references a region/function descriptor in the (external)
// definition table.
type RegionID int32

// RecordKind classifies a node as one endpoint of a region instance, or a
// standalone atomic record with no matching partner.
type RecordKind uint8

const (
	// Enter marks the beginning of a region instance.
	Enter RecordKind = iota
	// Leave marks the end of a region instance; every non-atomic Enter has
	// exactly one matching Leave on the same stream with a timestamp >= the
	// Enter's.
	Leave
	// Atomic marks a point event with no matching partner.
	Atomic
)

func (k RecordKind) String() string {
	switch k {
	case Enter:
		return "enter"
	case Leave:
		return "leave"
	case Atomic:
		return "atomic"
	default:
		return "unknown"
	}
}

// Paradigm is a bitmask over the parallel-programming models a node or edge
// is associated with.
type Paradigm uint8

const (
	// CPU covers plain host computation with no specific paradigm tag.
	CPU Paradigm = 1 << iota
	// CUDA covers GPU offload regions (kernels, syncs, memory ops).
	CUDA
	// MPI covers message-passing regions.
	MPI
	// OMP covers OpenMP regions (forks, joins, barriers, targets).
	OMP
)

// ParadigmAll is the union of all known paradigms.
const ParadigmAll = CPU | CUDA | MPI | OMP

func (p Paradigm) String() string {
	if p == ParadigmAll {
		return "ALL"
	}
	var out string
	add := func(name string) {
		if out != "" {
			out += ","
		}
		out += name
	}
	if p&CUDA != 0 {
		add("CUDA")
	}
	if p&MPI != 0 {
		add("MPI")
	}
	if p&OMP != 0 {
		add("OMP")
	}
	if p&CPU != 0 {
		add("CPU")
	}
	if out == "" {
		return "NONE"
	}
	return out
}

// FunctionKind categorizes the region a node belongs to, to the precision
// the paradigm rules need to recognize their trigger shapes.
type FunctionKind uint16

const (
	// FuncGeneric is an untagged region: ordinary host computation.
	FuncGeneric FunctionKind = iota
	// FuncMPISend is a blocking point-to-point send.
	FuncMPISend
	// FuncMPIRecv is a blocking point-to-point receive.
	FuncMPIRecv
	// FuncMPIIsend is a non-blocking point-to-point send.
	FuncMPIIsend
	// FuncMPIIrecv is a non-blocking point-to-point receive.
	FuncMPIIrecv
	// FuncMPIWait is MPI_Wait on a single request.
	FuncMPIWait
	// FuncMPIWaitall is MPI_Waitall on a list of requests.
	FuncMPIWaitall
	// FuncMPICollective is any collective operation (barrier, bcast, reduce...).
	FuncMPICollective
	// FuncOffloadKernelLaunch is the host-side enqueue of a device kernel.
	FuncOffloadKernelLaunch
	// FuncOffloadKernel is the device-side kernel execution region.
	FuncOffloadKernel
	// FuncOffloadSync is a host-side device synchronization (e.g. cudaDeviceSynchronize).
	FuncOffloadSync
	// FuncOffloadWait is a host-side wait on a specific device event/stream.
	FuncOffloadWait
	// FuncOffloadEventRecord is a device event record.
	FuncOffloadEventRecord
	// FuncOffloadEventQuery is a device event query.
	FuncOffloadEventQuery
	// FuncOffloadStreamWait is a stream-wait-event region.
	FuncOffloadStreamWait
	// FuncOMPForkJoin is the team fork/join region.
	FuncOMPForkJoin
	// FuncOMPBarrier is an OpenMP barrier region.
	FuncOMPBarrier
	// FuncOMPTargetOffload is a host target-offload region.
	FuncOMPTargetOffload
	// FuncOMPTargetFlush is a target-flush region.
	FuncOMPTargetFlush
	// FuncOMPDevice is a generic device-side OpenMP target region event.
	FuncOMPDevice
	// FuncWaitState marks a synthetic wait-state node injected by a rule.
	FuncWaitState
)

// CounterID identifies a recognized per-node metric counter.
type CounterID uint8

const (
	// CtrWaitingTime accumulates time a node's owning region spent blocked
	// waiting on a cross-stream dependency.
	CtrWaitingTime CounterID = iota
	// CtrBlame accumulates blame distributed backward onto a region.
	CtrBlame
	// CtrOMPIgnoreBarrier marks a barrier with no callees, excluded from
	// wait-time accounting.
	CtrOMPIgnoreBarrier
	// CtrOMPRegionID carries the OMP_TARGET_REGION_ID attribute.
	CtrOMPRegionID
	// CtrOMPParentRegionID carries the OMP_TARGET_PARENT_REGION_ID attribute.
	CtrOMPParentRegionID
	// CtrWaitstate accumulates time attributed to a synthetic/causal wait.
	CtrWaitstate
	// CtrCriticalPath is 1 on nodes the critical-path engine marked critical,
	// and not set on any other node.
	CtrCriticalPath
)

func (c CounterID) String() string {
	switch c {
	case CtrWaitingTime:
		return "WAITING_TIME"
	case CtrBlame:
		return "BLAME"
	case CtrOMPIgnoreBarrier:
		return "CTR_OMP_IGNORE_BARRIER"
	case CtrOMPRegionID:
		return "CTR_OMP_REGION_ID"
	case CtrOMPParentRegionID:
		return "CTR_OMP_PARENT_REGION_ID"
	case CtrWaitstate:
		return "CTR_WAITSTATE"
	case CtrCriticalPath:
		return "CRITICAL_PATH"
	default:
		return fmt.Sprintf("CTR_UNKNOWN(%d)", uint8(c))
	}
}

// EdgeKind classifies why an edge exists, independent of its paradigm mask.
type EdgeKind uint8

const (
	// EdgeNone is a plain causal/sequencing edge, with no special meaning.
	EdgeNone EdgeKind = iota
	// EdgeIntraStreamSuccessor links consecutive region endpoints on one stream.
	EdgeIntraStreamSuccessor
	// EdgeCausesWaitstate marks an edge whose target waited on the source.
	EdgeCausesWaitstate
	// EdgeLocalRemote marks a remote MPI edge: local node to a (stream, node)
	// pair on another rank, used only for critical-path stitching.
	EdgeLocalRemote
)
