package stream

import (
	"math"

	"github.com/Workiva/go-datastructures/augmentedtree"

	"github.com/maximilian-tech/casita/graph"
)

// queryDimension is the single dimension all of DeviceStream's interval
// queries operate over; augmentedtree supports multiple dimensions but
// CASITA only ever needs wall-clock time.
const queryDimension uint64 = 0

// KernelSpan is a completed (enter, leave) kernel execution window, recorded
// by DeviceIdleRule and pending observation by LateSyncRule.
type KernelSpan struct {
	id         uint64
	Enter      graph.NodeRef
	Leave      graph.NodeRef
	StartTime  int64
	EndTime    int64
	LaunchNode graph.NodeRef
}

// LowAtDimension returns the span's start time. Required by augmentedtree.Interval.
func (k *KernelSpan) LowAtDimension(d uint64) int64 { return k.StartTime }

// HighAtDimension returns the span's end time. Required by augmentedtree.Interval.
func (k *KernelSpan) HighAtDimension(d uint64) int64 { return k.EndTime }

// OverlapsAtDimension reports whether j overlaps k. Required by augmentedtree.Interval.
func (k *KernelSpan) OverlapsAtDimension(j augmentedtree.Interval, d uint64) bool {
	return k.HighAtDimension(d) >= j.LowAtDimension(d) && j.HighAtDimension(d) >= k.LowAtDimension(d)
}

// ID returns the span's unique identifier. Required by augmentedtree.Interval.
func (k *KernelSpan) ID() uint64 { return k.id }

// DeviceStream holds the pending-operation bookkeeping a device stream
// needs: the FIFO of host launch-enters awaiting a matching kernel enter,
// the interval tree of completed kernel spans awaiting a synchronization
// (LateSyncRule), and the active-task count DeviceIdleRule's idle-time
// accounting uses.
type DeviceStream struct {
	launchQueue []graph.NodeRef
	pending     augmentedtree.Tree
	pendingList []*KernelSpan
	nextSpanID  uint64

	// EventRecordLeave and EventQueryLeave track the last EventRecord/
	// EventQuery leave observed on this device stream, keyed by event id,
	// per the paradigm registry's CUDA/Offload bookkeeping.
	EventRecordLeave map[int64]graph.NodeRef
	EventQueryLeave  map[int64]graph.NodeRef
	// StreamWaitEvents lists stream-wait-event nodes pending resolution.
	StreamWaitEvents []graph.NodeRef

	// ActiveTasks and IdleStart implement the device idle-state machine
	//: ActiveTasks counts kernels currently executing on
	// this stream; IdleStart records when it last dropped to zero.
	ActiveTasks int
	IdleStart   graph.Timestamp
}

func newDeviceStream() *DeviceStream {
	return &DeviceStream{
		pending:          augmentedtree.New(1),
		EventRecordLeave: make(map[int64]graph.NodeRef),
		EventQueryLeave:  make(map[int64]graph.NodeRef),
	}
}

// EnqueueLaunch records a host launch-enter awaiting its device-side kernel enter.
func (d *DeviceStream) EnqueueLaunch(launchEnter graph.NodeRef) {
	d.launchQueue = append(d.launchQueue, launchEnter)
}

// DequeueLaunch consumes and returns the oldest pending launch-enter, if any.
func (d *DeviceStream) DequeueLaunch() (graph.NodeRef, bool) {
	if len(d.launchQueue) == 0 {
		return graph.NoNode, false
	}
	n := d.launchQueue[0]
	d.launchQueue = d.launchQueue[1:]
	return n, true
}

// AddPendingKernel records a completed kernel span awaiting synchronization.
func (d *DeviceStream) AddPendingKernel(enter, leave graph.NodeRef, startTime, endTime int64, launch graph.NodeRef) *KernelSpan {
	d.nextSpanID++
	span := &KernelSpan{
		id: d.nextSpanID, Enter: enter, Leave: leave,
		StartTime: startTime, EndTime: endTime, LaunchNode: launch,
	}
	d.pending.Add(span)
	d.pendingList = append(d.pendingList, span)
	return span
}

// PendingKernels returns the kernel spans currently pending synchronization,
// oldest first.
func (d *DeviceStream) PendingKernels() []*KernelSpan {
	return d.pendingList
}

// LastPendingBefore returns the pending kernel span with the greatest end
// time at or before `at`, if any -- the "pending kernel leave exists with
// kernel_leave_time <= sync_enter_time" test LateSyncRule performs. The
// tree query narrows the candidate set to spans starting at or before `at`
// (the teacher's query-then-filter pattern, sched_elementary_intervals.go);
// the EndTime <= at check below then picks out the ones that have actually
// finished, and the greatest among those.
func (d *DeviceStream) LastPendingBefore(at int64) (*KernelSpan, bool) {
	results := d.pending.Query(&KernelSpan{StartTime: math.MinInt64, EndTime: at})
	var best *KernelSpan
	for _, iv := range results {
		span := iv.(*KernelSpan)
		if span.EndTime <= at && (best == nil || span.EndTime > best.EndTime) {
			best = span
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// OverlappingPending returns the pending kernel spans whose interval
// overlaps [from, to].
func (d *DeviceStream) OverlappingPending(from, to int64) []*KernelSpan {
	q := &KernelSpan{StartTime: from, EndTime: to}
	results := d.pending.Query(q)
	out := make([]*KernelSpan, 0, len(results))
	for _, iv := range results {
		out = append(out, iv.(*KernelSpan))
	}
	return out
}

// ClearPending discards all pending kernel spans, e.g. once LateSyncRule
// has accounted for the gap they represent.
func (d *DeviceStream) ClearPending() {
	for _, span := range d.pendingList {
		d.pending.Delete(span)
	}
	d.pendingList = nil
}

// BeginTask increments ActiveTasks and reports whether the device was idle
// immediately before this task started (ActiveTasks was 0), along with the
// idle interval's start time -- DeviceIdleRule's "on kernel enter when
// active_tasks == 0" trigger.
func (d *DeviceStream) BeginTask() (wasIdle bool, idleStart graph.Timestamp) {
	wasIdle = d.ActiveTasks == 0
	idleStart = d.IdleStart
	d.ActiveTasks++
	return wasIdle, idleStart
}

// EndTask decrements ActiveTasks and, if the device is now fully idle,
// records `now` as the start of the new idle interval.
func (d *DeviceStream) EndTask(now graph.Timestamp) {
	if d.ActiveTasks > 0 {
		d.ActiveTasks--
	}
	if d.ActiveTasks == 0 {
		d.IdleStart = now
	}
}
