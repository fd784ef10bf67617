package mpi

import (
	"sort"

	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/stream"
)

// partnerTime extracts the p2p_partner_time a Wait/Waitall rule compares its
// own enter time against: normally the partner's non-blocking leave time
// (slot 1), but the partner's start time (slot 0) if its op kind was a
// blocking MPI_[S|R]ECV, since wait time is already included in a blocking
// operation's own duration (WaitRule step 3).
func partnerTime(req *stream.PendingRequest) graph.Timestamp {
	if req.RecvBuffer[len(req.RecvBuffer)-1]&uint64(replay.OpSend|replay.OpRecv) != 0 {
		return graph.Timestamp(req.RecvBuffer[replay.SlotStartTime])
	}
	return graph.Timestamp(req.RecvBuffer[replay.SlotStopTime])
}

// validRequestMsg reports whether req's originating message node is an
// Isend or Irecv leave, the only two kinds WaitRule/WaitAllRule know how to
// complete.
func validRequestMsg(e *engine.Engine, req *stream.PendingRequest) bool {
	msg := e.Graph.Node(req.MsgNode)
	return msg.Function == graph.FuncMPIIsend || msg.Function == graph.FuncMPIIrecv
}

func addRemoteEdge(e *engine.Engine, es *stream.EventStream, local graph.NodeRef, req *stream.PendingRequest) {
	msg := e.Graph.Node(req.MsgNode)
	es.Mpi.AddRemoteEdge(local, stream.RemoteRef{
		Stream: msg.ReferencedStream,
		NodeID: int64(req.RecvBuffer[replay.SlotLeaveID]),
	})
}

func isLateSender(req *stream.PendingRequest) bool {
	return req.RecvBuffer[len(req.RecvBuffer)-1]&uint64(replay.OpSend|replay.OpIsend) != 0
}

// waitRule implements WaitRule: on an MPI_Wait leave
// with an attached pending non-blocking request, determine whether the
// request's partner finished after this wait started and, if so, record a
// wait state and a remote edge for the critical-path engine.
type waitRule struct{ h *handler }

func (r *waitRule) Name() string  { return "WaitRule" }
func (r *waitRule) Priority() int { return priorityWait }

func (r *waitRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Paradigm&graph.MPI == 0 || node.Function != graph.FuncMPIWait || !node.IsLeave() {
		return false
	}

	id, ok := node.TakePayload().(stream.RequestID)
	if !ok {
		glog.Warningf("mpi: WaitRule: node %d missing request id payload", n)
		return false
	}

	es, ok := e.Streams.Get(node.Stream)
	if !ok || es.Mpi == nil {
		glog.Warningf("mpi: WaitRule: stream %d has no MPI bookkeeping", node.Stream)
		return false
	}

	req, ok := es.Mpi.Get(id)
	if !ok {
		glog.V(1).Infof("mpi: WaitRule: no request to wait for on stream %d", node.Stream)
		return false
	}
	defer es.Mpi.Remove(id)

	if !validRequestMsg(e, req) {
		glog.Warningf("mpi: WaitRule: request %d on stream %d is not an Isend/Irecv", id, node.Stream)
		return false
	}

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)
	waitStart := graph.Timestamp(enter.Time)
	pTime := partnerTime(req)

	if waitStart >= pTime {
		return true
	}

	e.Graph.MakeBlocking(mustEnterLeaveEdge(e, enterRef, n))
	addRemoteEdge(e, es, n, req)

	waitUntil := node.Time
	if pTime < waitUntil {
		waitUntil = pTime
	}
	wtime := uint64(waitUntil - waitStart)
	node.SetCounter(graph.CtrWaitingTime, wtime)

	if isLateSender(req) {
		e.Stats.Add(engine.StatMPIWaitLateSender, wtime)
	} else {
		e.Stats.Add(engine.StatMPIWaitLateReceiver, wtime)
	}
	return true
}

// waitAllRule implements WaitAllRule: completes every
// request in the attached list, keeps only the one whose partner finished
// latest, and records a single wait state/remote edge against it.
type waitAllRule struct{ h *handler }

func (r *waitAllRule) Name() string  { return "WaitAllRule" }
func (r *waitAllRule) Priority() int { return priorityWaitAll }

func (r *waitAllRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Paradigm&graph.MPI == 0 || node.Function != graph.FuncMPIWaitall || !node.IsLeave() {
		return false
	}

	ids, ok := node.TakePayload().([]stream.RequestID)
	if !ok {
		glog.Warningf("mpi: WaitAllRule: node %d missing request list payload", n)
		return false
	}
	if len(ids) == 0 {
		glog.V(1).Infof("mpi: WaitAllRule: no requests to wait for on stream %d", node.Stream)
		return false
	}

	es, ok := e.Streams.Get(node.Stream)
	if !ok || es.Mpi == nil {
		glog.Warningf("mpi: WaitAllRule: stream %d has no MPI bookkeeping", node.Stream)
		return false
	}

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)
	waitStart := graph.Timestamp(enter.Time)

	// Sort ids for deterministic iteration -- the payload keeps the order of
	// the event's WaitRequestIDs. Because the "keep only the latest"
	// comparison is strict, a tie in partner time keeps the lowest id.
	sorted := append([]stream.RequestID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	// Every request is completed once the waitall leave has been fully
	// accounted for, but only the non-latest ones are dropped here: the
	// record tied to the latest-finishing partner is kept alive in the
	// stream's pending table, per spec section 4.3.1 step 2 ("keep that
	// request record alive, drop the others immediately").
	var latest *stream.PendingRequest
	var latestID stream.RequestID
	latestTime := waitStart
	for _, id := range sorted {
		req, ok := es.Mpi.Get(id)
		if !ok {
			continue
		}
		if !validRequestMsg(e, req) {
			glog.Warningf("mpi: WaitAllRule: request %d on stream %d is not an Isend/Irecv", id, node.Stream)
			continue
		}
		pTime := partnerTime(req)
		if waitStart < pTime && latestTime < pTime {
			latest = req
			latestID = id
			latestTime = pTime
		}
	}

	defer func() {
		for _, id := range sorted {
			if latest != nil && id == latestID {
				continue
			}
			es.Mpi.Remove(id)
		}
	}()

	if latest == nil {
		return true
	}

	e.Graph.MakeBlocking(mustEnterLeaveEdge(e, enterRef, n))
	addRemoteEdge(e, es, n, latest)

	waitUntil := node.Time
	if latestTime < waitUntil {
		waitUntil = latestTime
	}
	wtime := uint64(waitUntil - waitStart)
	node.SetCounter(graph.CtrWaitingTime, wtime)
	e.Stats.Add(engine.StatMPIWaitallLatePartner, wtime)
	return true
}
