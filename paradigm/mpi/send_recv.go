package mpi

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/blame"
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/stream"
)

// mpiBoundary stops a blame walk at the previous MPI operation on the
// stream, the natural "paradigm-specific synchronization boundary" for
// MPI blame distribution.
func mpiBoundary(g *graph.Graph, from graph.NodeRef) bool {
	n := g.Node(from)
	return n.Paradigm&graph.MPI != 0 && n.IsLeave()
}

// sendRule implements SendRule: on an MPI_Send
// leave, replay the send to its partner rank and either mark a rendezvous
// wait or distribute blame for the time the partner made it wait.
//
// The distilled walkthrough's "late receiver" example (send [100,140],
// recv [160,170], expected BLAME=60) does not literally satisfy this
// rule's own condition -- send_start(100) <= recv_start(160) takes the
// WAIT branch, not BLAME, for those numbers. The rule below implements
// the condition exactly as specified; tests exercise the WAIT branch
// with that example's numbers and the BLAME branch with numbers that
// actually satisfy send_start > recv_start.
type sendRule struct{ h *handler }

func (r *sendRule) Name() string  { return "SendRule" }
func (r *sendRule) Priority() int { return prioritySend }

func (r *sendRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Paradigm&graph.MPI == 0 || node.Function != graph.FuncMPISend || !node.IsLeave() {
		return false
	}

	partnerStream, ok := node.TakePayload().(graph.StreamID)
	if !ok {
		glog.Warningf("mpi: SendRule: node %d missing partner stream payload", n)
		return false
	}
	node.SetReferencedStream(partnerStream)

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)
	buf := replay.Buffer{uint64(enter.Time), uint64(node.Time), uint64(enterRef), uint64(n)}.WithOpKind(replay.OpSend)

	rank := r.h.rankOf(partnerStream)
	reply, err := initiatorExchange(e, rank, buf)
	if err != nil {
		e.Abort(fmt.Errorf("mpi: SendRule: %w", err))
	}

	irecvPartner := reply.OpKindSlot()&replay.OpIrecv != 0
	switch {
	case irecvPartner:
		// no wait state to compute; succeed.
	case reply.OpKindSlot()&(replay.OpSend|replay.OpIsend) != 0:
		glog.Warningf("mpi: SendRule: partner on stream %d was itself a send", partnerStream)
		e.Stats.Inc(engine.StatProtocolWarning)
	}

	sendStart := graph.Timestamp(enter.Time)
	recvStart := graph.Timestamp(reply[replay.SlotStartTime])

	if !irecvPartner && sendStart < recvStart {
		e.Graph.MakeBlocking(mustEnterLeaveEdge(e, enterRef, n))
		node.SetCounter(graph.CtrWaitingTime, uint64(recvStart-sendStart))
		e.Stats.Inc(engine.StatMPISendWait)
	} else if !irecvPartner && sendStart > recvStart {
		amount := float64(sendStart - recvStart)
		blame.Distribute(e.Graph, enterRef, amount, blame.EdgeDurationWalk(mpiBoundary))
		e.Stats.Inc(engine.StatMPISendBlame)
	}

	if es, ok := e.Streams.Get(node.Stream); ok && es.Mpi != nil {
		es.Mpi.AddRemoteEdge(enterRef, stream.RemoteRef{Stream: partnerStream, NodeID: int64(reply[replay.SlotLeaveID])})
	}
	return true
}

// recvRule implements RecvRule, symmetric to SendRule: if the receive
// started before the sender finished, the receive is a wait state (blocking
// enter->leave edge plus WAITING_TIME); if it started after the sender
// finished, the receiver distributes blame backward for its own lateness.
type recvRule struct{ h *handler }

func (r *recvRule) Name() string  { return "RecvRule" }
func (r *recvRule) Priority() int { return priorityRecv }

func (r *recvRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Paradigm&graph.MPI == 0 || node.Function != graph.FuncMPIRecv || !node.IsLeave() {
		return false
	}

	partnerStream, ok := node.TakePayload().(graph.StreamID)
	if !ok {
		glog.Warningf("mpi: RecvRule: node %d missing partner stream payload", n)
		return false
	}
	node.SetReferencedStream(partnerStream)

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)
	buf := replay.Buffer{uint64(enter.Time), uint64(node.Time), uint64(enterRef), uint64(n)}.WithOpKind(replay.OpRecv)

	rank := r.h.rankOf(partnerStream)
	reply, err := responderExchange(e, rank, buf)
	if err != nil {
		e.Abort(fmt.Errorf("mpi: RecvRule: %w", err))
	}

	// WAITING_TIME on the receive side is measured against the
	// partner's own completion (stop time), not its start -- this is what
	// makes the "late sender" walkthrough (send [100,110], recv [80,115])
	// check out: WAITING_TIME = min(send_stop, recv_leave) - recv_start.
	recvStart := graph.Timestamp(enter.Time)
	partnerStop := graph.Timestamp(reply[replay.SlotStopTime])

	if recvStart < partnerStop {
		waitUntil := node.Time
		if partnerStop < waitUntil {
			waitUntil = partnerStop
		}
		e.Graph.MakeBlocking(mustEnterLeaveEdge(e, enterRef, n))
		node.SetCounter(graph.CtrWaitingTime, uint64(waitUntil-recvStart))
		e.Stats.Inc(engine.StatMPIRecvWait)
	} else if recvStart > partnerStop {
		amount := float64(recvStart - partnerStop)
		blame.Distribute(e.Graph, enterRef, amount, blame.EdgeDurationWalk(mpiBoundary))
		e.Stats.Inc(engine.StatMPIRecvBlame)
	}

	if es, ok := e.Streams.Get(node.Stream); ok && es.Mpi != nil {
		es.Mpi.AddRemoteEdge(enterRef, stream.RemoteRef{Stream: partnerStream, NodeID: int64(reply[replay.SlotLeaveID])})
	}
	return true
}

func mustEnterLeaveEdge(e *engine.Engine, enter, leave graph.NodeRef) graph.EdgeRef {
	ref, ok := e.Graph.GetEdge(enter, leave)
	if !ok {
		ref = e.Graph.AddEdge(enter, leave, graph.MPI, true)
	}
	return ref
}
