package mpi

import (
	"context"
	"fmt"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/stream"
	"github.com/maximilian-tech/casita/tracedata"
)

// handler carries the rank-resolution configuration shared by the
// attribute handler and every MPI rule.
type handler struct {
	rankOf func(graph.StreamID) int
}

// onEvent populates node payloads from the trace event's key-value
// attributes ("delegated to the paradigm handlers
// before rule dispatch"). Non-blocking sends/receives are also replayed
// to their partner here, so that by the time WaitRule/WaitAllRule runs
// the partner's timestamps are already on hand in the pending request
// record -- mirroring how a live Isend/Irecv returns immediately while
// its completion is observed later. A stream created as a Host stream
// gets MPI bookkeeping here once it carries an MPI operation.
func (h *handler) onEvent(e *engine.Engine, ev tracedata.Event, n graph.NodeRef) {
	if ev.Phase != tracedata.PhaseLeave {
		return
	}
	node := e.Graph.Node(n)
	if node.Paradigm != graph.MPI {
		return
	}
	if es, ok := e.Streams.Get(node.Stream); ok {
		es.EnableMPI()
	}

	switch node.Function {
	case graph.FuncMPISend, graph.FuncMPIRecv:
		node.SetPayload(graph.StreamID(ev.Partner))
	case graph.FuncMPIIsend, graph.FuncMPIIrecv:
		h.completeNonBlockingLeave(e, ev, n, node)
	case graph.FuncMPIWait:
		node.SetPayload(stream.RequestID(ev.RequestID))
	case graph.FuncMPIWaitall:
		ids := make([]stream.RequestID, len(ev.WaitRequestIDs))
		for i, id := range ev.WaitRequestIDs {
			ids[i] = stream.RequestID(id)
		}
		node.SetPayload(ids)
	}
}

func (h *handler) completeNonBlockingLeave(e *engine.Engine, ev tracedata.Event, n graph.NodeRef, node *graph.Node) {
	es, ok := e.Streams.Get(node.Stream)
	if !ok || es.Mpi == nil {
		e.Abort(fmt.Errorf("mpi: stream %d has no MPI bookkeeping", node.Stream))
	}

	opKind := replay.OpIsend
	if node.Function == graph.FuncMPIIrecv {
		opKind = replay.OpIrecv
	}
	partnerStream := graph.StreamID(ev.Partner)
	node.SetReferencedStream(partnerStream)

	enterRef := node.Pair()
	enter := e.Graph.Node(enterRef)
	buf := replay.Buffer{uint64(enter.Time), uint64(node.Time), uint64(enterRef), uint64(n)}.WithOpKind(opKind)

	rank := h.rankOf(partnerStream)
	var reply replay.Buffer
	var err error
	if node.Function == graph.FuncMPIIrecv {
		reply, err = responderExchange(e, rank, buf)
	} else {
		reply, err = initiatorExchange(e, rank, buf)
	}
	if err != nil {
		e.Abort(fmt.Errorf("mpi: non-blocking replay exchange: %w", err))
	}

	es.Mpi.Add(stream.RequestID(ev.RequestID), &stream.PendingRequest{
		MsgNode:    n,
		RecvBuffer: reply,
		ComRef:     int32(ev.Communicator),
	})
}

// initiatorExchange performs the sending side's half of a replay
// round-trip: send this rank's own buffer over
// REPLAY, then receive the partner's buffer over REVERSE_REPLAY. Used by
// SendRule and the Isend completion handler -- the operations that, in
// the original program, initiated the communication.
func initiatorExchange(e *engine.Engine, partnerRank int, buf replay.Buffer) (replay.Buffer, error) {
	if e.Comm == nil {
		return replay.Buffer{}, fmt.Errorf("no replay communicator configured")
	}
	ctx := context.Background()
	if err := e.Comm.Send(ctx, partnerRank, replay.ReplayTag, buf); err != nil {
		return replay.Buffer{}, err
	}
	return e.Comm.Recv(ctx, partnerRank, replay.ReverseReplayTag)
}

// responderExchange performs the receiving side's half of a replay
// round-trip: receive the partner's buffer over REPLAY (blocking until
// the partner's matching Send/Isend rule has replayed it, however the two
// ranks' trace-order positions happen to interleave), then reply with
// this rank's own buffer over REVERSE_REPLAY. Used by RecvRule and the
// Irecv completion handler.
func responderExchange(e *engine.Engine, partnerRank int, buf replay.Buffer) (replay.Buffer, error) {
	if e.Comm == nil {
		return replay.Buffer{}, fmt.Errorf("no replay communicator configured")
	}
	ctx := context.Background()
	partnerBuf, err := e.Comm.Recv(ctx, partnerRank, replay.ReplayTag)
	if err != nil {
		return replay.Buffer{}, err
	}
	if err := e.Comm.Send(ctx, partnerRank, replay.ReverseReplayTag, buf); err != nil {
		return replay.Buffer{}, err
	}
	return partnerBuf, nil
}
