package stream

import (
	"github.com/maximilian-tech/casita/graph"
)

// RequestID identifies a pending non-blocking MPI request within a stream.
type RequestID int64

// P2PBufSize is the fixed width of the replay buffer exchanged between
// analyzer ranks (see package replay); kept here too since pending
// requests stash a partner's reply in this shape while MPI_Wait[all] is
// pending.
const P2PBufSize = 5

// PendingRequest records a non-blocking MPI operation (Isend/Irecv) that
// has not yet been completed by a matching Wait/Waitall.
type PendingRequest struct {
	// MsgNode is the Isend/Irecv leave node that created this request.
	MsgNode graph.NodeRef
	// Handles holds up to two native request handles this record
	// represents (Waitall can complete more than one with a single
	// record in some traces); zero value means "no handle".
	Handles [2]int64
	// SendBuffer is the outgoing payload recorded at Isend time, if any.
	SendBuffer []byte
	// RecvBuffer is the fixed-size reply slots exchanged with the partner
	// over the REPLAY/REVERSE_REPLAY tags (see package replay).
	RecvBuffer [P2PBufSize]uint64
	// ComRef identifies the communicator the request was posted on.
	ComRef int32
	// Completed marks whether the replay exchange for this request has
	// already happened. The MPI rules neither set nor read it.
	Completed bool
}

// RemoteRef identifies a node on another rank's stream by (stream id,
// trace-local node id) -- the serializable form a remote MPI edge's
// target takes, since a graph.NodeRef from another rank's arena is
// meaningless locally.
type RemoteRef struct {
	Stream graph.StreamID
	NodeID int64
}

// MpiStream holds a stream's table of outstanding non-blocking MPI
// requests, keyed by request id, and the remote-edge table connecting
// local nodes to their cross-rank partner ("MPI: remote
// edge table"), consumed by the critical-path engine's section stitching.
// Ownership: a PendingRequest is created by the MPI attribute handler when
// an Isend/Irecv leave completes its replay exchange, and
// released by the Wait/Waitall rule that consumes it -- at most one rule
// consumes a given record.
type MpiStream struct {
	pending map[RequestID]*PendingRequest
	remote  map[graph.NodeRef]RemoteRef
}

func newMpiStream() *MpiStream {
	return &MpiStream{
		pending: make(map[RequestID]*PendingRequest),
		remote:  make(map[graph.NodeRef]RemoteRef),
	}
}

// AddRemoteEdge records that local's cross-rank partner is r.
func (m *MpiStream) AddRemoteEdge(local graph.NodeRef, r RemoteRef) {
	m.remote[local] = r
}

// RemoteEdge returns the remote partner recorded for local, if any.
func (m *MpiStream) RemoteEdge(local graph.NodeRef) (RemoteRef, bool) {
	r, ok := m.remote[local]
	return r, ok
}

// RemoteEdges returns every local node with a recorded remote partner.
func (m *MpiStream) RemoteEdges() map[graph.NodeRef]RemoteRef {
	return m.remote
}

// Add registers a new pending request under id, overwriting any existing
// record for the same id (a duplicate request id is an invariant
// violation the caller is expected to have already logged).
func (m *MpiStream) Add(id RequestID, req *PendingRequest) {
	m.pending[id] = req
}

// Get returns the pending request for id, if any.
func (m *MpiStream) Get(id RequestID) (*PendingRequest, bool) {
	r, ok := m.pending[id]
	return r, ok
}

// Remove discards the pending request for id.
func (m *MpiStream) Remove(id RequestID) {
	delete(m.pending, id)
}

// IDs returns the ids of all currently pending requests, in unspecified
// order -- callers that need a stable order sort it themselves.
func (m *MpiStream) IDs() []RequestID {
	out := make([]RequestID, 0, len(m.pending))
	for id := range m.pending {
		out = append(out, id)
	}
	return out
}

// Len returns the number of pending requests.
func (m *MpiStream) Len() int { return len(m.pending) }
