package graph

// NodeRef is an opaque reference to a Node stored in a Graph's arena.
type NodeRef int32

// NoNode is the zero value for an absent node reference.
const NoNode NodeRef = -1

// Descriptor carries the static classification a node is created with.
type Descriptor struct {
	Region   RegionID
	Paradigm Paradigm
	Function FunctionKind
}

// Node represents one endpoint (enter, leave, or atomic) of a region
// instance on one stream.
//
// Counter values may only grow once set (enforced by SetCounter); ReferencedStream
// may be set at most once (enforced by SetReferencedStream).
type Node struct {
	Time     Timestamp
	Stream   StreamID
	Region   RegionID
	Paradigm Paradigm
	Kind     RecordKind
	Function FunctionKind

	// ReferencedStream is the target stream of a cross-stream dependency,
	// e.g. the partner rank of an MPI operation or the device stream of a
	// kernel launch. UnknownStream until set.
	ReferencedStream StreamID

	counters map[CounterID]uint64

	// pair links an Enter to its matching Leave and vice versa. NoNode if
	// the node is Atomic or not yet paired.
	pair NodeRef

	// payload is an opaque, rule-owned attachment consumed exactly once by
	// the rule that needs it (e.g. a pending MPI partner stream id or
	// request record). nil once consumed.
	payload any
}

// Counter returns the value of counter c on n, and whether it was set.
func (n *Node) Counter(c CounterID) (uint64, bool) {
	if n.counters == nil {
		return 0, false
	}
	v, ok := n.counters[c]
	return v, ok
}

// SetCounter sets counter c to v. Per the data model, counters may only
// grow: if c is already set to a value greater than v, SetCounter is a
// no-op; otherwise it unconditionally sets v (this matches the engine's use
// of SetCounter for "the definitive value", as opposed to AddCounter for
// "accumulate").
func (n *Node) SetCounter(c CounterID, v uint64) {
	if n.counters == nil {
		n.counters = make(map[CounterID]uint64)
	}
	if cur, ok := n.counters[c]; ok && cur > v {
		return
	}
	n.counters[c] = v
}

// AddCounter accumulates delta into counter c.
func (n *Node) AddCounter(c CounterID, delta uint64) {
	if n.counters == nil {
		n.counters = make(map[CounterID]uint64)
	}
	n.counters[c] += delta
}

// Counters returns a copy of the node's sparse counter map.
func (n *Node) Counters() map[CounterID]uint64 {
	out := make(map[CounterID]uint64, len(n.counters))
	for k, v := range n.counters {
		out[k] = v
	}
	return out
}

// SetReferencedStream sets n's referenced-stream id. It is a no-op if
// already set to a known stream (set-at-most-once invariant).
func (n *Node) SetReferencedStream(s StreamID) {
	if n.ReferencedStream != UnknownStream {
		return
	}
	n.ReferencedStream = s
}

// Payload returns the node's current opaque payload.
func (n *Node) Payload() any {
	return n.payload
}

// TakePayload returns the node's payload and clears it. Contract: at most
// one rule consumes a given pending payload.
func (n *Node) TakePayload() any {
	p := n.payload
	n.payload = nil
	return p
}

// SetPayload attaches an opaque payload to the node, pending consumption.
func (n *Node) SetPayload(p any) {
	n.payload = p
}

// IsEnter reports whether n is an Enter node.
func (n *Node) IsEnter() bool { return n.Kind == Enter }

// IsLeave reports whether n is a Leave node.
func (n *Node) IsLeave() bool { return n.Kind == Leave }

// Pair returns the matching Enter/Leave NodeRef, or NoNode if unpaired or atomic.
func (n *Node) Pair() NodeRef { return n.pair }
