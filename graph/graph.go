package graph

import (
	"sort"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type edgeKey struct {
	from, to NodeRef
}

// Graph is the arena-backed, index-addressed causal event graph. Nodes and
// edges are appended to dense slices and referenced by NodeRef/EdgeRef;
// nothing is ever removed, so references stay valid for the graph's
// lifetime.
type Graph struct {
	nodes []Node
	edges []Edge

	outEdges [][]EdgeRef
	inEdges  [][]EdgeRef

	edgeIndex map[edgeKey]EdgeRef

	// streamNodes holds, per stream, the NodeRefs in strictly nondecreasing
	// timestamp order -- the total order required by the data model.
	streamNodes map[StreamID][]NodeRef

	// pendingEnter holds, per stream, the NodeRef of the most recent unmatched
	// Enter, to be paired with the next Leave observed on that stream.
	pendingEnter map[StreamID]NodeRef
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		edgeIndex:    make(map[edgeKey]EdgeRef),
		streamNodes:  make(map[StreamID][]NodeRef),
		pendingEnter: make(map[StreamID]NodeRef),
	}
}

// Node returns a mutable pointer to the node ref points to. Panics if ref
// is out of range -- callers are expected to only ever hold refs this Graph
// issued.
func (g *Graph) Node(ref NodeRef) *Node {
	return &g.nodes[ref]
}

// Edge returns a mutable pointer to the edge ref points to.
func (g *Graph) Edge(ref EdgeRef) *Edge {
	return &g.edges[ref]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// StreamNodes returns the ordered NodeRefs observed on stream s.
func (g *Graph) StreamNodes(s StreamID) []NodeRef {
	return g.streamNodes[s]
}

// AddNode appends a new node to stream s at time, of the given kind and
// descriptor. If kind is Leave, it is paired with the preceding unmatched
// Enter on the same stream (if any). AddNode fails if time regresses
// relative to the last node observed on s.
func (g *Graph) AddNode(s StreamID, time Timestamp, kind RecordKind, desc Descriptor) (NodeRef, error) {
	if prev := g.streamNodes[s]; len(prev) > 0 {
		last := &g.nodes[prev[len(prev)-1]]
		if time < last.Time {
			return NoNode, status.Errorf(codes.FailedPrecondition,
				"stream %d: timestamp regressed from %d to %d", s, last.Time, time)
		}
	}

	ref := NodeRef(len(g.nodes))
	g.nodes = append(g.nodes, Node{
		Time:             time,
		Stream:           s,
		Region:           desc.Region,
		Paradigm:         desc.Paradigm,
		Kind:             kind,
		Function:         desc.Function,
		ReferencedStream: UnknownStream,
		pair:             NoNode,
	})
	g.outEdges = append(g.outEdges, nil)
	g.inEdges = append(g.inEdges, nil)
	g.streamNodes[s] = append(g.streamNodes[s], ref)

	switch kind {
	case Enter:
		g.pendingEnter[s] = ref
	case Leave:
		if open, ok := g.pendingEnter[s]; ok && open != NoNode {
			g.nodes[open].pair = ref
			g.nodes[ref].pair = open
			delete(g.pendingEnter, s)
		}
	}
	return ref, nil
}

// AddEdge adds a directed edge from -> to carrying paradigm mask mask. If
// an edge between the same ordered pair already exists, AddEdge is a
// no-op beyond folding mask into the existing edge's paradigm mask (and
// marking it blocking if blocking is true) and returns the existing EdgeRef -- at most one edge per ordered endpoint
// pair.
func (g *Graph) AddEdge(from, to NodeRef, mask Paradigm, blocking bool) EdgeRef {
	key := edgeKey{from, to}
	if existing, ok := g.edgeIndex[key]; ok {
		e := &g.edges[existing]
		e.Paradigm |= mask
		if blocking {
			e.Blocking = true
		}
		return existing
	}

	duration, reverse := edgeDuration(g.nodes[from].Time, g.nodes[to].Time)
	ref := EdgeRef(len(g.edges))
	g.edges = append(g.edges, Edge{
		From:     from,
		To:       to,
		Duration: duration,
		Blocking: blocking || reverse,
		Paradigm: mask,
		Reverse:  reverse,
	})
	g.edgeIndex[key] = ref
	g.outEdges[from] = append(g.outEdges[from], ref)
	g.inEdges[to] = append(g.inEdges[to], ref)
	return ref
}

// MakeBlocking marks the edge blocking.
func (g *Graph) MakeBlocking(e EdgeRef) {
	g.edges[e].Blocking = true
}

// SetKind sets the edge's classification (EdgeKind),
// independent of its paradigm mask.
func (g *Graph) SetKind(e EdgeRef, kind EdgeKind) {
	g.edges[e].Kind = kind
}

// AddBlame adds amount to the edge's accumulated blame.
func (g *Graph) AddBlame(e EdgeRef, amount float64) {
	g.edges[e].Blame += amount
}

// GetEdge returns the edge from -> to, if one exists.
func (g *Graph) GetEdge(from, to NodeRef) (EdgeRef, bool) {
	ref, ok := g.edgeIndex[edgeKey{from, to}]
	return ref, ok
}

// OutEdges returns from's outgoing edges, ordered with intra-stream edges
// first and, within each group, ascending by the target node's timestamp.
// This gives DeviceIdleRule's "first intra-stream out-edge" tie-break a
// deterministic meaning.
func (g *Graph) OutEdges(n NodeRef) []EdgeRef {
	return g.sortedEdges(g.outEdges[n], true)
}

// InEdges returns n's incoming edges, ordered with intra-stream edges
// first and, within each group, ascending by the source node's timestamp.
func (g *Graph) InEdges(n NodeRef) []EdgeRef {
	return g.sortedEdges(g.inEdges[n], false)
}

func (g *Graph) sortedEdges(refs []EdgeRef, out bool) []EdgeRef {
	cp := make([]EdgeRef, len(refs))
	copy(cp, refs)
	sort.SliceStable(cp, func(i, j int) bool {
		ei, ej := &g.edges[cp[i]], &g.edges[cp[j]]
		iiIntra := g.nodes[ei.From].Stream == g.nodes[ei.To].Stream
		jjIntra := g.nodes[ej.From].Stream == g.nodes[ej.To].Stream
		if iiIntra != jjIntra {
			return iiIntra
		}
		var ti, tj Timestamp
		if out {
			ti, tj = g.nodes[ei.To].Time, g.nodes[ej.To].Time
		} else {
			ti, tj = g.nodes[ei.From].Time, g.nodes[ej.From].Time
		}
		return ti < tj
	})
	return cp
}

// FindLastNodeBefore returns the last node on stream s whose timestamp is
// <= time, via binary search over the stream's ordered node list.
func (g *Graph) FindLastNodeBefore(s StreamID, time Timestamp) (NodeRef, bool) {
	nodes := g.streamNodes[s]
	if len(nodes) == 0 {
		return NoNode, false
	}
	i := sort.Search(len(nodes), func(i int) bool {
		return g.nodes[nodes[i]].Time > time
	})
	if i == 0 {
		return NoNode, false
	}
	return nodes[i-1], true
}

// WalkPredicate is invoked by WalkBackward for each predecessor visited, in
// stream order starting from (but not including) the start node. It
// returns false to stop the walk.
type WalkPredicate func(cur NodeRef) bool

// WalkBackward iterates the predecessors of start on stream s, most recent
// first, invoking predicate on each until it returns false or the stream's
// node list is exhausted.
func (g *Graph) WalkBackward(s StreamID, start NodeRef, predicate WalkPredicate) {
	nodes := g.streamNodes[s]
	idx := sort.Search(len(nodes), func(i int) bool {
		return nodes[i] >= start
	})
	for i := idx - 1; i >= 0; i-- {
		if !predicate(nodes[i]) {
			return
		}
	}
}

// StreamPosition returns the index of ref within its stream's ordered node
// list, for cursoring repeated backward walks in O(distance) rather than
// O(stream-length).
func (g *Graph) StreamPosition(ref NodeRef) int {
	n := &g.nodes[ref]
	nodes := g.streamNodes[n.Stream]
	return sort.Search(len(nodes), func(i int) bool { return nodes[i] >= ref })
}
