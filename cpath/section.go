package cpath

import (
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/stream"
)

// terminalKind classifies why localSection stopped walking backward.
type terminalKind uint8

const (
	// terminalStart means the walk reached a node with no usable incoming
	// edge: program start for this stream, nothing further to hand off.
	terminalStart terminalKind = iota
	// terminalRemote means the walk reached a node with a recorded remote
	// MPI edge: the true predecessor lives on another rank.
	terminalRemote
)

// section is one rank-local stretch of the global critical path: the
// longest non-blocking path ending at a given node, back to the nearest
// boundary ("local graph ... via DAG-shortest-path on
// the complemented weights").
type section struct {
	nodes    []graph.NodeRef // boundary first, target last
	duration uint64
	terminal terminalKind
	remote   stream.RemoteRef // only meaningful if terminal == terminalRemote
}

// localSection computes the section ending at target. A node is a
// section boundary if it has a recorded remote MPI edge (mirroring
// paradigm/mpi's mpiBoundary: an MPI leave node is the natural
// paradigm-specific synchronization boundary) or has no usable (non-
// blocking) incoming edge at all.
//
// The longest path is found by memoized backward recursion rather than by
// literally summing graph.Edge.Weight()'s complemented values: since
// Weight() folds every edge's duration against the same MAX_U64 constant,
// summing it only ranks paths of equal edge count correctly, and the
// causal graphs this engine builds routinely branch (fork/join team
// members, idle-blame donors, target-offload stitching) into paths of
// different lengths. Weight's MAX_U64 sentinel is kept as the "blocking
// edge is unusable" signal; the actual ranking is done on real
// durations.
func localSection(g *graph.Graph, streams *stream.Group, target graph.NodeRef) section {
	type best struct {
		dist uint64
		via  graph.EdgeRef
	}
	memo := make(map[graph.NodeRef]best)

	var longestTo func(n graph.NodeRef) best
	longestTo = func(n graph.NodeRef) best {
		if b, ok := memo[n]; ok {
			return b
		}
		// Mark in-progress before recursing so a (should-never-happen) cycle
		// fails closed at zero rather than looping forever.
		memo[n] = best{via: graph.NoEdge}

		if _, ok := streams.RemoteEdge(n); ok {
			b := best{via: graph.NoEdge}
			memo[n] = b
			return b
		}

		var b best
		b.via = graph.NoEdge
		for _, edgeRef := range g.InEdges(n) {
			edge := g.Edge(edgeRef)
			if edge.Blocking {
				continue
			}
			pred := longestTo(edge.From)
			total := pred.dist + edge.Duration
			if b.via == graph.NoEdge || total > b.dist {
				b = best{dist: total, via: edgeRef}
			}
		}
		memo[n] = b
		return b
	}

	longestTo(target)

	var path []graph.NodeRef
	cur := target
	var totalDuration uint64
	for {
		path = append(path, cur)
		b := memo[cur]
		if b.via == graph.NoEdge {
			break
		}
		edge := g.Edge(b.via)
		totalDuration += edge.Duration
		cur = edge.From
	}
	// path was built target-first; reverse to boundary-first.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	sec := section{nodes: path, duration: totalDuration, terminal: terminalStart}
	if r, ok := streams.RemoteEdge(path[0]); ok {
		sec.terminal = terminalRemote
		sec.remote = r
	}
	return sec
}
