// Package blame implements the backward stream walk and open-region
// proration used to attribute wasted time to the regions that caused it
// (C5). distribute_blame is invoked by paradigm rules whenever a stream was
// found to be the reason another stream waited, and it has no wait state
// of its own to record the cost against.
package blame

import "github.com/maximilian-tech/casita/graph"

// WalkCallback is invoked once per intra-stream edge visited by Distribute,
// walking backward from the blame's origin node. It returns the region
// duration that edge should be eligible to receive a blame share for, and
// whether the walk should continue past it.
type WalkCallback func(g *graph.Graph, edge graph.EdgeRef) (duration uint64, cont bool)

// Distribute walks backward on start's stream, invoking cb once per visited
// intra-stream edge, and distributes blame across the visited edges in
// proportion to the duration each contributed. It returns total_time, the
// sum of durations the callback returned; callers can use total_time to
// apportion a trailing open-region share onto the edge leaving start
// (DeviceIdleRule does this through DistributeOpenRegion).
//
// If total_time is zero, no blame is distributed -- callers must guard
// against dividing by it themselves if they intend to use it.
func Distribute(g *graph.Graph, start graph.NodeRef, blameAmount float64, cb WalkCallback) uint64 {
	streamID := g.Node(start).Stream

	type step struct {
		edge     graph.EdgeRef
		duration uint64
	}
	var steps []step
	var total uint64

	prev := start
	g.WalkBackward(streamID, start, func(cur graph.NodeRef) bool {
		edgeRef, ok := g.GetEdge(cur, prev)
		if !ok {
			return false
		}
		duration, cont := cb(g, edgeRef)
		steps = append(steps, step{edgeRef, duration})
		total += duration
		prev = cur
		return cont
	})

	if total == 0 {
		return 0
	}
	for _, s := range steps {
		g.AddBlame(s.edge, blameAmount*float64(s.duration)/float64(total))
	}
	return total
}

// DistributeOpenRegion is the open-region form of Distribute (the full
// signature, `distribute_blame(..., open_region_time=0)`):
// openRegion is folded into the walk's total as a virtual trailing
// contribution that has no edge of its own to receive blame directly --
// the visited interior edges and the open region all share blameAmount in
// proportion to their own duration against the combined total, and the
// caller (DeviceIdleRule) is responsible for crediting the open region's
// share onto whichever edge represents it (the single intra-stream edge
// leaving start_node), using the returned total to compute that share as
// blameAmount*openRegion/total.
func DistributeOpenRegion(g *graph.Graph, start graph.NodeRef, blameAmount float64, openRegion uint64, cb WalkCallback) uint64 {
	streamID := g.Node(start).Stream

	type step struct {
		edge     graph.EdgeRef
		duration uint64
	}
	var steps []step
	total := openRegion

	prev := start
	g.WalkBackward(streamID, start, func(cur graph.NodeRef) bool {
		edgeRef, ok := g.GetEdge(cur, prev)
		if !ok {
			return false
		}
		duration, cont := cb(g, edgeRef)
		steps = append(steps, step{edgeRef, duration})
		total += duration
		prev = cur
		return cont
	})

	if total == 0 {
		return 0
	}
	for _, s := range steps {
		g.AddBlame(s.edge, blameAmount*float64(s.duration)/float64(total))
	}
	return total
}

// EdgeDurationWalk returns a WalkCallback that attributes each visited
// edge's own duration, stopping at (but including) the edge whose source
// node satisfies isBoundary -- the common case of walking back to "the
// previous paradigm-specific synchronization point".
func EdgeDurationWalk(isBoundary func(g *graph.Graph, from graph.NodeRef) bool) WalkCallback {
	return func(g *graph.Graph, edgeRef graph.EdgeRef) (uint64, bool) {
		e := g.Edge(edgeRef)
		cont := !isBoundary(g, e.From)
		return e.Duration, cont
	}
}
