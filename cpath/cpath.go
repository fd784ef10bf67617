// Package cpath implements the distributed critical-path engine (C7): a
// reverse replay across MPI ranks that finds the longest non-blocking
// causal chain from program start to program end and marks its nodes with
// the CRITICAL_PATH counter.
//
// The walk starts at whichever rank owns the globally last graph node
// (found by an Allreduce-max over (time, rank) keys), then alternates
// between a rank-local longest-path search (package-internal
// localSection) and a cross-rank handoff at every remote MPI edge the
// search bottoms out on, until it reaches a true program start. That
// rank broadcasts completion to every other rank -- including any rank
// the critical path never actually visited, which would otherwise block
// forever waiting on a handoff that never comes -- and every rank joins
// a final Allreduce-sum that both totals the path length and serves as
// the run's closing barrier.
package cpath

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/stream"
)

// msgKind distinguishes the two uses of CriticalPathTag traffic: handing
// the walk to a rank holding its next node, and broadcasting that the walk
// is over.
type msgKind uint64

const (
	msgHandoff msgKind = iota
	msgDone
)

const (
	slotKind  = 0
	slotNode  = 1
	slotTotal = 2
)

// rankKeyBits reserves the low bits of the (time, rank) combined Allreduce
// key for the rank number; 20 bits covers any realistic MPI job size.
const rankKeyBits = 20

// Options configures how cpath resolves a remote rank's stream id to its
// analyzer rank number, mirroring paradigm/mpi.Options.
type Options struct {
	// RankOf translates a graph.StreamID into the analyzer rank that owns
	// it. Defaults to treating the stream id as the rank number directly.
	RankOf func(graph.StreamID) int
}

func (o Options) rankOf() func(graph.StreamID) int {
	if o.RankOf != nil {
		return o.RankOf
	}
	return func(s graph.StreamID) int { return int(s) }
}

// Result is the outcome of a critical-path run, identical on every rank.
type Result struct {
	// Length is the global critical path's total non-blocking duration.
	Length uint64
}

// Run executes the distributed critical-path algorithm on e's rank. It
// must be called by every rank in the same communicator; a rank never
// touched by the critical path still participates in the termination
// broadcast and the closing Allreduce, so all ranks must call Run or the
// run deadlocks.
func Run(ctx context.Context, e *engine.Engine, opts Options) (*Result, error) {
	if e.Comm == nil {
		return localOnlyRun(ctx, e)
	}
	rankOf := opts.rankOf()

	owner, endNode, err := findEnd(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("cpath: find_critical_path_end: %w", err)
	}

	var (
		active     = owner == e.Comm.Rank()
		current    graph.NodeRef
		total      uint64
		mySections []section
	)
	if active {
		current = endNode
	}

	finish := func(localTotal uint64) (*Result, error) {
		if err := processSections(ctx, e, mySections); err != nil {
			return nil, fmt.Errorf("cpath: marking critical sections: %w", err)
		}
		return reduceResult(ctx, e.Comm, localTotal)
	}

	for {
		if active {
			sec := localSection(e.Graph, e.Streams, current)
			mySections = append(mySections, sec)
			total += sec.duration
			e.Stats.Inc(engine.StatCriticalPathSections)

			switch sec.terminal {
			case terminalStart:
				if err := broadcastDone(ctx, e.Comm, total); err != nil {
					return nil, fmt.Errorf("cpath: termination broadcast: %w", err)
				}
				return finish(total)
			case terminalRemote:
				partner := rankOf(sec.remote.Stream)
				buf := replay.Buffer{}
				buf[slotKind] = uint64(msgHandoff)
				buf[slotNode] = uint64(sec.remote.NodeID)
				// Carry the accumulated length so far along with the
				// handoff -- only the rank that eventually reaches program
				// start needs the running total, and it gets there by
				// threading it through every hop rather than recomputing
				// it from a second pass.
				buf[slotTotal] = total
				if err := e.Comm.Send(ctx, partner, replay.CriticalPathTag, buf); err != nil {
					return nil, fmt.Errorf("cpath: handoff to rank %d: %w", partner, err)
				}
				active = false
			}
			continue
		}

		_, buf, err := e.Comm.RecvAny(ctx, replay.CriticalPathTag)
		if err != nil {
			return nil, fmt.Errorf("cpath: RecvAny: %w", err)
		}
		switch msgKind(buf[slotKind]) {
		case msgHandoff:
			current = graph.NodeRef(buf[slotNode])
			total = buf[slotTotal]
			active = true
		case msgDone:
			glog.V(1).Infof("cpath: rank %d: received termination broadcast, global length %d", e.Comm.Rank(), buf[slotTotal])
			return finish(0)
		default:
			glog.Warningf("cpath: rank %d: unrecognized CriticalPathTag message kind %d", e.Comm.Rank(), buf[slotKind])
		}
	}
}

// broadcastDone tells every other rank the walk has concluded, so a rank
// blocked in RecvAny waiting for a handoff that will never arrive can stop
// and join the closing Allreduce.
func broadcastDone(ctx context.Context, comm replay.Communicator, total uint64) error {
	buf := replay.Buffer{}
	buf[slotKind] = uint64(msgDone)
	buf[slotTotal] = total
	for r := 0; r < comm.Size(); r++ {
		if r == comm.Rank() {
			continue
		}
		if err := comm.Send(ctx, r, replay.CriticalPathTag, buf); err != nil {
			return err
		}
	}
	return nil
}

func reduceResult(ctx context.Context, comm replay.Communicator, localTotal uint64) (*Result, error) {
	global, err := comm.Allreduce(ctx, localTotal, replay.ReduceSum)
	if err != nil {
		return nil, fmt.Errorf("cpath: final Allreduce: %w", err)
	}
	return &Result{Length: global}, nil
}

// localOnlyRun handles a single-rank batch analysis (no MPI replay
// transport configured): the end of the trace is necessarily local, and
// there is nobody to hand a remote edge off to.
func localOnlyRun(ctx context.Context, e *engine.Engine) (*Result, error) {
	endNode, ok := localEnd(e.Graph, e.Streams)
	if !ok {
		return &Result{}, nil
	}
	sec := localSection(e.Graph, e.Streams, endNode)
	e.Stats.Inc(engine.StatCriticalPathSections)
	if sec.terminal == terminalRemote {
		return nil, fmt.Errorf("cpath: remote MPI edge found with no replay communicator configured")
	}
	if err := processSections(ctx, e, []section{sec}); err != nil {
		return nil, fmt.Errorf("cpath: marking critical sections: %w", err)
	}
	return &Result{Length: sec.duration}, nil
}

// findEnd runs the distributed reduction that locates the rank owning the
// globally last graph node: each rank combines
// its own last node's timestamp with its rank number into one key (time
// dominates so Allreduce-max picks the latest timestamp, breaking ties
// toward the higher rank number), and Allreduce-max finds the winner
// identically on every rank.
func findEnd(ctx context.Context, e *engine.Engine) (ownerRank int, ownerNode graph.NodeRef, err error) {
	key := uint64(0)
	node, ok := localEnd(e.Graph, e.Streams)
	if ok {
		key = (uint64(e.Graph.Node(node).Time)+1)<<rankKeyBits | uint64(e.Comm.Rank())
	}

	global, err := e.Comm.Allreduce(ctx, key, replay.ReduceMax)
	if err != nil {
		return 0, graph.NoNode, err
	}
	if global == 0 {
		return 0, graph.NoNode, fmt.Errorf("no nodes in any rank's graph")
	}
	owner := int(global & (1<<rankKeyBits - 1))
	if owner == e.Comm.Rank() {
		return owner, node, nil
	}
	return owner, graph.NoNode, nil
}

// localEnd returns the node with the greatest timestamp across all of the
// rank's streams.
func localEnd(g *graph.Graph, streams *stream.Group) (graph.NodeRef, bool) {
	best := graph.NoNode
	var bestTime graph.Timestamp
	for _, es := range streams.All() {
		nodes := es.Nodes()
		if len(nodes) == 0 {
			continue
		}
		last := nodes[len(nodes)-1]
		if t := g.Node(last).Time; best == graph.NoNode || t > bestTime {
			best, bestTime = last, t
		}
	}
	return best, best != graph.NoNode
}

// markCritical sets CTR_CRITICAL_PATH=1 on every node in a section.
func markCritical(e *engine.Engine, nodes []graph.NodeRef) {
	for _, n := range nodes {
		e.Graph.Node(n).SetCounter(graph.CtrCriticalPath, 1)
	}
}
