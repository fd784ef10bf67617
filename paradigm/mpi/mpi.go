// Package mpi implements the MPI paradigm rule set (C4.1): SendRule,
// RecvRule, WaitRule, WaitAllRule and the collective rule, plus the
// attribute handler that populates node payloads (partner stream id,
// pending non-blocking request records) from the trace's key-value
// attributes before rule dispatch.
package mpi

import (
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// Rule priorities: Wait[all] must run before Send/Recv so that a leave
// event carrying both a completed request and (in degenerate traces) a
// send/recv shape resolves its non-blocking completion first. In
// practice the function kinds never overlap, but the ordering documents
// intent.
const (
	priorityWaitAll    = 50
	priorityWait       = 40
	priorityCollective = 30
	prioritySend       = 20
	priorityRecv       = 20
)

// Options configures how the MPI rule set resolves a partner stream id to
// the analyzer rank that owns it.
type Options struct {
	// RankOf translates a graph.StreamID carrying MPI rank traffic into
	// the analyzer rank number to address over the replay communicator.
	// Defaults to treating the stream id as the rank number directly,
	// which holds whenever the trace reader assigns one MPI stream id per
	// rank (the common case).
	RankOf func(graph.StreamID) int
}

func (o Options) rankOf() func(graph.StreamID) int {
	if o.RankOf != nil {
		return o.RankOf
	}
	return func(s graph.StreamID) int { return int(s) }
}

// Register attaches the MPI attribute handler and all MPI rules to e.
func Register(e *engine.Engine, opts Options) {
	h := &handler{rankOf: opts.rankOf()}
	e.RegisterAttributeHandler(h.onEvent)
	e.RegisterRule(&sendRule{h})
	e.RegisterRule(&recvRule{h})
	e.RegisterRule(&waitRule{h})
	e.RegisterRule(&waitAllRule{h})
	e.RegisterRule(&collectiveRule{h})
}
