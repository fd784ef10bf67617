// Package engine implements the analysis engine (C3): it drives trace
// ingestion, builds the causal event graph and stream registry, delegates
// key-value attribute handling to paradigm plug-ins, dispatches the rule
// chain on every node, and owns the per-rank statistics singleton.
package engine

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/stream"
	"github.com/maximilian-tech/casita/tracedata"
)

// FatalError wraps an error that must terminate ingestion for this rank
// (timestamp regression, MPI transport failure, or any
// invariant violation while --no-errors is set). Rules and ingestion code
// raise one via Engine.Abort; OnEvent recovers it and returns it as a
// normal error, and the caller is expected to stop feeding events.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return fmt.Sprintf("casita: fatal: %v", f.Err) }
func (f *FatalError) Unwrap() error { return f.Err }

// AttributeHandler is invoked for every event, before rule dispatch, so a
// paradigm plug-in can populate node payloads and per-paradigm state from
// the event's key-value attributes and cross-stream references. Handlers
// run in registration order; all handlers see every event, matching the
// rule dispatch contract.
type AttributeHandler func(e *Engine, ev tracedata.Event, n graph.NodeRef)

// Engine owns the graph, the stream registry, the registered paradigm
// plug-ins (attribute handlers and rules), and the per-rank statistics.
// One Engine instance corresponds to one analyzer rank.
type Engine struct {
	Config  Config
	Graph   *graph.Graph
	Streams *stream.Group
	Stats   *Statistics
	Names   *RegionNames

	// Comm is the MPI replay transport this rank's MPI rules use. Nil in a
	// single-rank batch run, where any rule requiring a partner rank fails
	// closed (see paradigm/mpi).
	Comm replay.Communicator

	attrHandlers []AttributeHandler
	rules        registry
}

// New constructs an Engine over a fresh graph and stream registry.
func New(cfg Config, comm replay.Communicator) *Engine {
	g := graph.New()
	stats := NewStatistics()
	rank := 0
	if comm != nil {
		rank = comm.Rank()
	}
	glog.V(1).Infof("engine: session %s: rank %d starting", stats.SessionID, rank)
	return &Engine{
		Config:  cfg,
		Graph:   g,
		Streams: stream.NewGroup(g),
		Stats:   stats,
		Names:   newRegionNames(cfg),
		Comm:    comm,
	}
}

// RegisterAttributeHandler adds h to the set invoked before rule dispatch
// on every event.
func (e *Engine) RegisterAttributeHandler(h AttributeHandler) {
	e.attrHandlers = append(e.attrHandlers, h)
}

// RegisterRule adds r to the engine's dispatch chain.
func (e *Engine) RegisterRule(r Rule) {
	e.rules.Register(r)
}

// Abort raises a FatalError, unwinding to the enclosing OnEvent call. Use
// this only for conditions classified as fatal: MPI transport failure, or
// an invariant violation while Config.NoErrors is set.
func (e *Engine) Abort(err error) {
	panic(&FatalError{Err: err})
}

// OnDefinition handles one static definition record. The definition
// tables themselves are an external concern; the engine retains only a
// bounded cache of region names for its own diagnostics.
func (e *Engine) OnDefinition(def tracedata.Definition) error {
	if def.Kind == tracedata.DefRegion {
		e.Names.Put(def.ID, def.Name)
	}
	return nil
}

// OnEvent creates the node for ev, runs the registered attribute handlers,
// and dispatches the rule chain. It returns a non-nil error only for a
// FatalError raised during processing; all other malformed-trace
// conditions are reported via glog and absorbed, per Config.NoErrors.
func (e *Engine) OnEvent(ev tracedata.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()

	sid := graph.StreamID(ev.Location)
	es, ok := e.Streams.Get(sid)
	if !ok {
		es = e.Streams.Add(sid, "", streamKindFor(ev))
	}

	nodeRef, addErr := es.AddNode(graph.Timestamp(ev.Time), recordKind(ev.Phase), descriptorFor(ev))
	if addErr != nil {
		if e.Config.NoErrors {
			return &FatalError{Err: addErr}
		}
		glog.Warningf("engine: %v; event skipped", addErr)
		e.Stats.Inc(StatMalformedTrace)
		return nil
	}

	e.linkIntraStreamSuccessor(es, nodeRef)

	for _, h := range e.attrHandlers {
		h(e, ev, nodeRef)
	}

	e.rules.Dispatch(e, nodeRef)
	return nil
}

// linkIntraStreamSuccessor adds the successor edge from the node preceding
// n on its own stream, if any ("edges created during
// ingestion (intra-stream successor edges)").
func (e *Engine) linkIntraStreamSuccessor(es *stream.EventStream, n graph.NodeRef) {
	nodes := es.Nodes()
	if len(nodes) < 2 {
		return
	}
	prev := nodes[len(nodes)-2]
	paradigm := e.Graph.Node(n).Paradigm
	ref := e.Graph.AddEdge(prev, n, paradigm, false)
	e.Graph.SetKind(ref, graph.EdgeIntraStreamSuccessor)
}
