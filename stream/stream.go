// Package stream implements per-location event streams and stream groups
// (C2): ordered node lists per physical location, classification into
// host/device/MPI kinds, and the paradigm-specific pending-operation tables
// (outstanding MPI requests, outstanding device kernels) that the rule sets
// in package paradigm consume.
package stream

import (
	"github.com/maximilian-tech/casita/graph"
)

// Kind classifies the physical location an EventStream represents.
type Kind uint8

const (
	// Host is a CPU thread (may also carry MPI rank traffic).
	Host Kind = iota
	// MPIRank is an MPI rank process's own stream.
	MPIRank
	// Device is a GPU/accelerator stream.
	Device
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case MPIRank:
		return "mpi"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// EventStream is one physical location: a host thread, MPI rank process, or
// device stream. It is a thin, typed handle over the shared Graph's
// per-stream node list, plus whatever paradigm-specific bookkeeping table
// its Kind calls for.
type EventStream struct {
	ID   graph.StreamID
	Name string
	Kind Kind

	g *graph.Graph

	// Mpi is non-nil for streams that originate or complete MPI operations.
	Mpi *MpiStream
	// Dev is non-nil for Device streams.
	Dev *DeviceStream
}

// NewEventStream constructs an EventStream backed by g.
func NewEventStream(g *graph.Graph, id graph.StreamID, name string, kind Kind) *EventStream {
	es := &EventStream{ID: id, Name: name, Kind: kind, g: g}
	switch kind {
	case Device:
		es.Dev = newDeviceStream()
	case MPIRank:
		es.Mpi = newMpiStream()
	}
	return es
}

// EnableMPI attaches MPI request bookkeeping to the stream. Host streams
// that also carry MPI traffic call this explicitly; pure MPIRank streams
// get it automatically.
func (es *EventStream) EnableMPI() {
	if es.Mpi == nil {
		es.Mpi = newMpiStream()
	}
}

// AddNode appends a node to this stream via the backing graph.
func (es *EventStream) AddNode(time graph.Timestamp, kind graph.RecordKind, desc graph.Descriptor) (graph.NodeRef, error) {
	return es.g.AddNode(es.ID, time, kind, desc)
}

// Nodes returns the stream's ordered NodeRefs.
func (es *EventStream) Nodes() []graph.NodeRef {
	return es.g.StreamNodes(es.ID)
}

// LastNodeBefore finds the last node on this stream at or before time.
func (es *EventStream) LastNodeBefore(time graph.Timestamp) (graph.NodeRef, bool) {
	return es.g.FindLastNodeBefore(es.ID, time)
}

// WalkBackward walks this stream's predecessors of start.
func (es *EventStream) WalkBackward(start graph.NodeRef, predicate graph.WalkPredicate) {
	es.g.WalkBackward(es.ID, start, predicate)
}

// Group owns the full set of EventStreams in a trace, classified by kind,
// as C2 requires for paradigm rules that need "all host streams" or "the
// stream for device id X".
type Group struct {
	g       *graph.Graph
	streams map[graph.StreamID]*EventStream
	order   []graph.StreamID
}

// NewGroup constructs an empty stream Group backed by g.
func NewGroup(g *graph.Graph) *Group {
	return &Group{g: g, streams: make(map[graph.StreamID]*EventStream)}
}

// Add registers a new stream with the group and returns it.
func (grp *Group) Add(id graph.StreamID, name string, kind Kind) *EventStream {
	es := NewEventStream(grp.g, id, name, kind)
	grp.streams[id] = es
	grp.order = append(grp.order, id)
	return es
}

// Get returns the stream with the given id, if registered.
func (grp *Group) Get(id graph.StreamID) (*EventStream, bool) {
	es, ok := grp.streams[id]
	return es, ok
}

// HostStreams returns all streams of kind Host, in registration order.
func (grp *Group) HostStreams() []*EventStream {
	return grp.byKind(Host)
}

// DeviceStreams returns all streams of kind Device, in registration order.
func (grp *Group) DeviceStreams() []*EventStream {
	return grp.byKind(Device)
}

// MPIStreams returns all streams of kind MPIRank, in registration order.
func (grp *Group) MPIStreams() []*EventStream {
	return grp.byKind(MPIRank)
}

func (grp *Group) byKind(k Kind) []*EventStream {
	var out []*EventStream
	for _, id := range grp.order {
		if es := grp.streams[id]; es.Kind == k {
			out = append(out, es)
		}
	}
	return out
}

// RemoteEdge looks up the remote MPI partner recorded for node n, if any,
// by resolving n's owning stream and delegating to its MpiStream (if it
// has one). Used by the critical-path engine (package cpath) to find
// where a backward walk must hand off to another rank.
func (grp *Group) RemoteEdge(n graph.NodeRef) (RemoteRef, bool) {
	s := grp.g.Node(n).Stream
	es, ok := grp.streams[s]
	if !ok || es.Mpi == nil {
		return RemoteRef{}, false
	}
	return es.Mpi.RemoteEdge(n)
}

// All returns every registered stream in registration order.
func (grp *Group) All() []*EventStream {
	out := make([]*EventStream, 0, len(grp.order))
	for _, id := range grp.order {
		out = append(out, grp.streams[id])
	}
	return out
}
