package engine

import (
	"errors"
	"testing"

	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/tracedata"
)

type countingRule struct {
	name     string
	priority int
	calls    *[]string
}

func (r countingRule) Name() string  { return r.name }
func (r countingRule) Priority() int { return r.priority }
func (r countingRule) Apply(e *Engine, n graph.NodeRef) bool {
	*r.calls = append(*r.calls, r.name)
	return true
}

func TestRuleDispatchOrderByPriority(t *testing.T) {
	e := New(DefaultConfig(), nil)
	var calls []string
	e.RegisterRule(countingRule{"low", 1, &calls})
	e.RegisterRule(countingRule{"high", 10, &calls})
	e.RegisterRule(countingRule{"mid", 5, &calls})

	if err := e.OnEvent(tracedata.Event{Location: 0, Time: 0, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter}); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	want := []string{"high", "mid", "low"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestOnEventCreatesIntraStreamSuccessorEdge(t *testing.T) {
	e := New(DefaultConfig(), nil)
	if err := e.OnEvent(tracedata.Event{Location: 1, Time: 10, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter}); err != nil {
		t.Fatal(err)
	}
	if err := e.OnEvent(tracedata.Event{Location: 1, Time: 20, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave}); err != nil {
		t.Fatal(err)
	}
	es, ok := e.Streams.Get(1)
	if !ok {
		t.Fatal("stream 1 not registered")
	}
	nodes := es.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
	ref, ok := e.Graph.GetEdge(nodes[0], nodes[1])
	if !ok {
		t.Fatal("missing intra-stream successor edge")
	}
	if e.Graph.Edge(ref).Duration != 10 {
		t.Errorf("edge duration = %d, want 10", e.Graph.Edge(ref).Duration)
	}
}

func TestOnEventTimestampRegressionWarnsByDefault(t *testing.T) {
	e := New(DefaultConfig(), nil)
	if err := e.OnEvent(tracedata.Event{Location: 0, Time: 100, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter}); err != nil {
		t.Fatal(err)
	}
	if err := e.OnEvent(tracedata.Event{Location: 0, Time: 50, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave}); err != nil {
		t.Fatalf("OnEvent should absorb the regression, got %v", err)
	}
	if got := e.Stats.Get(StatMalformedTrace); got != 1 {
		t.Errorf("StatMalformedTrace = %d, want 1", got)
	}
}

func TestOnEventTimestampRegressionFatalWithNoErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoErrors = true
	e := New(cfg, nil)
	if err := e.OnEvent(tracedata.Event{Location: 0, Time: 100, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter}); err != nil {
		t.Fatal(err)
	}
	err := e.OnEvent(tracedata.Event{Location: 0, Time: 50, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave})
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want a *FatalError", err)
	}
}

func TestAbortUnwindsToFatalError(t *testing.T) {
	e := New(DefaultConfig(), nil)
	e.RegisterRule(countingRule{"aborter", 0, &[]string{}})
	e.RegisterAttributeHandler(func(e *Engine, ev tracedata.Event, n graph.NodeRef) {
		e.Abort(errors.New("replay transport closed"))
	})
	err := e.OnEvent(tracedata.Event{Location: 0, Time: 0, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter})
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want a *FatalError", err)
	}
}

func TestRegionNamesRoundTrip(t *testing.T) {
	e := New(DefaultConfig(), nil)
	if err := e.OnDefinition(tracedata.Definition{Kind: tracedata.DefRegion, ID: 7, Name: "MPI_Send"}); err != nil {
		t.Fatal(err)
	}
	name, ok := e.Names.Name(7)
	if !ok || name != "MPI_Send" {
		t.Errorf("Name(7) = %q, %v; want MPI_Send, true", name, ok)
	}
}
