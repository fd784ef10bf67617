package cpath

import (
	"context"
	"sync"
	"testing"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/paradigm/mpi"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/tracedata"
)

func mustEvent(t *testing.T, e *engine.Engine, ev tracedata.Event) {
	t.Helper()
	if err := e.OnEvent(ev); err != nil {
		t.Fatalf("OnEvent(%+v): %v", ev, err)
	}
}

// TestRunSingleRankLongestChain covers localOnlyRun: with no replay
// communicator configured, Run finds the end locally and walks the
// longest non-blocking chain back to program start.
func TestRunSingleRankLongestChain(t *testing.T) {
	e := engine.New(engine.DefaultConfig(), nil)

	mustEvent(t, e, tracedata.Event{Location: 0, Time: 0, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter})
	mustEvent(t, e, tracedata.Event{Location: 0, Time: 30, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave})
	mustEvent(t, e, tracedata.Event{Location: 0, Time: 30, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter})
	mustEvent(t, e, tracedata.Event{Location: 0, Time: 90, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave})

	res, err := Run(context.Background(), e, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Length != 90 {
		t.Errorf("Length = %d, want 90", res.Length)
	}

	es, _ := e.Streams.Get(0)
	for _, n := range es.Nodes() {
		if got, ok := e.Graph.Node(n).Counter(graph.CtrCriticalPath); !ok || got != 1 {
			t.Errorf("node %d CRITICAL_PATH = %d, %v; want 1, true", n, got, ok)
		}
	}
}

// TestRunTwoRanksCrossesMPIHandoff builds a send/recv pair with the blame
// (not wait) branch, so the recv enter->leave edge stays non-blocking and
// the critical path legitimately crosses from rank 1 (which owns the
// globally last node) back to rank 0 through the remote edge recvRule
// records.
//
// Rank 0: MPI_Send[0,10] -> partnerStop=10.
// Rank 1: generic[0,50], MPI_Recv[60,70] (partner=0, recvStart=60>10 so
// RecvRule blames backward instead of waiting), generic[70,200].
//
// Rank 0's send waits on its partner (sendStart=0 < recvStart=60), so its
// enter->leave edge is blocking and rank 0's local section stops at
// send-leave with nothing further to contribute. The global critical path
// is entirely rank 1's: recv-enter -(10)-> recv-leave -(0)-> generic2-enter
// -(130)-> generic2-leave, total 140.
func TestRunTwoRanksCrossesMPIHandoff(t *testing.T) {
	comms := replay.NewLocalCommunicators(2)
	e0 := engine.New(engine.DefaultConfig(), comms[0])
	e1 := engine.New(engine.DefaultConfig(), comms[1])
	mpi.Register(e0, mpi.Options{})
	mpi.Register(e1, mpi.Options{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mustEvent(t, e0, tracedata.Event{Location: 0, Time: 0, Kind: tracedata.EventMPISend, Phase: tracedata.PhaseEnter})
		mustEvent(t, e0, tracedata.Event{Location: 0, Time: 10, Kind: tracedata.EventMPISend, Phase: tracedata.PhaseLeave, Partner: 1})
	}()
	go func() {
		defer wg.Done()
		mustEvent(t, e1, tracedata.Event{Location: 1, Time: 0, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter})
		mustEvent(t, e1, tracedata.Event{Location: 1, Time: 50, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave})
		mustEvent(t, e1, tracedata.Event{Location: 1, Time: 60, Kind: tracedata.EventMPIRecv, Phase: tracedata.PhaseEnter})
		mustEvent(t, e1, tracedata.Event{Location: 1, Time: 70, Kind: tracedata.EventMPIRecv, Phase: tracedata.PhaseLeave, Partner: 0})
		mustEvent(t, e1, tracedata.Event{Location: 1, Time: 70, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter})
		mustEvent(t, e1, tracedata.Event{Location: 1, Time: 200, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave})
	}()
	wg.Wait()

	var res0, res1 *Result
	var err0, err1 error
	wg.Add(2)
	go func() { defer wg.Done(); res0, err0 = Run(context.Background(), e0, Options{}) }()
	go func() { defer wg.Done(); res1, err1 = Run(context.Background(), e1, Options{}) }()
	wg.Wait()

	if err0 != nil {
		t.Fatalf("rank 0 Run: %v", err0)
	}
	if err1 != nil {
		t.Fatalf("rank 1 Run: %v", err1)
	}
	if res0.Length != 140 || res1.Length != 140 {
		t.Errorf("Length = %d, %d; want 140, 140", res0.Length, res1.Length)
	}

	es1, _ := e1.Streams.Get(1)
	nodes1 := es1.Nodes()
	genericEnter, genericLeave := nodes1[0], nodes1[1]
	recvEnter, recvLeave := nodes1[2], nodes1[3]
	generic2Enter, generic2Leave := nodes1[4], nodes1[5]

	for _, n := range []graph.NodeRef{recvEnter, recvLeave, generic2Enter, generic2Leave} {
		if got, ok := e1.Graph.Node(n).Counter(graph.CtrCriticalPath); !ok || got != 1 {
			t.Errorf("rank1 node %d CRITICAL_PATH = %d, %v; want 1, true", n, got, ok)
		}
	}
	for _, n := range []graph.NodeRef{genericEnter, genericLeave} {
		if _, ok := e1.Graph.Node(n).Counter(graph.CtrCriticalPath); ok {
			t.Errorf("rank1 node %d unexpectedly marked CRITICAL_PATH", n)
		}
	}

	es0, _ := e0.Streams.Get(0)
	nodes0 := es0.Nodes()
	sendLeave := nodes0[1]
	if got, ok := e0.Graph.Node(sendLeave).Counter(graph.CtrCriticalPath); !ok || got != 1 {
		t.Errorf("rank0 send-leave CRITICAL_PATH = %d, %v; want 1, true", got, ok)
	}
}
