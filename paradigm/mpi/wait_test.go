package mpi

import (
	"sync"
	"testing"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/tracedata"
)

// nRankHarness generalizes twoRankHarness to an arbitrary rank count, for
// WaitAllRule's multi-partner scenario (spec section 8, scenario 3), which
// needs one partner per outstanding non-blocking request.
func nRankHarness(t *testing.T, fns ...func(e *engine.Engine)) []*engine.Engine {
	t.Helper()
	comms := replay.NewLocalCommunicators(len(fns))
	engines := make([]*engine.Engine, len(fns))
	for i, c := range comms {
		e := engine.New(engine.DefaultConfig(), c)
		Register(e, Options{})
		engines[i] = e
	}

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i, fn := range fns {
		i, fn := i, fn
		go func() { defer wg.Done(); fn(engines[i]) }()
	}
	wg.Wait()
	return engines
}

// TestWaitRuleLateReceiver exercises WaitRule's blocking branch: rank0 posts
// an Isend, then waits on it before the partner's own Irecv has even
// returned (from rank0's Wait enter at 120 to the Irecv's leave at 250),
// so the wait is marked blocking with WAITING_TIME = min(250,300)-120=130.
func TestWaitRuleLateReceiver(t *testing.T) {
	engines := nRankHarness(t,
		func(e *engine.Engine) {
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 100, Kind: tracedata.EventMPIIsend, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 110, Kind: tracedata.EventMPIIsend, Phase: tracedata.PhaseLeave, Partner: 1, RequestID: 42})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 120, Kind: tracedata.EventMPIWait, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 300, Kind: tracedata.EventMPIWait, Phase: tracedata.PhaseLeave, RequestID: 42})
		},
		func(e *engine.Engine) {
			mustEvent(t, e, tracedata.Event{Location: 1, Time: 200, Kind: tracedata.EventMPIIrecv, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 1, Time: 250, Kind: tracedata.EventMPIIrecv, Phase: tracedata.PhaseLeave, Partner: 0, RequestID: 42})
		},
	)
	e0 := engines[0]

	es, _ := e0.Streams.Get(0)
	nodes := es.Nodes()
	// nodes: [isendEnter, isendLeave, waitEnter, waitLeave]
	waitEnter, waitLeave := nodes[2], nodes[3]

	got, ok := e0.Graph.Node(waitLeave).Counter(graph.CtrWaitingTime)
	if !ok || got != 130 {
		t.Errorf("WAITING_TIME = %d, %v; want 130, true", got, ok)
	}
	edgeRef, ok := e0.Graph.GetEdge(waitEnter, waitLeave)
	if !ok || !e0.Graph.Edge(edgeRef).Blocking {
		t.Error("expected wait enter->leave edge to be blocking")
	}
	if _, pending := es.Mpi.Get(42); pending {
		t.Error("expected request 42 to be removed from the pending table")
	}
}

// TestWaitAllRuleKeepsLatestRequest is end-to-end scenario 3: rank0 posts
// two Isends whose partners finish at 200 and 350, then Waitall spans
// [180,400]. Expected: WAITING_TIME = min(350,400)-180 = 170, and -- per
// spec section 4.3.1 step 2 -- only the request tied to the
// latest-finishing partner (350) remains pending once the rule returns;
// the other is dropped.
func TestWaitAllRuleKeepsLatestRequest(t *testing.T) {
	engines := nRankHarness(t,
		func(e *engine.Engine) {
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 10, Kind: tracedata.EventMPIIsend, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 11, Kind: tracedata.EventMPIIsend, Phase: tracedata.PhaseLeave, Partner: 1, RequestID: 1})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 12, Kind: tracedata.EventMPIIsend, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 13, Kind: tracedata.EventMPIIsend, Phase: tracedata.PhaseLeave, Partner: 2, RequestID: 2})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 180, Kind: tracedata.EventMPIWaitall, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 0, Time: 400, Kind: tracedata.EventMPIWaitall, Phase: tracedata.PhaseLeave, WaitRequestIDs: []int64{1, 2}})
		},
		func(e *engine.Engine) {
			mustEvent(t, e, tracedata.Event{Location: 1, Time: 150, Kind: tracedata.EventMPIIrecv, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 1, Time: 200, Kind: tracedata.EventMPIIrecv, Phase: tracedata.PhaseLeave, Partner: 0, RequestID: 1})
		},
		func(e *engine.Engine) {
			mustEvent(t, e, tracedata.Event{Location: 2, Time: 300, Kind: tracedata.EventMPIIrecv, Phase: tracedata.PhaseEnter})
			mustEvent(t, e, tracedata.Event{Location: 2, Time: 350, Kind: tracedata.EventMPIIrecv, Phase: tracedata.PhaseLeave, Partner: 0, RequestID: 2})
		},
	)
	e0 := engines[0]

	es, _ := e0.Streams.Get(0)
	nodes := es.Nodes()
	// nodes: [isend1Enter, isend1Leave, isend2Enter, isend2Leave, waitallEnter, waitallLeave]
	waitallEnter, waitallLeave := nodes[4], nodes[5]

	got, ok := e0.Graph.Node(waitallLeave).Counter(graph.CtrWaitingTime)
	if !ok || got != 170 {
		t.Errorf("WAITING_TIME = %d, %v; want 170, true", got, ok)
	}
	edgeRef, ok := e0.Graph.GetEdge(waitallEnter, waitallLeave)
	if !ok || !e0.Graph.Edge(edgeRef).Blocking {
		t.Error("expected waitall enter->leave edge to be blocking")
	}

	if _, pending := es.Mpi.Get(1); pending {
		t.Error("expected request 1 (partner finished at 200) to be removed")
	}
	if _, pending := es.Mpi.Get(2); !pending {
		t.Error("expected request 2 (latest partner, finished at 350) to remain pending")
	}
}
