package stream

import (
	"testing"

	"github.com/maximilian-tech/casita/graph"
)

func TestGroupClassification(t *testing.T) {
	g := graph.New()
	grp := NewGroup(g)
	grp.Add(0, "host0", Host)
	grp.Add(1, "rank0", MPIRank)
	grp.Add(2, "gpu0", Device)

	if len(grp.HostStreams()) != 1 {
		t.Errorf("HostStreams = %d, want 1", len(grp.HostStreams()))
	}
	if len(grp.MPIStreams()) != 1 {
		t.Errorf("MPIStreams = %d, want 1", len(grp.MPIStreams()))
	}
	if len(grp.DeviceStreams()) != 1 {
		t.Errorf("DeviceStreams = %d, want 1", len(grp.DeviceStreams()))
	}
	if len(grp.All()) != 3 {
		t.Errorf("All = %d, want 3", len(grp.All()))
	}
}

func TestMpiStreamPendingRequestLifecycle(t *testing.T) {
	g := graph.New()
	es := NewEventStream(g, 0, "rank0", MPIRank)
	es.EnableMPI()

	node, _ := es.AddNode(10, graph.Leave, graph.Descriptor{Function: graph.FuncMPIIsend})
	es.Mpi.Add(RequestID(1), &PendingRequest{MsgNode: node})

	if _, ok := es.Mpi.Get(RequestID(1)); !ok {
		t.Fatal("expected pending request 1 to exist")
	}
	es.Mpi.Remove(RequestID(1))
	if _, ok := es.Mpi.Get(RequestID(1)); ok {
		t.Fatal("expected pending request 1 to be removed")
	}
}

func TestDeviceStreamLaunchQueueFIFO(t *testing.T) {
	g := graph.New()
	host := NewEventStream(g, 0, "host", Host)
	dev := NewEventStream(g, 1, "gpu0", Device)

	l1, _ := host.AddNode(0, graph.Enter, graph.Descriptor{Function: graph.FuncOffloadKernelLaunch})
	l2, _ := host.AddNode(1, graph.Enter, graph.Descriptor{Function: graph.FuncOffloadKernelLaunch})
	dev.Dev.EnqueueLaunch(l1)
	dev.Dev.EnqueueLaunch(l2)

	got, ok := dev.Dev.DequeueLaunch()
	if !ok || got != l1 {
		t.Fatalf("DequeueLaunch = %v, %v; want %v, true", got, ok, l1)
	}
	got, ok = dev.Dev.DequeueLaunch()
	if !ok || got != l2 {
		t.Fatalf("DequeueLaunch = %v, %v; want %v, true", got, ok, l2)
	}
	if _, ok := dev.Dev.DequeueLaunch(); ok {
		t.Fatal("expected launch queue to be empty")
	}
}

func TestDeviceStreamPendingKernelQueries(t *testing.T) {
	g := graph.New()
	dev := NewEventStream(g, 0, "gpu0", Device)

	enter, _ := dev.AddNode(100, graph.Enter, graph.Descriptor{Function: graph.FuncOffloadKernel})
	leave, _ := dev.AddNode(200, graph.Leave, graph.Descriptor{Function: graph.FuncOffloadKernel})
	dev.Dev.AddPendingKernel(enter, leave, 100, 200, graph.NoNode)

	span, ok := dev.Dev.LastPendingBefore(250)
	if !ok || span.EndTime != 200 {
		t.Fatalf("LastPendingBefore(250) = %v, %v", span, ok)
	}
	if _, ok := dev.Dev.LastPendingBefore(150); ok {
		t.Fatal("expected no pending kernel ending before 150")
	}

	overlap := dev.Dev.OverlappingPending(150, 300)
	if len(overlap) != 1 {
		t.Fatalf("OverlappingPending = %d spans, want 1", len(overlap))
	}

	dev.Dev.ClearPending()
	if len(dev.Dev.PendingKernels()) != 0 {
		t.Fatal("expected pending kernels to be cleared")
	}
}
