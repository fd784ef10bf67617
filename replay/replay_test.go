package replay

import (
	"context"
	"testing"
)

func TestLocalCommunicatorSendRecv(t *testing.T) {
	comms := NewLocalCommunicators(2)
	ctx := context.Background()

	buf := Buffer{100, 140, 1, 2, 0}.WithOpKind(OpSend)
	if err := comms[0].Send(ctx, 1, ReplayTag, buf); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := comms[1].Recv(ctx, 0, ReplayTag)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got != buf {
		t.Errorf("Recv = %v, want %v", got, buf)
	}
	if got.OpKindSlot() != OpSend {
		t.Errorf("OpKindSlot = %v, want OpSend", got.OpKindSlot())
	}
}

func TestLocalCommunicatorTagsDontCrossTalk(t *testing.T) {
	comms := NewLocalCommunicators(2)
	ctx := context.Background()

	fwd := Buffer{1, 2, 3, 4, uint64(OpSend)}
	rev := Buffer{9, 8, 7, 6, uint64(OpRecv)}
	if err := comms[0].Send(ctx, 1, ReplayTag, fwd); err != nil {
		t.Fatal(err)
	}
	if err := comms[1].Send(ctx, 0, ReverseReplayTag, rev); err != nil {
		t.Fatal(err)
	}

	got, err := comms[1].Recv(ctx, 0, ReplayTag)
	if err != nil || got != fwd {
		t.Errorf("Recv(ReplayTag) = %v, %v; want %v", got, err, fwd)
	}
	got, err = comms[0].Recv(ctx, 1, ReverseReplayTag)
	if err != nil || got != rev {
		t.Errorf("Recv(ReverseReplayTag) = %v, %v; want %v", got, err, rev)
	}
}

func TestLocalCommunicatorOutOfRange(t *testing.T) {
	comms := NewLocalCommunicators(1)
	if err := comms[0].Send(context.Background(), 5, ReplayTag, Buffer{}); err == nil {
		t.Error("Send to out-of-range rank should fail")
	}
}

func TestAllreduceSum(t *testing.T) {
	const n = 4
	comms := NewLocalCommunicators(n)
	results := make([]uint64, n)
	errs := make(chan error, n)
	for i, c := range comms {
		i, c := i, c
		go func() {
			v, err := c.Allreduce(context.Background(), uint64(i+1), ReduceSum)
			results[i] = v
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Allreduce: %v", err)
		}
	}
	for i, v := range results {
		if v != 10 { // 1+2+3+4
			t.Errorf("rank %d result = %d, want 10", i, v)
		}
	}
}

func TestAllreduceMax(t *testing.T) {
	const n = 3
	comms := NewLocalCommunicators(n)
	results := make([]uint64, n)
	errs := make(chan error, n)
	values := []uint64{5, 40, 12}
	for i, c := range comms {
		i, c := i, c
		go func() {
			v, err := c.Allreduce(context.Background(), values[i], ReduceMax)
			results[i] = v
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Allreduce: %v", err)
		}
	}
	for i, v := range results {
		if v != 40 {
			t.Errorf("rank %d result = %d, want 40", i, v)
		}
	}
}

func TestRunRanksPropagatesError(t *testing.T) {
	comms := NewLocalCommunicators(3)
	err := RunRanks(context.Background(), comms, func(ctx context.Context, c Communicator) error {
		if c.Rank() == 1 {
			return errBoom
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}

var errBoom = context.DeadlineExceeded
