// Package replay implements the MPI replay layer (C6): rules that need
// cross-rank data reproduce the original application's point-to-point and
// collective communication pattern over a Communicator, using two tags --
// REPLAY (the original direction) and REVERSE_REPLAY (the back-channel
// carrying the partner's timestamps) -- so that, because the analyzer
// replays the same trace on the same rank count, a SendRule on rank A is
// guaranteed a matching RecvRule on rank B dispatched in the same trace
// order.
//
// No pure-Go MPI binding is available in the example corpus or the wider
// ecosystem (real bindings are cgo-wrapped against a system MPI runtime),
// so Communicator is implemented here by LocalCommunicator, an in-process
// stand-in that fans the simulated ranks out over goroutines and buffered
// channels. A production deployment can substitute a cgo-backed
// implementation of the same interface without touching the rule layer.
package replay

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tag distinguishes the replay direction of a message.
type Tag uint32

const (
	// ReplayTag carries a message in the original application's communication
	// direction.
	ReplayTag Tag = 0xCA51
	// ReverseReplayTag carries the back-channel reply with the receiving
	// rank's own timestamps.
	ReverseReplayTag Tag = 0xCA52
	// CriticalPathTag carries package cpath's reverse-replay handoffs: the
	// critical path's backward walk crossing from one rank to another at a
	// remote MPI edge, plus the all-ranks termination
	// broadcast once the walk reaches program start. Unlike ReplayTag/
	// ReverseReplayTag, a rank cannot know in advance which other rank will
	// hand the walk to it next, so CriticalPathTag messages are delivered
	// through RecvAny rather than a fixed (from, tag) mailbox.
	CriticalPathTag Tag = 0xCA53
)

// OpKind is a bitmask over the kinds of MPI operation a replay buffer's
// last slot can describe.
type OpKind uint64

const (
	OpSend OpKind = 1 << iota
	OpRecv
	OpIsend
	OpIrecv
	OpColl
	OpWait
)

// P2PBufSize is the fixed width of the replay buffer, :
// [0]=start_time, [1]=stop_time, [2]=enter_id, [3]=leave_id, [last]=op_kind.
const P2PBufSize = 5

// Buffer is the fixed-width unsigned-64 array exchanged between ranks.
type Buffer [P2PBufSize]uint64

// SlotStartTime, SlotStopTime, SlotEnterID, and SlotLeaveID index into a
// Buffer's fixed slots.
const (
	SlotStartTime = 0
	SlotStopTime  = 1
	SlotEnterID   = 2
	SlotLeaveID   = 3
)

// OpKindSlot returns the op-kind bitmask carried in the buffer's last slot.
func (b Buffer) OpKindSlot() OpKind { return OpKind(b[P2PBufSize-1]) }

// WithOpKind returns a copy of b with its last slot set to k.
func (b Buffer) WithOpKind(k OpKind) Buffer {
	b[P2PBufSize-1] = uint64(k)
	return b
}

// ReduceOp selects an Allreduce combining function.
type ReduceOp uint8

const (
	// ReduceSum sums the contributed values.
	ReduceSum ReduceOp = iota
	// ReduceMax takes the largest contributed value.
	ReduceMax
	// ReduceMin takes the smallest contributed value.
	ReduceMin
)

// Communicator reproduces the fixed-size point-to-point and collective
// exchanges the MPI replay layer needs. A Communicator value is bound to
// one rank; Size() is the same across all ranks in a run.
type Communicator interface {
	Rank() int
	Size() int
	Send(ctx context.Context, to int, tag Tag, buf Buffer) error
	Recv(ctx context.Context, from int, tag Tag) (Buffer, error)
	// RecvAny blocks until a buffer tagged tag arrives from any rank and
	// returns its sender. Used for CriticalPathTag, where the receiving
	// rank cannot know the sender ahead of time.
	RecvAny(ctx context.Context, tag Tag) (from int, buf Buffer, err error)
	// Allreduce combines each rank's value with op and returns the combined
	// result identically on every rank, as a distributed reduction barrier.
	Allreduce(ctx context.Context, value uint64, op ReduceOp) (uint64, error)
}

type mailboxKey struct {
	from, to int
	tag      Tag
}

type anyMailboxKey struct {
	to  int
	tag Tag
}

type anyMessage struct {
	from int
	buf  Buffer
}

// hub is the shared state backing a set of in-process LocalCommunicators.
type hub struct {
	size int

	mu        sync.Mutex
	mailboxes map[mailboxKey]chan Buffer
	anyBoxes  map[anyMailboxKey]chan anyMessage

	arMu     sync.Mutex
	arValues []uint64
	arCount  int
	arResult uint64
	arDone   chan struct{}
}

func newHub(size int) *hub {
	return &hub{
		size:      size,
		mailboxes: make(map[mailboxKey]chan Buffer),
		anyBoxes:  make(map[anyMailboxKey]chan anyMessage),
	}
}

func (h *hub) mailbox(key mailboxKey) chan Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.mailboxes[key]
	if !ok {
		ch = make(chan Buffer, 64)
		h.mailboxes[key] = ch
	}
	return ch
}

func (h *hub) anyMailbox(key anyMailboxKey) chan anyMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.anyBoxes[key]
	if !ok {
		ch = make(chan anyMessage, 64)
		h.anyBoxes[key] = ch
	}
	return ch
}

func (h *hub) allreduce(rank int, value uint64, op ReduceOp) uint64 {
	h.arMu.Lock()
	if h.arValues == nil {
		h.arValues = make([]uint64, h.size)
		h.arDone = make(chan struct{})
	}
	h.arValues[rank] = value
	h.arCount++
	if h.arCount == h.size {
		result := reduce(h.arValues, op)
		h.arResult = result
		done := h.arDone
		h.arValues = nil
		h.arCount = 0
		h.arDone = nil
		h.arMu.Unlock()
		close(done)
		return result
	}
	done := h.arDone
	h.arMu.Unlock()
	<-done
	h.arMu.Lock()
	result := h.arResult
	h.arMu.Unlock()
	return result
}

func reduce(values []uint64, op ReduceOp) uint64 {
	if len(values) == 0 {
		return 0
	}
	result := values[0]
	for _, v := range values[1:] {
		switch op {
		case ReduceSum:
			result += v
		case ReduceMax:
			if v > result {
				result = v
			}
		case ReduceMin:
			if v < result {
				result = v
			}
		}
	}
	return result
}

// LocalCommunicator is an in-process Communicator backed by a shared hub of
// buffered channels, one per (sender, receiver, tag) mailbox.
type LocalCommunicator struct {
	rank int
	hub  *hub
}

// NewLocalCommunicators returns size LocalCommunicators sharing one hub, so
// that rank i's Send/Recv/Allreduce calls are visible to every other rank
// in the set.
func NewLocalCommunicators(size int) []Communicator {
	h := newHub(size)
	out := make([]Communicator, size)
	for i := 0; i < size; i++ {
		out[i] = &LocalCommunicator{rank: i, hub: h}
	}
	return out
}

// Rank returns this communicator's rank.
func (c *LocalCommunicator) Rank() int { return c.rank }

// Size returns the total number of ranks.
func (c *LocalCommunicator) Size() int { return c.hub.size }

// Send posts buf into the (c.rank, to, tag) mailbox, or -- for
// CriticalPathTag -- into to's any-source inbox, since CriticalPathTag is
// always received via RecvAny.
func (c *LocalCommunicator) Send(ctx context.Context, to int, tag Tag, buf Buffer) error {
	if to < 0 || to >= c.hub.size {
		return status.Errorf(codes.OutOfRange, "replay: rank %d out of range [0,%d)", to, c.hub.size)
	}
	if tag == CriticalPathTag {
		ch := c.hub.anyMailbox(anyMailboxKey{to: to, tag: tag})
		select {
		case ch <- anyMessage{from: c.rank, buf: buf}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := c.hub.mailbox(mailboxKey{from: c.rank, to: to, tag: tag})
	select {
	case ch <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks until a buffer addressed to c.rank from `from` on `tag`
// arrives.
func (c *LocalCommunicator) Recv(ctx context.Context, from int, tag Tag) (Buffer, error) {
	if from < 0 || from >= c.hub.size {
		return Buffer{}, status.Errorf(codes.OutOfRange, "replay: rank %d out of range [0,%d)", from, c.hub.size)
	}
	ch := c.hub.mailbox(mailboxKey{from: from, to: c.rank, tag: tag})
	select {
	case buf := <-ch:
		return buf, nil
	case <-ctx.Done():
		return Buffer{}, ctx.Err()
	}
}

// RecvAny blocks until a CriticalPathTag buffer addressed to c.rank arrives
// from any sender, returning the sender's rank alongside it.
func (c *LocalCommunicator) RecvAny(ctx context.Context, tag Tag) (int, Buffer, error) {
	ch := c.hub.anyMailbox(anyMailboxKey{to: c.rank, tag: tag})
	select {
	case msg := <-ch:
		return msg.from, msg.buf, nil
	case <-ctx.Done():
		return 0, Buffer{}, ctx.Err()
	}
}

// Allreduce blocks until every rank has contributed a value, then returns
// the combined result on every rank.
func (c *LocalCommunicator) Allreduce(ctx context.Context, value uint64, op ReduceOp) (uint64, error) {
	type result struct {
		v   uint64
		err error
	}
	done := make(chan result, 1)
	go func() {
		done <- result{v: c.hub.allreduce(c.rank, value, op)}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// RunRanks runs fn once per communicator concurrently, bounded by an
// errgroup, and returns the first error any rank returned (if any), with
// the others' goroutines still drained to completion. This is the harness
// production code and tests use to simulate a multi-rank analyzer run in
// one process.
func RunRanks(ctx context.Context, comms []Communicator, fn func(ctx context.Context, c Communicator) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			if err := fn(ctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
