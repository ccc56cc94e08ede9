package netsim

import (
	"math/rand"
	"testing"
)

func TestLinkPropagationDelay(t *testing.T) {
	trace := NewConstantTrace(10, 100, 50, 0, 1000)
	link := NewDataLink(trace, newLossSource(rand.New(rand.NewSource(1))), nil, nil)

	pkt := NewPacket(DataPkt, MSS)
	link.Push(pkt)
	link.Tick(1)

	if got := link.Pull(1); got != nil {
		t.Fatalf("expected no packet visible before propagation delay elapses, got %v", got)
	}
	// 1ms queueing (dequeued at t=1) plus 50ms propagation.
	if got := link.Pull(51); got == nil {
		t.Fatal("expected the packet to be visible once queueing plus propagation delay elapses")
	}
}

func TestLinkQueueCapacity(t *testing.T) {
	trace := NewConstantTrace(10, 8, 0, 0, 1) // 1 packet of headroom
	link := NewDataLink(trace, newLossSource(rand.New(rand.NewSource(1))), nil, nil)

	for i := 0; i < 5; i++ {
		link.Push(NewPacket(DataPkt, MSS))
	}
	if got := link.QueueSizeBytes(); got > link.QueueCapBytes() {
		t.Fatalf("queue occupancy %d exceeds capacity %d", got, link.QueueCapBytes())
	}
}

type lossCounter struct {
	lost int
}

func (c *lossCounter) OnPktLost(pkt *Packet) { c.lost++ }

func TestLinkRandomLossNotifiesCC(t *testing.T) {
	trace := NewConstantTrace(10, 100, 0, 1, 1000) // loss rate 1: always drop
	counter := &lossCounter{}
	link := NewDataLink(trace, newLossSource(rand.New(rand.NewSource(1))), counter, nil)

	link.Push(NewPacket(DataPkt, MSS))
	if counter.lost != 1 {
		t.Fatalf("expected the loss notifier to fire once, got %d", counter.lost)
	}
	if got := link.QueueSizeBytes(); got != 0 {
		t.Fatalf("expected a dropped packet to never enter the queue, got %d bytes queued", got)
	}
}

func TestAckLinkHasNoQueueOrLoss(t *testing.T) {
	link := NewAckLink(30, nil)
	link.Push(NewPacket(AckPkt, 80))
	link.Tick(1)
	if got := link.Pull(1); got != nil {
		t.Fatal("expected no packet visible before propagation delay elapses")
	}
	if got := link.Pull(30); got == nil {
		t.Fatal("expected the ACK to be visible once propagation delay elapses")
	}
}
