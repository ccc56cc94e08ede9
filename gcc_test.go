package netsim

import "testing"

func newTestGCCHost(cc CongestionControl) *Host {
	trace := NewConstantTrace(10, 10, 20, 0, 1000)
	dataLink := NewDataLink(trace, newLossSource(nil), cc, nil)
	ackLink := NewAckLink(trace.MinDelayMs, nil)
	return NewHost(1, DefaultSimConfig(), ackLink, dataLink, cc, NewWebRTCRtxManager(), NewFileReceiver(), nil)
}

func TestGCCStableArrivalNeverOveruses(t *testing.T) {
	g := NewGCC()
	newTestGCCHost(g)

	var prevSent, prevRcvd int64
	for i := int64(1); i <= 10; i++ {
		sent := i * 40
		rcvd := sent + 10 // constant one-way delay, no growth
		if prevSent != 0 {
			g.OnFrameRcvd(rcvd, sent, rcvd, prevSent, prevRcvd)
		}
		prevSent, prevRcvd = sent, rcvd
	}

	if got := g.OveruseCount(); got != 0 {
		t.Fatalf("expected no overuse signal with a stable one-way delay, got %d", got)
	}
}

func TestGCCGrowingDelayTriggersOveruse(t *testing.T) {
	g := NewGCC()
	newTestGCCHost(g)

	var prevSent, prevRcvd int64
	for i := int64(1); i <= 40; i++ {
		sent := i * 40
		rcvd := sent + i*300 // one-way delay grows much faster than send spacing
		if prevSent != 0 {
			g.OnFrameRcvd(rcvd, sent, rcvd, prevSent, prevRcvd)
		}
		prevSent, prevRcvd = sent, rcvd
	}

	if got := g.OveruseCount(); got == 0 {
		t.Fatal("expected a growing one-way delay to eventually trip the overuse detector")
	}
}

func TestGCCOnPktRcvdRTCPUpdatesEstimate(t *testing.T) {
	g := NewGCC()
	newTestGCCHost(g)

	pkt := NewPacket(RTCPPkt, 40)
	pkt.TsRcvdMs = 100
	pkt.EstimatedRateBps = 500000
	pkt.LossFraction = 0

	// The REMB rate (500000) is above the loss-based rate, which a zero
	// loss fraction raises by 5% from its start value, so the lower
	// loss-based rate wins.
	g.OnPktRcvd(100, pkt)
	if got, want := g.GetEstRateBps(100, 100), gccStartRateBps*1.05; got != want {
		t.Fatalf("expected the estimate to be the lower of the REMB and loss-based rates (%v), got %v", want, got)
	}
}
