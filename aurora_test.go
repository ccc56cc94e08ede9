package netsim

import (
	"math"
	"testing"
)

func TestPccAuroraReward(t *testing.T) {
	got := pccAuroraReward(100, 0.05, 0.01)
	want := 10*100 - 1000*0.05 - 2000*0.01
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAuroraSetRateClampsToConfiguredBounds(t *testing.T) {
	a := NewAurora(DefaultAuroraHistoryLen, nil, false, nil)
	h := newTestAuroraHost(a)
	_ = h

	a.setRate(auroraMaxRateBps * 10)
	if got := a.host.PacingRateBps(); got != auroraMaxRateBps {
		t.Fatalf("expected the rate to clamp to %v, got %v", auroraMaxRateBps, got)
	}

	a.setRate(auroraMinRateBps / 10)
	if got := a.host.PacingRateBps(); got != auroraMinRateBps {
		t.Fatalf("expected the rate to clamp to %v, got %v", auroraMinRateBps, got)
	}
}

func TestAuroraApplyRateDeltaDirection(t *testing.T) {
	a := NewAurora(DefaultAuroraHistoryLen, nil, false, nil)
	newTestAuroraHost(a)
	a.setRate(100000)

	a.applyRateDelta(0.1)
	if got := a.host.PacingRateBps(); got <= 100000 {
		t.Fatalf("a positive delta should increase the rate, got %v", got)
	}

	a.setRate(100000)
	a.applyRateDelta(-0.1)
	if got := a.host.PacingRateBps(); got >= 100000 {
		t.Fatalf("a negative delta should decrease the rate per rate/(1-delta), got %v", got)
	}
}

func TestAuroraOnMIFinishInvokesCallback(t *testing.T) {
	a := NewAurora(2, ZeroPolicy{}, false, nil)
	newTestAuroraHost(a)

	var calledEndTsMs int64 = -1
	a.SetOnMIFinish(func(endTsMs, durationMs int64, reward, rateBps float64) {
		calledEndTsMs = endTsMs
	})

	for ms := int64(1); ms <= 20; ms++ {
		pkt := NewPacket(DataPkt, MSS)
		pkt.ID = int(ms)
		pkt.TsSentMs = ms
		a.OnPktSent(pkt)
		ack := NewPacket(AckPkt, 80)
		ack.DataPktTsSentMs = ms
		ack.TsRcvdMs = ms + 1
		ack.AckedSizeBytes = MSS
		a.OnPktAcked(ms+1, ack)
		a.Tick(ms + 1)
	}

	if calledEndTsMs < 0 {
		t.Fatal("expected the monitor-interval callback to have fired at least once")
	}
	if math.IsNaN(a.Reward()) {
		t.Fatal("reward should never be NaN")
	}
}

// newTestAuroraHost wires a up a minimal [Host] around cc so unit
// tests can exercise Aurora's rate bookkeeping without a full
// [Simulator].
func newTestAuroraHost(cc CongestionControl) *Host {
	trace := NewConstantTrace(10, 10, 20, 0, 1000)
	dataLink := NewDataLink(trace, newLossSource(nil), cc, nil)
	ackLink := NewAckLink(trace.MinDelayMs, nil)
	return NewHost(0, DefaultSimConfig(), dataLink, ackLink, cc, NewAuroraRtxManager(), NewFileSender(MSS), nil)
}
