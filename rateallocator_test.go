package netsim

import "testing"

func TestRateAllocatorSubtractsPendingAndQueuedBytes(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.PacingRateUpdateStepMs = 100

	cc := NewNoCC(80000) // 80,000 B/s * 0.1s step = 8,000 B budget
	trace := NewConstantTrace(10, 10, 20, 0, 1000)
	dataLink := NewDataLink(trace, newLossSource(nil), cc, nil)
	ackLink := NewAckLink(trace.MinDelayMs, nil)
	h := NewHost(0, cfg, dataLink, ackLink, cc, NewAuroraRtxManager(), NewFileSender(cfg.MSS), nil)
	h.Pacer().Tick(cfg.PacingRateUpdateStepMs)

	alloc := NewRateAllocator(cfg, h.Pacer(), h.RtxMngr())

	got := alloc.TargetEncodeBitrateBps(0)
	want := 8000.0 * fps
	if got != want {
		t.Fatalf("with nothing pending or queued, got %v, want %v", got, want)
	}

	got = alloc.TargetEncodeBitrateBps(3000)
	want = 5000.0 * fps
	if got != want {
		t.Fatalf("after subtracting 3,000 queued bytes, got %v, want %v", got, want)
	}
}

func TestRateAllocatorNeverGoesNegative(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.PacingRateUpdateStepMs = 100

	cc := NewNoCC(1000) // tiny budget
	trace := NewConstantTrace(10, 10, 20, 0, 1000)
	dataLink := NewDataLink(trace, newLossSource(nil), cc, nil)
	ackLink := NewAckLink(trace.MinDelayMs, nil)
	h := NewHost(0, cfg, dataLink, ackLink, cc, NewAuroraRtxManager(), NewFileSender(cfg.MSS), nil)
	h.Pacer().Tick(cfg.PacingRateUpdateStepMs)

	alloc := NewRateAllocator(cfg, h.Pacer(), h.RtxMngr())

	if got := alloc.TargetEncodeBitrateBps(1000000); got != 0 {
		t.Fatalf("expected a clamp to 0 when queued bytes exceed the budget, got %v", got)
	}
}
