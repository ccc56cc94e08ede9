package netsim

import "testing"

func newTestRateAllocator(pacingRateBps float64) *RateAllocator {
	cfg := DefaultSimConfig()
	cc := NewNoCC(pacingRateBps)
	trace := NewConstantTrace(10, 10, 20, 0, 1000)
	dataLink := NewDataLink(trace, newLossSource(nil), cc, nil)
	ackLink := NewAckLink(trace.MinDelayMs, nil)
	h := NewHost(0, cfg, dataLink, ackLink, cc, NewAuroraRtxManager(), NewFileSender(cfg.MSS), nil)
	h.Pacer().Tick(cfg.PacingRateUpdateStepMs)
	return NewRateAllocator(cfg, h.Pacer(), h.RtxMngr())
}

func smallLookupTable() *LookupTable {
	return &LookupTable{
		nFrames: 2,
		rows: []lookupRow{
			{frameID: 0, sizeB: 250, modelID: 1, loss: 0.0, ssim: 0.95},
			{frameID: 0, sizeB: 250, modelID: 1, loss: 0.1, ssim: 0.80},
			{frameID: 0, sizeB: 250, modelID: 1, loss: 0.2, ssim: 0.60},
			{frameID: 0, sizeB: 50, modelID: 2, loss: 0.0, ssim: 0.70},
			{frameID: 1, sizeB: 250, modelID: 1, loss: 0.0, ssim: 0.95},
		},
	}
}

func TestEncoderPacketizesFrameAndRespectsMinPktsPerFrame(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.MSS = 100
	cfg.MinPktsPerFrame = 5

	enc := NewEncoder(cfg, smallLookupTable(), newTestRateAllocator(1000000))
	enc.RegisterHost(nil)
	enc.frameID = -1 // Tick's modulo bump brings it to 0

	enc.Tick(40)

	if got := enc.lastRecord.FrameSizeByte; got != 250 {
		t.Fatalf("expected the 250-byte row to be picked, got %d", got)
	}
	if got := enc.lastRecord.NPkts; got != cfg.MinPktsPerFrame {
		t.Fatalf("expected NPkts to be floored to MinPktsPerFrame=%d, got %d", cfg.MinPktsPerFrame, got)
	}

	total := 0
	for enc.HasData() {
		size, data := enc.GetPkt()
		if data.Padding {
			continue
		}
		total += size
	}
	if total != 250 {
		t.Fatalf("expected packetized non-padding bytes to sum to the frame size, got %d", total)
	}
}

func TestEncoderEmitsPaddingWhenBudgetExceedsFrame(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.MSS = 1500
	cfg.MinPktsPerFrame = 1

	// A huge pacing rate means a huge per-frame budget; the 250-byte
	// frame from smallLookupTable leaves a large surplus to pad.
	enc := NewEncoder(cfg, smallLookupTable(), newTestRateAllocator(2000000))
	enc.RegisterHost(nil)
	enc.frameID = -1
	enc.Tick(40)

	if enc.lastRecord.PaddingBytes <= 0 {
		t.Fatal("expected a positive padding size when the bitrate budget exceeds the frame size")
	}

	sawPadding := false
	for enc.HasData() {
		_, data := enc.GetPkt()
		if data.Padding {
			sawPadding = true
		}
	}
	if !sawPadding {
		t.Fatal("expected at least one padding packet in the queue")
	}
}

func TestDecoderWithholdsFrameUntilCoverageThreshold(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.MSS = 100
	dec := NewDecoder(cfg, smallLookupTable())

	var decoded *DecoderFrameRecord
	dec.SetOnFrame(func(rec DecoderFrameRecord) {
		r := rec
		decoded = &r
	})
	dec.RegisterHost(nil)

	// Below the 10% coverage floor: frame 1 is 250 bytes, deliver 10.
	pkt := NewPacket(DataPkt, 10)
	pkt.AppData = AppData{FrameID: 1, FrameSizeBytes: 250, ModelID: 1}
	pkt.TsSentMs, pkt.TsRcvdMs = 5, 10
	dec.DeliverPkt(10, pkt)
	dec.Tick(1000)
	if decoded != nil {
		t.Fatal("expected the frame to be withheld below the 10% coverage floor")
	}

	pkt2 := NewPacket(DataPkt, 240)
	pkt2.AppData = AppData{FrameID: 1, FrameSizeBytes: 250, ModelID: 1}
	pkt2.TsSentMs, pkt2.TsRcvdMs = 6, 11
	dec.DeliverPkt(11, pkt2)
	dec.Tick(1000)

	if decoded == nil {
		t.Fatal("expected the frame to decode once coverage crosses 10%")
	}
	if decoded.BytesReceived != 250 {
		t.Fatalf("expected all delivered bytes to be counted, got %d", decoded.BytesReceived)
	}
	if decoded.SSIM != 0.95 {
		t.Fatalf("expected a full-coverage frame to look up the zero-loss SSIM row, got %v", decoded.SSIM)
	}
}

func TestDecoderIgnoresPaddingPackets(t *testing.T) {
	cfg := DefaultSimConfig()
	dec := NewDecoder(cfg, smallLookupTable())
	dec.RegisterHost(nil)

	pad := NewPacket(DataPkt, 500)
	pad.AppData = AppData{FrameID: 1, Padding: true}
	dec.DeliverPkt(5, pad)

	if _, ok := dec.pending[1]; ok {
		t.Fatal("expected a padding packet to never create a pending frame entry")
	}
}
