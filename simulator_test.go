package netsim

import "testing"

func TestSimulatorFileTransferProducesRTTSamples(t *testing.T) {
	trace := NewConstantTrace(2, 10, 20, 0, 200)
	recorder, err := NewStatsRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStatsRecorder: %v", err)
	}
	defer recorder.Close()

	sim, err := NewSimulator(SimulatorOptions{
		Trace:    trace,
		CC:       CCAurora,
		App:      AppFileTransfer,
		Seed:     7,
		Recorder: recorder,
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	sim.Run(trace.DurationSec())

	summary, err := recorder.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.RTTMeanMs <= 0 {
		t.Fatalf("expected a positive mean RTT over a 2s file transfer, got %v", summary.RTTMeanMs)
	}
	if summary.RTTMeanMs < float64(trace.MinDelayMs) {
		t.Fatalf("mean RTT %v should be at least the link's minimum one-way delay %v", summary.RTTMeanMs, trace.MinDelayMs)
	}
}

func TestSimulatorResetReturnsToInitialState(t *testing.T) {
	trace := NewConstantTrace(1, 10, 10, 0, 100)
	sim, err := NewSimulator(SimulatorOptions{
		Trace: trace,
		CC:    CCBBR,
		App:   AppFileTransfer,
		Seed:  1,
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}

	sim.Run(trace.DurationSec())
	if sim.Sender().PacingRateBps() <= 0 {
		t.Fatal("expected a positive pacing rate after running the simulation")
	}

	sim.Reset()
	if got := sim.Sender().Pacer().PacingRateBps(); got != 0 {
		t.Fatalf("expected Reset to clear the pacer's rate, got %v", got)
	}
}

func TestSimulatorVideoStreamingDecodesFrames(t *testing.T) {
	trace := NewConstantTrace(2, 5, 20, 0, 200)
	table := smallLookupTable()

	var frames int
	recorder, err := NewStatsRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStatsRecorder: %v", err)
	}
	defer recorder.Close()

	sim, err := NewSimulator(SimulatorOptions{
		Trace:       trace,
		CC:          CCGCC,
		App:         AppVideoStreaming,
		Seed:        3,
		LookupTable: table,
		Recorder:    recorder,
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}

	if dec, ok := sim.Receiver().App().(*Decoder); ok {
		onFrame := dec.onFrame
		dec.SetOnFrame(func(rec DecoderFrameRecord) {
			frames++
			if onFrame != nil {
				onFrame(rec)
			}
		})
	} else {
		t.Fatal("expected the receiver's application to be a *Decoder")
	}

	sim.Run(trace.DurationSec())

	if frames == 0 {
		t.Fatal("expected at least one frame to decode over a 2s video streaming run")
	}
}

func TestSimulatorRejectsVideoStreamingWithoutLookupTable(t *testing.T) {
	trace := NewConstantTrace(1, 10, 10, 0, 100)
	_, err := NewSimulator(SimulatorOptions{
		Trace: trace,
		CC:    CCGCC,
		App:   AppVideoStreaming,
		Seed:  1,
	})
	if err == nil {
		t.Fatal("expected an error when video streaming is requested without a lookup table")
	}
}
