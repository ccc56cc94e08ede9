package netsim

import "testing"

func TestTraceBandwidthAtMbps(t *testing.T) {
	tr := &Trace{
		TimestampsSec:  []float64{0, 5, 10},
		BandwidthsMbps: []float64{10, 20, 5},
	}

	type testcase struct {
		name    string
		tSec    float64
		wantBps float64
	}

	var testcases = []testcase{
		{name: "at the first breakpoint", tSec: 0, wantBps: 10},
		{name: "just before the second breakpoint", tSec: 4.999, wantBps: 10},
		{name: "at the second breakpoint", tSec: 5, wantBps: 20},
		{name: "past the last breakpoint", tSec: 100, wantBps: 5},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			got := tr.BandwidthAtMbps(tc.tSec)
			if got != tc.wantBps {
				t.Fatalf("got %v, want %v", got, tc.wantBps)
			}
		})
	}
}

func TestTraceBitsAvailable(t *testing.T) {
	tr := &Trace{
		TimestampsSec:  []float64{0, 1, 2},
		BandwidthsMbps: []float64{1, 2, 1},
	}

	// one second at 1 Mbps plus one second at 2 Mbps
	got := tr.BitsAvailable(0, 2)
	want := 1e6 + 2e6
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTraceBitsAvailableEmptyInterval(t *testing.T) {
	tr := NewConstantTrace(10, 5, 20, 0, 100)
	if got := tr.BitsAvailable(3, 3); got != 0 {
		t.Fatalf("expected 0 bits for an empty interval, got %v", got)
	}
	if got := tr.BitsAvailable(3, 1); got != 0 {
		t.Fatalf("expected 0 bits for a backwards interval, got %v", got)
	}
}

func TestTraceDurationSec(t *testing.T) {
	tr := NewConstantTrace(12.5, 5, 20, 0, 100)
	if got := tr.DurationSec(); got != 12.5 {
		t.Fatalf("got %v, want %v", got, 12.5)
	}
}
