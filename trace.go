package netsim

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

//
// Trace describes the bottleneck link's time-varying characteristics
// (spec.md §3 "Trace"), grounded on
// _examples/original_source/src/simulator_new/link.py's Trace class and
// its get_avail_bits2send/get_bandwidth helpers.
//

// traceFile is the on-disk JSON shape loaded by [LoadTraceFile].
type traceFile struct {
	TimestampsSec    []float64 `json:"timestamps_sec"`
	BandwidthsMbps   []float64 `json:"bandwidths_mbps"`
	MinDelayMs       int64     `json:"min_delay_ms"`
	LossRate         float64   `json:"loss_rate"`
	QueueSizePackets int       `json:"queue_size"`
	DelayNoiseMs     float64   `json:"delay_noise_ms"`
}

// Trace is an ordered sequence of (timestamp, bandwidth) breakpoints
// together with the static link parameters that never change over the
// course of a run: one-way minimum delay, packet loss rate, queue
// capacity, and delay jitter.
type Trace struct {
	TimestampsSec    []float64
	BandwidthsMbps   []float64
	MinDelayMs       int64
	LossRate         float64
	QueueSizePackets int
	DelayNoiseMs     float64
}

// LoadTraceFile reads a trace from a JSON file of the shape spec.md
// §6 documents.
func LoadTraceFile(path string) (*Trace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netsim: loading trace: %w", err)
	}
	var tf traceFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("netsim: parsing trace %s: %w", path, err)
	}
	if len(tf.TimestampsSec) == 0 || len(tf.TimestampsSec) != len(tf.BandwidthsMbps) {
		return nil, fmt.Errorf("netsim: trace %s: timestamps/bandwidths length mismatch", path)
	}
	if !sort.Float64sAreSorted(tf.TimestampsSec) {
		return nil, fmt.Errorf("netsim: trace %s: timestamps_sec must be sorted", path)
	}
	return &Trace{
		TimestampsSec:    tf.TimestampsSec,
		BandwidthsMbps:   tf.BandwidthsMbps,
		MinDelayMs:       tf.MinDelayMs,
		LossRate:         tf.LossRate,
		QueueSizePackets: tf.QueueSizePackets,
		DelayNoiseMs:     tf.DelayNoiseMs,
	}, nil
}

// NewConstantTrace synthesizes a [Trace] with a single constant
// bandwidth for the whole run, used by tests that do not need a
// varying schedule.
func NewConstantTrace(durationSec, bandwidthMbps float64, minDelayMs int64, lossRate float64, queueSizePackets int) *Trace {
	return &Trace{
		TimestampsSec:    []float64{0, durationSec},
		BandwidthsMbps:   []float64{bandwidthMbps, bandwidthMbps},
		MinDelayMs:       minDelayMs,
		LossRate:         lossRate,
		QueueSizePackets: queueSizePackets,
	}
}

// DurationSec is the timestamp of the trace's last breakpoint.
func (t *Trace) DurationSec() float64 {
	if len(t.TimestampsSec) == 0 {
		return 0
	}
	return t.TimestampsSec[len(t.TimestampsSec)-1]
}

// BandwidthAtMbps returns the bandwidth in effect at time tSec,
// holding the last breakpoint's value for times past the end of the
// trace.
func (t *Trace) BandwidthAtMbps(tSec float64) float64 {
	idx := t.segmentIndex(tSec)
	return t.BandwidthsMbps[idx]
}

// segmentIndex finds the breakpoint in effect at tSec: the last index
// i such that TimestampsSec[i] <= tSec.
func (t *Trace) segmentIndex(tSec float64) int {
	i := sort.Search(len(t.TimestampsSec), func(i int) bool {
		return t.TimestampsSec[i] > tSec
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// BitsAvailable returns the number of bits the link budget accrues
// between t0Sec and t1Sec (t1Sec > t0Sec), integrating the piecewise
// constant bandwidth schedule across any breakpoints the interval
// straddles. Grounded on Trace.get_avail_bits2send in
// _examples/original_source/src/simulator_new/link.py.
func (t *Trace) BitsAvailable(t0Sec, t1Sec float64) float64 {
	if t1Sec <= t0Sec {
		return 0
	}
	var bits float64
	cur := t0Sec
	for cur < t1Sec {
		idx := t.segmentIndex(cur)
		segEnd := t1Sec
		if idx+1 < len(t.TimestampsSec) && t.TimestampsSec[idx+1] < segEnd {
			segEnd = t.TimestampsSec[idx+1]
		}
		bits += (segEnd - cur) * t.BandwidthsMbps[idx] * 1e6
		cur = segEnd
	}
	return bits
}
