package netsim

//
// Congestion control capability set (spec.md §4.7-4.9, Design Notes
// "Dynamic CC dispatch"), grounded on
// _examples/original_source/src/simulator_new/cc/cc.py.
//

// CongestionControl is the capability set every controller exposes —
// a Go sum-type-by-interface standing in for the source's runtime
// CC selection.
type CongestionControl interface {
	Ticker
	RegisterHost(h *Host)
	OnPktToSend(pkt *Packet)
	OnPktSent(pkt *Packet)
	OnPktAcked(nowMs int64, pkt *Packet)
	OnPktRcvd(nowMs int64, pkt *Packet)
	OnPktLost(pkt *Packet)
	GetEstRateBps(nowMs, futureMs int64) float64
}

//
// NoCC
//

// NoCC paces at a fixed rate: GetEstRateBps returns the rate given to
// [NewNoCC], or an effectively unbounded rate when that is zero, in
// which case every other layer (pacer, queue) is the sole limiting
// factor. Used as a baseline/no-op controller.
type NoCC struct {
	host *Host
	rate float64
}

// NewNoCC constructs a [NoCC] pacing at rateBps (default: unbounded
// if zero).
func NewNoCC(rateBps float64) *NoCC {
	if rateBps <= 0 {
		rateBps = 1e12
	}
	return &NoCC{rate: rateBps}
}

func (c *NoCC) RegisterHost(h *Host)                  { c.host = h }
func (c *NoCC) OnPktToSend(pkt *Packet)                {}
func (c *NoCC) OnPktSent(pkt *Packet)                  {}
func (c *NoCC) OnPktAcked(nowMs int64, pkt *Packet)     {}
func (c *NoCC) OnPktRcvd(nowMs int64, pkt *Packet)      {}
func (c *NoCC) OnPktLost(pkt *Packet)                   {}
func (c *NoCC) Tick(nowMs int64)                        {}
func (c *NoCC) Reset()                                  {}
func (c *NoCC) GetEstRateBps(nowMs, futureMs int64) float64 {
	return c.rate
}

//
// OracleCC
//

// OracleCC sets its rate directly from the trace's instantaneous
// bandwidth — EXPANSION: spec.md names `oracle`/`oracle_no_predict`
// in the CLI surface but never defines them; this is the only sense
// in which a trace-instrumented controller can be called an oracle
// (SPEC_FULL.md §5).
type OracleCC struct {
	host    *Host
	trace   *Trace
	predict bool
	rttMs   int64
}

// NewOracleCC constructs an [OracleCC]. When predict is true the
// controller looks one RTT ahead of now, matching the "perfect
// information" reading the CLI flag implies; rttMs should reflect the
// trace's minimum one-way delay doubled, the best static RTT estimate
// available before the first ACK.
func NewOracleCC(trace *Trace, predict bool, rttMs int64) *OracleCC {
	return &OracleCC{trace: trace, predict: predict, rttMs: rttMs}
}

func (c *OracleCC) RegisterHost(h *Host)              { c.host = h }
func (c *OracleCC) OnPktToSend(pkt *Packet)            {}
func (c *OracleCC) OnPktSent(pkt *Packet)              {}
func (c *OracleCC) OnPktAcked(nowMs int64, pkt *Packet) {}
func (c *OracleCC) OnPktRcvd(nowMs int64, pkt *Packet)  {}
func (c *OracleCC) OnPktLost(pkt *Packet)               {}
func (c *OracleCC) Tick(nowMs int64)                    {}
func (c *OracleCC) Reset()                              {}

func (c *OracleCC) GetEstRateBps(nowMs, futureMs int64) float64 {
	tSec := float64(nowMs) / 1000
	if c.predict {
		tSec += float64(c.rttMs) / 1000
	}
	return c.trace.BandwidthAtMbps(tSec) * 1e6 / BitsPerByte
}
