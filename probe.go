package netsim

//
// GCC probe controller (spec.md §4.8 "Probe controller"), grounded on
// _examples/original_source/src/simulator_new/probe.py.
//

const (
	probeMinPktsSent     = 5
	probeMinDurationMs   = 15
	probePeriodMs        = 50000
)

// estimateProbedRateBps derives the probed capacity as
// min(send_rate, receive_rate) over the cluster's span. The source's
// rcv_size_byte subtracted `first_pkt_rcvd_ts_ms` (a timestamp) from
// `tot_size_byte`, a copy-paste bug; this uses FirstPktRcvdSizeByte,
// the field the computation clearly intends (Design Notes decision).
func estimateProbedRateBps(p *ProbeInfo) float64 {
	if p == nil {
		return 0
	}
	sendIntervalMs := float64(p.LastPktSentTsMs - p.FirstPktSentTsMs)
	sendSizeByte := float64(p.TotSizeByte - p.LastPktSentSizeByte)
	var sendRateBps float64
	if sendIntervalMs > 0 {
		sendRateBps = sendSizeByte * 1000 / sendIntervalMs
	}

	rcvIntervalMs := float64(p.LastPktRcvdTsMs - p.FirstPktRcvdTsMs)
	rcvSizeByte := float64(p.TotSizeByte - p.FirstPktRcvdSizeByte)
	var rcvRateBps float64
	if rcvIntervalMs > 0 {
		rcvRateBps = rcvSizeByte * 1000 / rcvIntervalMs
	}

	if sendRateBps < rcvRateBps {
		return sendRateBps
	}
	return rcvRateBps
}

// probeController drives GCC's startup probing bursts: two clusters
// at 3x then 6x the initial pacing rate.
type probeController struct {
	initPacingRateBps float64
	probeRateBps      float64
	initialProbeRound int
	probeStartTsMs    int64
	enabled           bool
	probePktCnt       int
	probeClusterID    int
}

// newProbeController constructs a [probeController] seeded from the
// host's initial pacing rate.
func newProbeController(initPacingRateBps float64) *probeController {
	return &probeController{
		initPacingRateBps: initPacingRateBps,
		probeRateBps:       initPacingRateBps * 3,
		enabled:            true,
	}
}

func (p *probeController) IsEnabled() bool {
	return p.enabled
}

func (p *probeController) MarkPkt(pkt *Packet) {
	pkt.AppData.Probe = true
	pkt.AppData.ProbeClusterID = p.probeClusterID
}

func (p *probeController) GetProbeRateBps() float64 {
	return p.probeRateBps
}

func (p *probeController) OnPktSent(nowMs int64) {
	p.probePktCnt++
	p.updateState(nowMs)
}

func (p *probeController) Tick(nowMs int64) {
	p.updateState(nowMs)
}

func (p *probeController) updateState(nowMs int64) {
	if p.enabled {
		p.enabled = !(nowMs-p.probeStartTsMs > probeMinDurationMs && p.probePktCnt > probeMinPktsSent)
	}
	if !p.enabled {
		p.probeClusterID++
		p.initialProbeRound++
		p.probePktCnt = 0
		if p.initialProbeRound < 2 {
			p.probeRateBps = p.initPacingRateBps * 6
			p.probeStartTsMs = nowMs
			p.enabled = true
		}
	}
}
