package netsim

import "math"

//
// GCC (spec.md §4.8), grounded on
// _examples/original_source/src/simulator_new/cc/gcc/gcc.py. One GCC
// instance lives on each host: the sender side exercises the
// loss-based controller and the probe controller, the receiver side
// exercises the delay-based controller and frame-arrival gradient
// computation — matching the source, which reuses a single class for
// both roles depending on which packets that host happens to see.
//

const gccStartRateBps = 12500 * 3

// rrcState is the remote rate controller's three-state machine.
type rrcState int

const (
	rrcInc rrcState = iota
	rrcDec
	rrcHold
)

// bwUsageSignal is the overuse detector's three-state signal.
type bwUsageSignal int

const (
	bwNormal bwUsageSignal = iota
	bwOveruse
	bwUnderuse
)

// arrivalTimeFilter is GCC's adaptive Kalman filter over the
// inter-arrival delay gradient.
type arrivalTimeFilter struct {
	chi           float64
	q             float64
	z             float64
	mHat          float64
	varVHat       float64
	e             float64
	frameSentTsMs []int64
}

func newArrivalTimeFilter() *arrivalTimeFilter {
	return &arrivalTimeFilter{chi: 0.1, q: 1e-3, e: 0.1}
}

func (f *arrivalTimeFilter) addFrameSentTime(tMs int64) {
	f.frameSentTsMs = append(f.frameSentTsMs, tMs)
	if len(f.frameSentTsMs) > 5 {
		f.frameSentTsMs = f.frameSentTsMs[1:]
	}
}

// update runs one step of the filter given the raw delay gradient,
// returning the filtered estimate m̂.
func (f *arrivalTimeFilter) update(delayGradient float64) float64 {
	var fMax float64
	for i := 1; i < len(f.frameSentTsMs); i++ {
		dtMs := float64(f.frameSentTsMs[i] - f.frameSentTsMs[i-1])
		if dtMs <= 0 {
			continue
		}
		fi := 1 / (dtMs / 1000)
		if fi > fMax {
			fMax = fi
		}
	}
	if fMax == 0 {
		return f.mHat
	}
	alpha := math.Pow(1-f.chi, 25/(1000*fMax))

	f.z = delayGradient - f.mHat
	f.varVHat = math.Max(alpha*f.varVHat+(1-alpha)*f.z*f.z, 1)
	zNew := math.Min(f.z, 3*math.Sqrt(f.varVHat))
	k := (f.e + f.q) / (f.varVHat + (f.e + f.q))
	f.mHat += zNew * k
	f.e = (1 - k) * (f.e + f.q)
	return f.mHat
}

// remoteRateController owns A_r, the delay-based rate estimate.
type remoteRateController struct {
	state        rrcState
	estRateBps   float64
	updateTsMs   int64
}

func newRemoteRateController() *remoteRateController {
	return &remoteRateController{state: rrcInc, estRateBps: gccStartRateBps}
}

func (r *remoteRateController) updateState(signal bwUsageSignal) {
	switch r.state {
	case rrcDec:
		if signal != bwOveruse {
			r.state = rrcHold
		}
	case rrcHold:
		if signal == bwOveruse {
			r.state = rrcDec
		} else if signal == bwNormal {
			r.state = rrcInc
		}
	default: // rrcInc
		if signal == bwOveruse {
			r.state = rrcDec
		} else if signal == bwUnderuse {
			r.state = rrcHold
		}
	}
}

func (r *remoteRateController) updateRateBps(nowMs int64, rcvRateBps float64) float64 {
	switch r.state {
	case rrcInc:
		dtSec := float64(nowMs-r.updateTsMs) / 1000
		if dtSec > 1 {
			dtSec = 1
		}
		r.estRateBps = math.Min(math.Pow(1.05, dtSec)*r.estRateBps, 1.5*rcvRateBps)
	case rrcDec:
		r.estRateBps = math.Min(0.85*rcvRateBps, 1.5*rcvRateBps)
	case rrcHold:
		r.estRateBps = math.Min(r.estRateBps, 1.5*rcvRateBps)
	}
	r.updateTsMs = nowMs
	return r.estRateBps
}

func (r *remoteRateController) GetRateBps() float64 {
	return r.estRateBps
}

func (r *remoteRateController) SetRateBps(nowMs int64, rateBps float64) {
	r.estRateBps = rateBps
	r.updateTsMs = nowMs
}

// overuseDetector is the three-state FSM requiring 10ms of
// persistence before declaring overuse.
type overuseDetector struct {
	signal           bwUsageSignal
	newSignal        bwUsageSignal
	tsOveruseStartMs int64
}

func (d *overuseDetector) generateSignal(nowMs int64, gradient, threshold float64) bwUsageSignal {
	var newSignal bwUsageSignal
	switch {
	case gradient > threshold:
		newSignal = bwOveruse
	case gradient < -threshold:
		newSignal = bwUnderuse
	default:
		newSignal = bwNormal
	}

	if newSignal == bwOveruse {
		if newSignal != d.signal {
			if newSignal != d.newSignal {
				d.newSignal = newSignal
				d.tsOveruseStartMs = nowMs
			} else if nowMs-d.tsOveruseStartMs >= 10 {
				d.signal = d.newSignal
			}
		}
	} else {
		d.newSignal = newSignal
		d.signal = newSignal
	}
	return d.signal
}

// delayBasedController runs on the receiving host: per-frame gradient
// computation, adaptive threshold, overuse FSM, remote rate
// controller, and REMB triggering.
type delayBasedController struct {
	host *Host

	pktBytesRcvd []int
	pktTsRcvdMs  []int64

	gamma            float64
	delayGradient    float64
	delayGradientHat float64

	rrc    *remoteRateController
	ou     *overuseDetector
	filter *arrivalTimeFilter

	rcvRateBps float64
}

func newDelayBasedController() *delayBasedController {
	return &delayBasedController{
		gamma:  5,
		rrc:    newRemoteRateController(),
		ou:     &overuseDetector{},
		filter: newArrivalTimeFilter(),
	}
}

func (d *delayBasedController) registerHost(h *Host) { d.host = h }

func (d *delayBasedController) reset() {
	*d = delayBasedController{host: d.host, gamma: 5, rrc: newRemoteRateController(), ou: &overuseDetector{}, filter: newArrivalTimeFilter()}
}

func (d *delayBasedController) onPktRcvd(nowMs int64, pkt *Packet) {
	d.pktBytesRcvd = append(d.pktBytesRcvd, pkt.SizeBytes)
	d.pktTsRcvdMs = append(d.pktTsRcvdMs, nowMs)
}

// onFrameRcvd runs the per-frame gradient/FSM/REMB pipeline, grounded
// on gcc.py's DelayBasedController.on_frame_rcvd.
func (d *delayBasedController) onFrameRcvd(nowMs int64, frameLastSentMs, frameLastRcvdMs, prevFrameLastSentMs, prevFrameLastRcvdMs int64) {
	i := 0
	for i < len(d.pktTsRcvdMs) && nowMs-d.pktTsRcvdMs[i] > 500 {
		i++
	}
	d.pktTsRcvdMs = d.pktTsRcvdMs[i:]
	d.pktBytesRcvd = d.pktBytesRcvd[i:]

	wndLenSec := 0.5
	if nowMs < 500 {
		wndLenSec = float64(nowMs) / 1000
	}
	var total int
	for _, b := range d.pktBytesRcvd {
		total += b
	}
	if wndLenSec > 0 {
		d.rcvRateBps = float64(total) / wndLenSec
	}

	d.filter.addFrameSentTime(frameLastSentMs)
	if frameLastRcvdMs == 0 || frameLastSentMs == 0 || prevFrameLastSentMs == 0 || prevFrameLastRcvdMs == 0 {
		return
	}

	d.delayGradient = float64((frameLastRcvdMs - prevFrameLastRcvdMs) - (frameLastSentMs - prevFrameLastSentMs))
	d.delayGradientHat = d.filter.update(d.delayGradient)

	const ku, kd = 0.01, 0.00018
	kGamma := kd
	if math.Abs(d.delayGradientHat) >= d.gamma {
		kGamma = ku
	}
	if math.Abs(d.delayGradientHat)-d.gamma <= 15 {
		d.gamma += float64(frameLastRcvdMs-prevFrameLastRcvdMs) * kGamma * (math.Abs(d.delayGradientHat) - d.gamma)
	}

	signal := d.ou.generateSignal(nowMs, d.delayGradientHat, d.gamma)
	d.rrc.updateState(signal)

	oldRate := d.rrc.GetRateBps()
	newRate := d.rrc.updateRateBps(nowMs, d.rcvRateBps)
	if newRate > 0 && d.host != nil && newRate < 0.97*oldRate {
		d.host.SendRTCPReport(nowMs, newRate)
	}
}

// lossBasedController runs on the sending host, adjusting the rate
// from RTCP-reported loss fraction.
type lossBasedController struct {
	estimatedRateBps float64
}

func newLossBasedController() *lossBasedController {
	return &lossBasedController{estimatedRateBps: gccStartRateBps}
}

func (l *lossBasedController) onRTCPReport(lossFraction float64) float64 {
	switch {
	case lossFraction > 0.10:
		l.estimatedRateBps *= 1 - 0.5*lossFraction
	case lossFraction < 0.02:
		l.estimatedRateBps *= 1.05
	}
	return l.estimatedRateBps
}

func (l *lossBasedController) reset() {
	l.estimatedRateBps = gccStartRateBps
}

// GCC implements [CongestionControl] per spec.md §4.8.
type GCC struct {
	host *Host

	lossBased  *lossBasedController
	delayBased *delayBasedController
	probeCtlr  *probeController

	estRateBps float64
	overuseCount int
}

// NewGCC constructs a [GCC] controller.
func NewGCC() *GCC {
	g := &GCC{
		lossBased:  newLossBasedController(),
		delayBased: newDelayBasedController(),
		estRateBps: gccStartRateBps,
	}
	g.probeCtlr = newProbeController(g.estRateBps)
	if g.probeCtlr.IsEnabled() {
		g.estRateBps = g.probeCtlr.GetProbeRateBps()
	}
	return g
}

func (g *GCC) RegisterHost(h *Host) {
	g.host = h
	g.delayBased.registerHost(h)
}

func (g *GCC) Reset() {
	g.delayBased.reset()
	g.lossBased.reset()
	g.estRateBps = gccStartRateBps
	g.probeCtlr = newProbeController(g.estRateBps)
	if g.probeCtlr.IsEnabled() {
		g.estRateBps = g.probeCtlr.GetProbeRateBps()
	}
	g.overuseCount = 0
}

func (g *GCC) GetEstRateBps(nowMs, futureMs int64) float64 {
	return g.estRateBps
}

func (g *GCC) OnPktToSend(pkt *Packet) {
	if g.probeCtlr.IsEnabled() {
		g.probeCtlr.MarkPkt(pkt)
	}
}

func (g *GCC) OnPktSent(pkt *Packet) {
	switch {
	case pkt.IsRTPPkt():
		if g.probeCtlr.IsEnabled() {
			g.probeCtlr.OnPktSent(pkt.TsSentMs)
		}
	case pkt.IsRTCPPkt() && !pkt.ProbeInfo.Empty():
		rate := estimateProbedRateBps(pkt.ProbeInfo)
		g.delayBased.rrc.SetRateBps(pkt.TsSentMs, rate)
	}
}

func (g *GCC) OnPktLost(pkt *Packet) {}

// OnPktAcked is unused: RTP transport carries feedback over RTCP, not
// per-packet ACKs, so this satisfies [CongestionControl] as a no-op.
func (g *GCC) OnPktAcked(nowMs int64, pkt *Packet) {}

// OnPktRcvd dispatches an RTP arrival to the delay-based controller
// or an RTCP arrival to the loss-based controller, per gcc.py's
// on_pkt_rcvd.
func (g *GCC) OnPktRcvd(nowMs int64, pkt *Packet) {
	switch {
	case pkt.IsRTPPkt():
		g.delayBased.onPktRcvd(pkt.TsRcvdMs, pkt)
	case pkt.IsRTCPPkt():
		if !pkt.ProbeInfo.Empty() {
			g.lossBased.estimatedRateBps = estimateProbedRateBps(pkt.ProbeInfo)
		}
		g.lossBased.onRTCPReport(pkt.LossFraction)
		if !pkt.ProbeInfo.Empty() {
			g.estRateBps = math.Min(estimateProbedRateBps(pkt.ProbeInfo), g.lossBased.estimatedRateBps)
		} else if pkt.EstimatedRateBps > 0 {
			g.estRateBps = math.Min(pkt.EstimatedRateBps, g.lossBased.estimatedRateBps)
		} else {
			// no REMB on this report (rate <= 0): loss-based rate only
			g.estRateBps = g.lossBased.estimatedRateBps
		}
		g.lossBased.estimatedRateBps = g.estRateBps
	}
}

// OnFrameRcvd feeds the decoder's per-frame timing into the
// delay-based controller, called by the receiving [Host].
func (g *GCC) OnFrameRcvd(nowMs int64, frameLastSentMs, frameLastRcvdMs, prevFrameLastSentMs, prevFrameLastRcvdMs int64) {
	before := g.delayBased.ou.signal
	g.delayBased.onFrameRcvd(nowMs, frameLastSentMs, frameLastRcvdMs, prevFrameLastSentMs, prevFrameLastRcvdMs)
	if before != bwOveruse && g.delayBased.ou.signal == bwOveruse {
		g.overuseCount++
	}
}

func (g *GCC) Tick(nowMs int64) {
	g.probeCtlr.Tick(nowMs)
	if g.probeCtlr.IsEnabled() {
		g.estRateBps = g.probeCtlr.GetProbeRateBps()
	}
}

// OveruseCount reports how many times the overuse FSM transitioned
// into OVERUSE, used by tests asserting spec.md §8 scenario 1.
func (g *GCC) OveruseCount() int {
	return g.overuseCount
}

// RemoteRateBps exposes the delay-based controller's current estimate,
// used by [RTPHost] to build REMB reports.
func (g *GCC) RemoteRateBps() float64 {
	return g.delayBased.rrc.GetRateBps()
}
