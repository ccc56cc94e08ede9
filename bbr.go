package netsim

import (
	"math"
	"math/rand"
)

//
// BBRv1 (spec.md §4.7), grounded on
// _examples/original_source/src/simulator_new/cc/bbr/bbr_v1.py and
// tcp_host.py's ConnectionState/RateSample/srtt bookkeeping, folded
// into the controller since Go has no multiple-inheritance mixin to
// split it across a host base class the way the source does.
//

// bbrMode is one of BBRv1's four phases.
type bbrMode int

const (
	bbrStartup bbrMode = iota
	bbrDrain
	bbrProbeBW
	bbrProbeRTT
)

func (m bbrMode) String() string {
	switch m {
	case bbrStartup:
		return "STARTUP"
	case bbrDrain:
		return "DRAIN"
	case bbrProbeBW:
		return "PROBE_BW"
	case bbrProbeRTT:
		return "PROBE_RTT"
	default:
		return "UNKNOWN"
	}
}

const (
	bbrHighGain          = 2.89
	bbrBtlBwFilterLen    = 10
	bbrRTPropFilterLenMs = 10 * 1000
	bbrProbeRTTDurMs     = 200
	bbrMinPipeCwndByte   = 4 * MSS
	bbrGainCycleLen      = 8
)

var bbrPacingGainCycle = [bbrGainCycleLen]float64{5.0 / 4, 3.0 / 4, 1, 1, 1, 1, 1, 1}

// bbrBtlBwFilter is a windowed max filter over delivery-rate samples
// keyed by packet-timed round number.
type bbrBtlBwFilter struct {
	filterLen int
	cache     map[int]float64
}

func newBBRBtlBwFilter(filterLen int) *bbrBtlBwFilter {
	return &bbrBtlBwFilter{filterLen: filterLen, cache: make(map[int]float64)}
}

func (f *bbrBtlBwFilter) update(deliveryRate float64, round int) {
	if deliveryRate > f.cache[round] {
		f.cache[round] = deliveryRate
	}
	if len(f.cache) > f.filterLen {
		minRound := round
		for r := range f.cache {
			if r < minRound {
				minRound = r
			}
		}
		delete(f.cache, minRound)
	}
}

func (f *bbrBtlBwFilter) btlBw() float64 {
	var max float64
	for _, v := range f.cache {
		if v > max {
			max = v
		}
	}
	return max
}

// bbrConnState is the delivery-rate bookkeeping in spec.md §3
// "Connection state & rate sample", owned here by the controller.
type bbrConnState struct {
	deliveredByte    int64
	deliveredTimeMs  int64
	firstSentTimeMs  int64
	appLimited       int64
}

// bbrRateSample is spec.md §3's per-ACK RateSample.
type bbrRateSample struct {
	deliveryRateBps     float64
	isAppLimited        bool
	intervalMs          float64
	deliveredByte       int64
	priorDeliveredByte  int64
	priorTimeMs         int64
	sendElapsedMs       int64
	ackElapsedMs        int64
	priorBytesInFlight  int64
	losses              int
}

// BBRv1 implements the IETF draft BBRv1 state machine (spec.md §4.7).
// It also owns the TCP-style connection bookkeeping (bytes in flight,
// cwnd, smoothed RTT) the source splits across TCPHost and
// TCPCongestionControl, since Go favors one controller owning its own
// state over a mixin hierarchy.
type BBRv1 struct {
	host   *Host
	prng   *rand.Rand
	logger Logger

	connState bbrConnState
	rs        bbrRateSample

	btlBwBps       float64
	btlBwFilter    *bbrBtlBwFilter

	nextSendTimeMs int64

	state      bbrMode
	pacingGain float64
	cwndGain   float64

	targetCwndByte int64
	cwndByte       int64
	bytesInFlight  int64

	sendQuantum int64

	rtPropMs       float64
	rtPropStampMs  int64
	rtPropExpired  bool

	probeRTTDoneStampMs int64
	probeRTTRoundDone   bool
	packetConservation  bool
	priorCwndByte       int64
	idleRestart         bool

	nextRoundDeliveredByte int64
	roundStart             bool
	roundCount             int

	filledPipe     bool
	fullBwBps      float64
	fullBwCount    int

	cycleStampMs int64
	cycleIndex   int

	inFastRecoveryMode bool

	rttMinMs float64
	srttMs   float64
	rttvarMs float64

	tsMs int64
}

// NewBBRv1 constructs a [BBRv1] controller. seed drives the
// PROBE_BW cycle-entry randomisation (spec.md §4.7).
func NewBBRv1(seed int64, logger Logger) *BBRv1 {
	if logger == nil {
		logger = DiscardLogger()
	}
	b := &BBRv1{
		prng:     rand.New(rand.NewSource(seed)),
		logger:   logger,
		cwndByte: TCPInitCwndByte,
	}
	b.initState()
	return b
}

func (b *BBRv1) RegisterHost(h *Host) {
	b.host = h
	b.initPacingRate()
}

func (b *BBRv1) Reset() {
	b.connState = bbrConnState{}
	b.rs = bbrRateSample{}
	b.btlBwBps = 0
	b.nextSendTimeMs = 0
	b.targetCwndByte = 0
	b.inFastRecoveryMode = false
	b.priorCwndByte = 0
	b.tsMs = 0
	b.bytesInFlight = 0
	b.cwndByte = TCPInitCwndByte
	b.rttMinMs = 0
	b.srttMs = 0
	b.rttvarMs = 0
	b.initState()
	b.initPacingRate()
}

func (b *BBRv1) initState() {
	b.btlBwFilter = newBBRBtlBwFilter(bbrBtlBwFilterLen)
	if b.srttMs > 0 {
		b.rtPropMs = b.srttMs
	} else {
		b.rtPropMs = math.Inf(1)
	}
	b.rtPropStampMs = 0
	b.rtPropExpired = false
	b.probeRTTDoneStampMs = 0
	b.probeRTTRoundDone = false
	b.packetConservation = false
	b.idleRestart = false
	b.nextRoundDeliveredByte = 0
	b.roundStart = false
	b.roundCount = 0
	b.filledPipe = false
	b.fullBwBps = 0
	b.fullBwCount = 0
	b.enterStartup()
}

func (b *BBRv1) initPacingRate() {
	if b.host == nil {
		return
	}
	var nominalBwBps float64
	if b.srttMs <= 0 {
		nominalBwBps = 1000 * float64(b.cwndByte)
	} else {
		nominalBwBps = 1000 * float64(b.cwndByte) / b.srttMs
	}
	b.host.SetPacingRateBps(b.pacingGain * nominalBwBps)
}

func (b *BBRv1) enterStartup() {
	b.state = bbrStartup
	b.pacingGain = bbrHighGain
	b.cwndGain = bbrHighGain
}

// CanSend reports whether the TCP-style window allows another send;
// combined with the pacer's own budget by [Host].
func (b *BBRv1) CanSend() bool {
	return b.bytesInFlight < b.cwndByte
}

func (b *BBRv1) OnPktToSend(pkt *Packet) {}

func (b *BBRv1) OnPktSent(pkt *Packet) {
	if b.bytesInFlight == 0 {
		b.connState.firstSentTimeMs = pkt.TsSentMs
		b.connState.deliveredTimeMs = pkt.TsSentMs
	}
	pkt.TsFirstSentMs = b.connState.firstSentTimeMs
	if pkt.TsFirstSentMs == 0 {
		pkt.TsFirstSentMs = pkt.TsSentMs
	}
	pkt.DeliveredTimeMs = b.connState.deliveredTimeMs
	pkt.DeliveredByte = b.connState.deliveredByte
	pkt.IsAppLimited = b.connState.appLimited != 0
	b.bytesInFlight += int64(pkt.SizeBytes)
}

// OnPktAcked updates TCP bookkeeping (srtt/rttvar/rto, bytes in
// flight) then feeds BBR's model, grounded on tcp_host.py's
// _on_pkt_acked plus bbr_v1.py's on_pkt_acked.
func (b *BBRv1) OnPktAcked(nowMs int64, ackPkt *Packet) {
	b.tsMs = nowMs
	b.bytesInFlight -= int64(ackPkt.AckedSizeBytes)
	if b.bytesInFlight < 0 {
		b.bytesInFlight = 0
	}
	rttMs := float64(ackPkt.RTTMs())
	if b.rttMinMs == 0 {
		b.rttMinMs = rttMs
	} else if rttMs < b.rttMinMs {
		b.rttMinMs = rttMs
	}
	if b.srttMs == 0 && b.rttvarMs == 0 {
		b.srttMs = rttMs
		b.rttvarMs = rttMs / 2
	} else {
		b.srttMs = (1-1.0/8)*b.srttMs + (1.0/8)*rttMs
		b.rttvarMs = (1-1.0/4)*b.rttvarMs + (1.0/4)*math.Abs(b.srttMs-rttMs)
	}

	dataPkt := ackPkt // the data pkt's delivery fields are carried on the ACK itself
	if b.generateRateSample(nowMs, dataPkt) {
		b.updateModelAndState(dataPkt)
	}
	b.updateControlParameters()
}

func (b *BBRv1) OnPktLost(pkt *Packet) {
	b.rs.losses++
}

// OnPktRcvd is unused: BBR observes feedback only through ACKs, so
// this satisfies [CongestionControl] as a no-op.
func (b *BBRv1) OnPktRcvd(nowMs int64, pkt *Packet) {}

func (b *BBRv1) Tick(nowMs int64) {
	b.tsMs = nowMs
}

func (b *BBRv1) GetEstRateBps(nowMs, futureMs int64) float64 {
	if b.host == nil {
		return 0
	}
	return b.host.PacingRateBps()
}

func (b *BBRv1) updateModelAndState(pkt *Packet) {
	b.updateBtlBw(pkt)
	b.checkCyclePhase()
	b.checkFullPipe()
	b.checkDrain()
	b.updateRTProp(pkt)
	b.checkProbeRTT()
}

func (b *BBRv1) updateControlParameters() {
	b.setPacingRate()
	b.setSendQuantum()
	b.setCwnd()
}

func (b *BBRv1) updateRound(pkt *Packet) {
	if pkt.DeliveredByte >= b.nextRoundDeliveredByte {
		b.nextRoundDeliveredByte = b.connState.deliveredByte
		b.roundCount++
		b.roundStart = true
	} else {
		b.roundStart = false
	}
}

func (b *BBRv1) updateBtlBw(pkt *Packet) {
	if b.rs.deliveryRateBps == 0 {
		return
	}
	b.updateRound(pkt)
	if b.rs.deliveryRateBps >= b.btlBwBps || !b.rs.isAppLimited {
		b.btlBwFilter.update(b.rs.deliveryRateBps, b.roundCount)
		b.btlBwBps = b.btlBwFilter.btlBw()
	}
}

func (b *BBRv1) checkCyclePhase() {
	if b.state == bbrProbeBW && b.isNextCyclePhase() {
		b.advanceCyclePhase()
	}
}

func (b *BBRv1) advanceCyclePhase() {
	b.cycleStampMs = b.tsMs
	b.cycleIndex = (b.cycleIndex + 1) % bbrGainCycleLen
	b.pacingGain = bbrPacingGainCycle[b.cycleIndex]
}

func (b *BBRv1) isNextCyclePhase() bool {
	isFullLength := float64(b.tsMs-b.cycleStampMs) > b.rtPropMs
	switch {
	case b.pacingGain == 1:
		return isFullLength
	case b.pacingGain > 1:
		return isFullLength && (b.rs.losses > 0 || float64(b.rs.priorBytesInFlight) >= b.inflightBytes(b.pacingGain))
	default:
		return isFullLength || float64(b.rs.priorBytesInFlight) <= b.inflightBytes(1)
	}
}

func (b *BBRv1) checkFullPipe() {
	if b.filledPipe || !b.roundStart || b.rs.isAppLimited {
		return
	}
	if b.btlBwBps >= b.fullBwBps*1.25 {
		b.fullBwBps = b.btlBwBps
		b.fullBwCount = 0
		return
	}
	b.fullBwCount++
	if b.fullBwCount >= 3 {
		b.filledPipe = true
	}
}

func (b *BBRv1) checkDrain() {
	if b.state == bbrStartup && b.filledPipe {
		b.enterDrain()
	}
	if b.state == bbrDrain && b.bytesInFlight <= int64(b.inflightBytes(1.0)) {
		b.enterProbeBW()
	}
}

func (b *BBRv1) updateRTProp(pkt *Packet) {
	b.rtPropExpired = b.tsMs > b.rtPropStampMs+bbrRTPropFilterLenMs
	rttMs := float64(pkt.RTTMs())
	if rttMs >= 0 && (rttMs <= b.rtPropMs || b.rtPropExpired) {
		b.rtPropMs = rttMs
		b.rtPropStampMs = b.tsMs
	}
}

func (b *BBRv1) checkProbeRTT() {
	if b.state != bbrProbeRTT && b.rtPropExpired && !b.idleRestart {
		b.enterProbeRTT()
		b.priorCwndByte = b.saveCwnd()
		b.probeRTTDoneStampMs = 0
	}
	if b.state == bbrProbeRTT {
		b.handleProbeRTT()
	}
	b.idleRestart = false
}

func (b *BBRv1) setPacingRateWithGain(gain float64) {
	if b.host == nil {
		return
	}
	rate := gain * b.btlBwBps
	if b.filledPipe || rate > b.host.PacingRateBps() {
		b.host.SetPacingRateBps(rate)
	}
}

func (b *BBRv1) setPacingRate() {
	b.setPacingRateWithGain(b.pacingGain)
}

func (b *BBRv1) setSendQuantum() {
	if b.host == nil {
		return
	}
	rate := b.host.PacingRateBps()
	switch {
	case rate < 1.2*1e6/BitsPerByte:
		b.sendQuantum = 1 * MSS
	case rate < 24*1e6/BitsPerByte:
		b.sendQuantum = 2 * MSS
	default:
		q := rate * 1e-3
		if q > 64*1e3 {
			q = 64 * 1e3
		}
		b.sendQuantum = int64(q)
	}
}

func (b *BBRv1) setCwnd() {
	const packetsDelivered = 1
	b.updateTargetCwnd()
	if b.inFastRecoveryMode {
		b.modulateCwndForRecovery(packetsDelivered)
	}
	if !b.packetConservation {
		if b.filledPipe {
			if b.cwndByte+packetsDelivered < b.targetCwndByte {
				b.cwndByte += packetsDelivered
			} else {
				b.cwndByte = b.targetCwndByte
			}
		} else if b.cwndByte < b.targetCwndByte || b.connState.deliveredByte < TCPInitCwndByte {
			b.cwndByte += packetsDelivered
		}
		if b.cwndByte < bbrMinPipeCwndByte {
			b.cwndByte = bbrMinPipeCwndByte
		}
	}
	b.modulateCwndForProbeRTT()
}

func (b *BBRv1) inflightBytes(gain float64) float64 {
	if math.IsInf(b.rtPropMs, 1) {
		return TCPInitCwndByte
	}
	quanta := 3 * float64(b.sendQuantum)
	estimatedBDP := b.btlBwBps * b.rtPropMs / 1000
	return gain*estimatedBDP + quanta
}

func (b *BBRv1) updateTargetCwnd() {
	b.targetCwndByte = int64(b.inflightBytes(b.cwndGain))
}

func (b *BBRv1) enterProbeRTT() {
	b.state = bbrProbeRTT
	b.pacingGain = 1
	b.cwndGain = 1
}

func (b *BBRv1) handleProbeRTT() {
	b.connState.appLimited = 0
	if b.probeRTTDoneStampMs == 0 && b.bytesInFlight <= bbrMinPipeCwndByte {
		b.probeRTTDoneStampMs = b.tsMs + bbrProbeRTTDurMs
		b.probeRTTRoundDone = false
		b.nextRoundDeliveredByte = b.connState.deliveredByte
	} else if b.probeRTTDoneStampMs != 0 {
		if b.roundStart {
			b.probeRTTRoundDone = true
		}
		if b.probeRTTRoundDone && b.tsMs > b.probeRTTDoneStampMs {
			b.rtPropStampMs = b.tsMs
			b.restoreCwnd()
			b.exitProbeRTT()
		}
	}
}

func (b *BBRv1) exitProbeRTT() {
	if b.filledPipe {
		b.enterProbeBW()
	} else {
		b.enterStartup()
	}
}

func (b *BBRv1) modulateCwndForProbeRTT() {
	if b.state == bbrProbeRTT && b.cwndByte > bbrMinPipeCwndByte {
		b.cwndByte = bbrMinPipeCwndByte
	}
}

func (b *BBRv1) modulateCwndForRecovery(packetsDelivered int64) {
	if b.rs.losses > 0 {
		b.cwndByte -= int64(b.rs.losses)
		if b.cwndByte < 1 {
			b.cwndByte = 1
		}
	}
	if b.packetConservation && b.cwndByte < b.bytesInFlight+packetsDelivered {
		b.cwndByte = b.bytesInFlight + packetsDelivered
	}
}

func (b *BBRv1) saveCwnd() int64 {
	if !b.inFastRecoveryMode && b.state != bbrProbeRTT {
		return b.cwndByte
	}
	if b.priorCwndByte > b.cwndByte {
		return b.priorCwndByte
	}
	return b.cwndByte
}

func (b *BBRv1) restoreCwnd() {
	if b.priorCwndByte > b.cwndByte {
		b.cwndByte = b.priorCwndByte
	}
}

func (b *BBRv1) enterDrain() {
	b.state = bbrDrain
	b.pacingGain = 1 / bbrHighGain
	b.cwndGain = bbrHighGain
}

func (b *BBRv1) enterProbeBW() {
	b.state = bbrProbeBW
	b.pacingGain = 1
	b.cwndGain = 2
	b.cycleIndex = bbrGainCycleLen - 1 - b.prng.Intn(7)
	b.advanceCyclePhase()
}

// generateRateSample fills in b.rs from the ACK and the packet it
// acknowledges, grounded on bbr_v1.py's _generate_rate_sample.
func (b *BBRv1) generateRateSample(nowMs int64, pkt *Packet) bool {
	if !b.updateRateSample(nowMs, pkt) {
		return false
	}
	if b.connState.appLimited != 0 && b.connState.deliveredByte > b.connState.appLimited {
		b.connState.appLimited = 0
	}
	if b.rs.priorTimeMs == 0 {
		return false
	}
	b.rs.intervalMs = math.Max(float64(b.rs.sendElapsedMs), float64(b.rs.ackElapsedMs))
	b.rs.deliveredByte = b.connState.deliveredByte - b.rs.priorDeliveredByte

	if b.rs.intervalMs < b.rttMinMs {
		b.rs.intervalMs = -1
		return false
	}
	if b.rs.intervalMs != 0 {
		b.rs.deliveryRateBps = 1000 * float64(b.rs.deliveredByte) / b.rs.intervalMs
	}
	return true
}

func (b *BBRv1) updateRateSample(nowMs int64, pkt *Packet) bool {
	b.rs.priorBytesInFlight = b.bytesInFlight
	b.connState.deliveredByte += int64(pkt.AckedSizeBytes)
	b.connState.deliveredTimeMs = nowMs

	if b.rs.priorDeliveredByte == 0 || pkt.DeliveredByte > b.rs.priorDeliveredByte {
		b.rs.priorDeliveredByte = pkt.DeliveredByte
		b.rs.priorTimeMs = pkt.DeliveredTimeMs
		b.rs.isAppLimited = pkt.IsAppLimited
		b.rs.sendElapsedMs = pkt.TsSentMs - pkt.TsFirstSentMs
		b.rs.ackElapsedMs = b.connState.deliveredTimeMs - pkt.DeliveredTimeMs
		b.connState.firstSentTimeMs = pkt.TsSentMs
		return true
	}
	return false
}

// StateName exposes the current phase for tests asserting spec.md §8's
// state-machine invariant.
func (b *BBRv1) StateName() string {
	return b.state.String()
}

// CwndByte exposes the current congestion window for tests and stats.
func (b *BBRv1) CwndByte() int64 {
	return b.cwndByte
}

// BytesInFlight exposes in-flight bytes for tests and stats.
func (b *BBRv1) BytesInFlight() int64 {
	return b.bytesInFlight
}

// RTOMs is the RFC6298-style retransmission timeout derived from this
// connection's smoothed RTT, clamped to [1000,60000]ms. [TCPHost]
// pushes this down to its [TCPRtxManager] on every ACK.
func (b *BBRv1) RTOMs() int64 {
	const rtoK = 4
	rto := b.srttMs + rtoK*b.rttvarMs
	if rto < 1000 {
		rto = 1000
	}
	if rto > 60000 {
		rto = 60000
	}
	return int64(rto)
}
