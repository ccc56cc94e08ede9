package netsim

import "math"

//
// Aurora (spec.md §4.9), grounded on
// _examples/original_source/src/simulator_new/cc/pcc/aurora/{aurora,
// monitor_interval}.py.
//

const (
	// auroraMaxRateBps and auroraMinRateBps are spec.md §4.9's clamp
	// (62,500-1,500,000 B/s); the source's own Aurora.MIN/MAX_RATE_BYTE_PER_SEC
	// (7,500/30,000,000) is a looser bound superseded here.
	auroraMaxRateBps        = 1500000
	auroraMinRateBps        = 62500
	auroraStartPacingRateBps = 10 * MSS / 0.05

	// auroraMaxMIDurationMs is how long past its scheduled end a
	// monitor interval may stay open: the
	// source's "pkts_sent >= 2 AND got_data" end condition can stall
	// indefinitely under heavy loss (Design Notes Open Question); the
	// port imposes this ceiling so a starved interval still closes.
	auroraMaxMIDurationMs = 2000
)

// AuroraPolicy is the learned-policy callout (Design Notes
// "Learned-policy callout"): an observation vector in, a scalar rate
// delta out. Any implementer — a file-serialized network, a socket to
// an external inference process — satisfies this the same way.
type AuroraPolicy interface {
	Predict(obs []float64) float64
}

// ZeroPolicy never adjusts the rate; the default when no model is
// configured.
type ZeroPolicy struct{}

func (ZeroPolicy) Predict(obs []float64) float64 { return 0 }

// UniformRandomPolicy draws Δ ∼ U[-1,1], matching spec.md §8 scenario 3.
type UniformRandomPolicy struct {
	loss *lossSource
}

// NewUniformRandomPolicy constructs a [UniformRandomPolicy] drawing
// from the simulator's run-scoped RNG.
func NewUniformRandomPolicy(loss *lossSource) *UniformRandomPolicy {
	return &UniformRandomPolicy{loss: loss}
}

func (p *UniformRandomPolicy) Predict(obs []float64) float64 {
	return p.loss.Float64()*2 - 1
}

// monitorInterval accumulates send/recv/loss/latency statistics over
// one Aurora control epoch.
type monitorInterval struct {
	pktsSent  int
	pktsAcked int

	bytesSent        int64
	lastPktBytesSent int64
	bytesAcked       int64
	bytesLost        int64

	sendStartTsMs int64
	sendEndTsMs   int64
	recvStartTsMs int64
	recvEndTsMs   int64

	rttMsSamples []float64

	connMinAvgLatMs float64
}

func (m *monitorInterval) onPktSent(nowMs int64, pkt *Packet) {
	m.sendEndTsMs = nowMs
	m.bytesSent += int64(pkt.SizeBytes)
	m.lastPktBytesSent = int64(pkt.SizeBytes)
	m.pktsSent++
}

func (m *monitorInterval) onPktAcked(nowMs int64, pkt *Packet) {
	m.recvEndTsMs = nowMs
	m.bytesAcked += int64(pkt.AckedSizeBytes)
	m.pktsAcked++
	m.rttMsSamples = append(m.rttMsSamples, float64(pkt.RTTMs()))
}

func (m *monitorInterval) onPktLost(pkt *Packet) {
	m.bytesLost += int64(pkt.SizeBytes)
}

func (m *monitorInterval) recvDurMs() float64 { return float64(m.recvEndTsMs - m.recvStartTsMs) }
func (m *monitorInterval) sendDurMs() float64 { return float64(m.sendEndTsMs - m.sendStartTsMs) }

func (m *monitorInterval) recvRateBps() float64 {
	durSec := m.recvDurMs() / 1000
	if durSec > 0 {
		return float64(m.bytesAcked) / durSec
	}
	return 0
}

func (m *monitorInterval) sendRateBps() float64 {
	durSec := m.sendDurMs() / 1000
	if durSec > 0 {
		return float64(m.bytesSent-m.lastPktBytesSent) / durSec
	}
	return 0
}

func (m *monitorInterval) avgLatencyMs() float64 {
	if len(m.rttMsSamples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.rttMsSamples {
		sum += v
	}
	return sum / float64(len(m.rttMsSamples))
}

func (m *monitorInterval) lossRatio() float64 {
	if m.bytesLost+m.bytesAcked > 0 {
		return float64(m.bytesLost) / float64(m.bytesLost+m.bytesAcked)
	}
	return 0
}

func (m *monitorInterval) latencyIncreaseMs() float64 {
	half := len(m.rttMsSamples) / 2
	if half < 1 {
		return 0
	}
	var firstSum, secondSum float64
	for _, v := range m.rttMsSamples[:half] {
		firstSum += v
	}
	for _, v := range m.rttMsSamples[half:] {
		secondSum += v
	}
	return secondSum/float64(len(m.rttMsSamples)-half) - firstSum/float64(half)
}

func (m *monitorInterval) sentLatencyInflation() float64 {
	dur := m.sendDurMs()
	if dur > 0 {
		return m.latencyIncreaseMs() / dur
	}
	return 0
}

func (m *monitorInterval) connMinLatencyMs() float64 {
	avg := m.avgLatencyMs()
	if avg > 0 && m.connMinAvgLatMs > 0 {
		m.connMinAvgLatMs = math.Min(m.connMinAvgLatMs, avg)
	} else if m.connMinAvgLatMs == 0 {
		m.connMinAvgLatMs = avg
	}
	return m.connMinAvgLatMs
}

func (m *monitorInterval) latencyRatio() float64 {
	minLat := m.connMinLatencyMs()
	curLat := m.avgLatencyMs()
	if minLat > 0 {
		return curLat / minLat
	}
	return 1
}

func (m *monitorInterval) recvRatio() float64 {
	sendRate := m.sendRateBps()
	if sendRate == 0 {
		return 1
	}
	return m.recvRateBps() / sendRate
}

// features returns the fixed observation triple spec.md §4.9 names:
// sent_latency_inflation, latency_ratio, recv_ratio.
func (m *monitorInterval) features() [3]float64 {
	return [3]float64{m.sentLatencyInflation(), m.latencyRatio(), m.recvRatio()}
}

// monitorIntervalHistory is a fixed-length rolling buffer of MIs,
// flattened into Aurora's observation vector.
type monitorIntervalHistory struct {
	length int
	values []*monitorInterval
}

func newMonitorIntervalHistory(length int) *monitorIntervalHistory {
	h := &monitorIntervalHistory{length: length}
	for i := 0; i < length; i++ {
		h.values = append(h.values, &monitorInterval{})
	}
	return h
}

func (h *monitorIntervalHistory) step(mi *monitorInterval) {
	h.values = append(h.values[1:], mi)
}

func (h *monitorIntervalHistory) back() *monitorInterval {
	return h.values[len(h.values)-1]
}

func (h *monitorIntervalHistory) asArray() []float64 {
	obs := make([]float64, 0, h.length*3)
	for _, mi := range h.values {
		f := mi.features()
		obs = append(obs, f[0], f[1], f[2])
	}
	return obs
}

// pccAuroraReward is the classical PCC-Aurora reward formula
// (spec.md §4.9 mode (a)).
func pccAuroraReward(tputPktPerSec, delaySec, loss float64) float64 {
	return 10*tputPktPerSec - 1000*delaySec - 2000*loss
}

// Aurora implements [CongestionControl] per spec.md §4.9.
type Aurora struct {
	host   *Host
	policy AuroraPolicy
	logger Logger

	historyLen int
	history    *monitorIntervalHistory
	mi         *monitorInterval

	miDurationMs int64
	miEndTsMs    int64
	gotData      bool

	reward float64

	// aeGuided switches to the application-aware reward mode
	// (spec.md §4.9 "For application-aware mode...").
	aeGuided      bool
	lastFrameQuality float64
	lastAvgDelayMs   float64

	onMIFinishCb func(endTsMs, durationMs int64, reward, rateBps float64)
}

// SetOnMIFinish installs a callback invoked every time a monitor
// interval closes, used by [StatsRecorder] to populate
// aurora_mi_log.csv.
func (a *Aurora) SetOnMIFinish(f func(endTsMs, durationMs int64, reward, rateBps float64)) {
	a.onMIFinishCb = f
}

// NewAurora constructs an [Aurora] controller. policy defaults to
// [ZeroPolicy] when nil.
func NewAurora(historyLen int, policy AuroraPolicy, aeGuided bool, logger Logger) *Aurora {
	if policy == nil {
		policy = ZeroPolicy{}
	}
	if logger == nil {
		logger = DiscardLogger()
	}
	a := &Aurora{
		policy:       policy,
		logger:       logger,
		historyLen:   historyLen,
		aeGuided:     aeGuided,
		miDurationMs: 10,
		miEndTsMs:    10,
	}
	a.history = newMonitorIntervalHistory(historyLen)
	a.mi = &monitorInterval{}
	return a
}

func (a *Aurora) RegisterHost(h *Host) {
	a.host = h
	a.setRate(auroraStartPacingRateBps)
}

func (a *Aurora) Reset() {
	a.miDurationMs = 10
	a.miEndTsMs = 10
	a.gotData = false
	a.history = newMonitorIntervalHistory(a.historyLen)
	a.mi = &monitorInterval{}
	a.reward = 0
	a.setRate(auroraStartPacingRateBps)
}

// SetAppFeedback lets the application-aware reward mode receive the
// decoder's latest frame quality and average delay (spec.md §4.9).
func (a *Aurora) SetAppFeedback(frameQuality, avgDelayMs float64) {
	a.lastFrameQuality = frameQuality
	a.lastAvgDelayMs = avgDelayMs
}

func (a *Aurora) OnPktToSend(pkt *Packet) {}

func (a *Aurora) OnPktSent(pkt *Packet) {
	a.mi.onPktSent(pkt.TsSentMs, pkt)
}

func (a *Aurora) OnPktAcked(nowMs int64, pkt *Packet) {
	a.gotData = true
	a.mi.onPktAcked(nowMs, pkt)
}

func (a *Aurora) OnPktRcvd(nowMs int64, pkt *Packet) {}

func (a *Aurora) OnPktLost(pkt *Packet) {
	a.mi.onPktLost(pkt)
}

func (a *Aurora) Tick(nowMs int64) {
	expired := nowMs >= a.miEndTsMs && a.mi.pktsSent >= 2 && a.gotData
	stalled := nowMs >= a.miEndTsMs+auroraMaxMIDurationMs
	if expired || stalled {
		a.onMIFinish(nowMs)
	}
}

func (a *Aurora) GetEstRateBps(nowMs, futureMs int64) float64 {
	if a.host == nil {
		return auroraStartPacingRateBps
	}
	return a.host.PacingRateBps()
}

func (a *Aurora) applyRateDelta(delta float64) {
	if a.host == nil {
		return
	}
	var rate float64
	if delta >= 0 {
		rate = a.host.PacingRateBps() * (1 + delta)
	} else {
		rate = a.host.PacingRateBps() / (1 - delta)
	}
	a.setRate(rate)
}

func (a *Aurora) setRate(rateBps float64) {
	if a.host == nil {
		return
	}
	clamped := math.Max(auroraMinRateBps, math.Min(auroraMaxRateBps, rateBps))
	a.host.SetPacingRateBps(clamped)
}

// onMIFinish closes the current MI, computes reward, queries the
// policy, applies the resulting rate delta, and opens the next MI —
// grounded on aurora.py's _on_mi_finish.
func (a *Aurora) onMIFinish(nowMs int64) {
	var latMs float64
	if a.aeGuided {
		a.reward = a.lastFrameQuality - 0.1*(float64(a.miDurationMs)-a.lastAvgDelayMs)/math.Max(a.lastAvgDelayMs, 1)
		latMs = 40
	} else {
		tput := a.mi.recvRateBps()
		latMs = a.mi.avgLatencyMs()
		loss := a.mi.lossRatio()
		a.reward = pccAuroraReward(tput/MSS, latMs/1000, loss)
	}

	a.miDurationMs = int64(math.Max(latMs, 10))
	if a.aeGuided {
		a.miDurationMs = 40
	}
	a.miEndTsMs = nowMs + a.miDurationMs

	a.history.step(a.mi)
	obs := a.history.asArray()
	action := a.policy.Predict(obs)

	a.applyRateDelta(action)

	if a.onMIFinishCb != nil && a.host != nil {
		a.onMIFinishCb(nowMs, a.miDurationMs, a.reward, a.host.PacingRateBps())
	}

	prev := a.history.back()
	next := &monitorInterval{
		pktsSent:        1,
		bytesSent:       prev.lastPktBytesSent,
		sendStartTsMs:   prev.sendEndTsMs,
		recvStartTsMs:   prev.recvEndTsMs,
		connMinAvgLatMs: prev.connMinLatencyMs(),
	}
	a.mi = next
	a.gotData = false
}

// Reward exposes the last computed reward, used by stats logging.
func (a *Aurora) Reward() float64 {
	return a.reward
}
