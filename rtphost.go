package netsim

import "sort"

//
// RTPHost (spec.md §4.5), grounded on
// _examples/original_source/src/simulator_new/rtp_host.py.
//

const (
	rtpNackRTTMs       = 100
	rtpNackMaxRetries  = 10
	rtpOWDEWMAAlpha    = 1.0 / 8
	rtpJitterEWMADenom = 16
	rtpMinProbePkts    = 3
)

type nackEntry struct {
	numRetries int
	tsSentMs   int64
}

// nackModule tracks missing RTP sequence numbers between the base and
// the highest id seen so far, grounded on rtp_host.py's NackModule.
type nackModule struct {
	pktsLost map[int]*nackEntry
}

func newNackModule() *nackModule {
	return &nackModule{pktsLost: make(map[int]*nackEntry)}
}

func (n *nackModule) reset() {
	n.pktsLost = make(map[int]*nackEntry)
}

func (n *nackModule) onPktRcvd(pktID, maxPktID int) {
	delete(n.pktsLost, pktID)
	if pktID < maxPktID {
		return
	}
	n.addMissing(maxPktID+1, pktID)
}

func (n *nackModule) addMissing(from, to int) {
	for id := from; id < to; id++ {
		n.pktsLost[id] = &nackEntry{}
	}
}

func (n *nackModule) generateNack(maxPktID int) []int {
	ids := make([]int, 0, len(n.pktsLost))
	for id := range n.pktsLost {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var nacks []int
	for _, id := range ids {
		info := n.pktsLost[id]
		if info.numRetries > rtpNackMaxRetries {
			delete(n.pktsLost, id)
			continue
		}
		if id < maxPktID {
			nacks = append(nacks, id)
		}
	}
	return nacks
}

func (n *nackModule) onNackSent(tsMs int64, pktID int) {
	if e, ok := n.pktsLost[pktID]; ok {
		e.numRetries++
		e.tsSentMs = tsMs
	}
}

func (n *nackModule) cleanupTo(maxPktID int) {
	ids := make([]int, 0, len(n.pktsLost))
	for id := range n.pktsLost {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if id < maxPktID {
			delete(n.pktsLost, id)
		}
	}
}

// rtpProbeAccum accumulates one probe cluster's telemetry as RTP
// packets carrying that cluster id arrive.
type rtpProbeAccum struct {
	numProbePkts        int
	totSizeByte         int64
	firstPktSentTsMs    int64
	lastPktSentTsMs     int64
	firstPktRcvdTsMs    int64
	lastPktRcvdTsMs     int64
	lastPktSentSizeByte int64
	firstPktRcvdSizeByte int64
	probeRateBps        float64
}

// RTPHost wraps [Host] with RTP/RTCP/NACK transport, grounded on
// rtp_host.py.
type RTPHost struct {
	*Host
	cfg *SimConfig

	rtcpPktCnt           int
	tsLastRtcpReportMs   int64
	tsLastRembMs         int64
	basePktID            int
	maxPktID             int
	rcvdPktCnt           int
	rcvdBytes            int64
	rcvdBytesPrior       int64
	lastRtcpRcvdPktCnt   int
	lastRtcpExpectedCnt  int
	owdMs                float64
	delayIntervalMs      float64

	nackMod                  *nackModule
	tsLastFullNackSentMs     int64
	hasSentFullNack          bool

	lastPktSentMs int64
	lastPktRcvdMs int64

	probeInfo map[int]*rtpProbeAccum
}

// NewRTPHost constructs an [RTPHost].
func NewRTPHost(id int, cfg *SimConfig, txLink, rxLink *Link, cc CongestionControl, rtxMngr RtxManager, app Application, logger Logger) *RTPHost {
	h := NewHost(id, cfg, txLink, rxLink, cc, rtxMngr, app, logger)
	rh := &RTPHost{
		Host:      h,
		cfg:       cfg,
		basePktID: -1,
		maxPktID:  -1,
		nackMod:   newNackModule(),
		probeInfo: make(map[int]*rtpProbeAccum),
	}
	h.RegisterProtocol(rh)
	h.SetRTCPSender(rh.sendRTCPReport)
	return rh
}

func (rh *RTPHost) DataPacketKind() PacketKind { return RTPPkt }

func (rh *RTPHost) OnPktRcvd(nowMs int64, pkt *Packet) {
	rh.CC().OnPktRcvd(nowMs, pkt)
	if rh.RtxMngr() != nil {
		rh.RtxMngr().OnPktRcvd(nowMs, pkt)
	}

	switch {
	case pkt.IsRTPPkt():
		rh.onRTPPktRcvd(nowMs, pkt)
	case pkt.IsNackPkt():
		if r := rh.RecorderOrNil(); r != nil {
			r.OnPktNack(nowMs, pkt)
		}
	}
}

func (rh *RTPHost) onRTPPktRcvd(nowMs int64, pkt *Packet) {
	if rh.basePktID == -1 {
		rh.basePktID = pkt.ID
	}
	rh.nackMod.onPktRcvd(pkt.ID, rh.maxPktID)
	if pkt.ID > rh.maxPktID {
		rh.maxPktID = pkt.ID
	}
	if pkt.TsFirstSentMs == pkt.TsSentMs {
		rh.rcvdPktCnt++
	}
	rh.rcvdBytes += int64(pkt.SizeBytes)

	delayMs := float64(pkt.DelayMs())
	if rh.owdMs == 0 {
		rh.owdMs = delayMs
	} else {
		rh.owdMs = rh.owdMs*(1-rtpOWDEWMAAlpha) + delayMs*rtpOWDEWMAAlpha
	}
	// The sender has no visibility into arrival times, so jitter is
	// computed purely from this host's own bookkeeping of the previous
	// packet it observed, stamped onto the packet for symmetry with
	// the sent-side fields rather than kept in a side channel.
	pkt.TsPrevPktSentMs = rh.lastPktSentMs
	pkt.TsPrevPktRcvdMs = rh.lastPktRcvdMs
	jitter := float64((pkt.TsRcvdMs - pkt.TsPrevPktRcvdMs) - (pkt.TsSentMs - pkt.TsPrevPktSentMs))
	rh.delayIntervalMs += (absFloat(jitter) - rh.delayIntervalMs) / rtpJitterEWMADenom
	rh.lastPktSentMs = pkt.TsSentMs
	rh.lastPktRcvdMs = pkt.TsRcvdMs

	rh.App().DeliverPkt(nowMs, pkt)

	nackIDs := rh.nackMod.generateNack(rh.maxPktID)
	rh.sendNack(nowMs, nackIDs)

	if r := rh.RecorderOrNil(); r != nil {
		r.OnPktRcvd(nowMs, pkt)
	}

	if pkt.AppData.Probe {
		rh.recordProbePkt(pkt)
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (rh *RTPHost) recordProbePkt(pkt *Packet) {
	id := pkt.AppData.ProbeClusterID
	acc, ok := rh.probeInfo[id]
	if !ok {
		acc = &rtpProbeAccum{
			probeRateBps:         pkt.PacingRateBps,
			firstPktSentTsMs:     pkt.TsSentMs,
			firstPktRcvdTsMs:     pkt.TsRcvdMs,
			firstPktRcvdSizeByte: int64(pkt.SizeBytes),
		}
		rh.probeInfo[id] = acc
	}
	acc.numProbePkts++
	acc.totSizeByte += int64(pkt.SizeBytes)
	acc.lastPktSentTsMs = pkt.TsSentMs
	acc.lastPktRcvdTsMs = pkt.TsRcvdMs
	acc.lastPktSentSizeByte = int64(pkt.SizeBytes)
}

// sendNack rate-limits full NACK bursts to at most one per 1.5*RTT,
// matching rtp_host.py's send_nack (its RTT is a TODO-flagged constant
// in the source; carried as-is here).
func (rh *RTPHost) sendNack(nowMs int64, pktIDs []int) {
	if rh.hasSentFullNack && nowMs-rh.tsLastFullNackSentMs < int64(1.5*rtpNackRTTMs) {
		return
	}
	for _, id := range pktIDs {
		nack := NewPacket(NACKPkt, 1)
		nack.ID = id
		rh.PushReply(nack)
		rh.nackMod.onNackSent(nowMs, id)
	}
	rh.tsLastFullNackSentMs = nowMs
	rh.hasSentFullNack = true
}

// sendRTCPReport emits one RTCP feedback packet, attaching the
// newest probe cluster with more than rtpMinProbePkts packets still
// pending and discarding it together with every older cluster
// (mirrors rtp_host.py's reverse-sorted cluster scan).
func (rh *RTPHost) sendRTCPReport(nowMs int64, estimatedRateBps float64) {
	var expectedCnt int
	if rh.basePktID > -1 && rh.maxPktID > -1 {
		expectedCnt = rh.maxPktID - rh.basePktID + 1
	}
	expectedInterval := expectedCnt - rh.lastRtcpExpectedCnt
	rh.lastRtcpExpectedCnt = expectedCnt

	rcvdInterval := rh.rcvdPktCnt - rh.lastRtcpRcvdPktCnt
	rh.lastRtcpRcvdPktCnt = rh.rcvdPktCnt

	lostInterval := expectedInterval - rcvdInterval
	var lossFraction float64
	if expectedInterval > 0 && lostInterval > 0 {
		lossFraction = float64(lostInterval) / float64(expectedInterval)
	}

	report := NewPacket(RTCPPkt, 1)
	report.ID = rh.rtcpPktCnt
	report.EstimatedRateBps = estimatedRateBps
	report.LossFraction = lossFraction
	report.ThroughputBps = float64(rh.rcvdBytes-rh.rcvdBytesPrior) * 1000 / float64(rh.cfg.RTCPIntervalMs)
	report.OWDMs = rh.owdMs
	report.JitterMs = rh.delayIntervalMs
	rh.rcvdBytesPrior = rh.rcvdBytes
	rh.rtcpPktCnt++

	targetClusterID := -1
	ids := make([]int, 0, len(rh.probeInfo))
	for id := range rh.probeInfo {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	for _, id := range ids {
		if rh.probeInfo[id].numProbePkts > rtpMinProbePkts {
			acc := rh.probeInfo[id]
			report.ProbeInfo = &ProbeInfo{
				ProbeClusterID:       id,
				NumProbePkts:         acc.numProbePkts,
				TotSizeByte:          acc.totSizeByte,
				FirstPktSentTsMs:     acc.firstPktSentTsMs,
				LastPktSentTsMs:      acc.lastPktSentTsMs,
				FirstPktRcvdTsMs:     acc.firstPktRcvdTsMs,
				LastPktRcvdTsMs:      acc.lastPktRcvdTsMs,
				LastPktSentSizeByte:  acc.lastPktSentSizeByte,
				FirstPktRcvdSizeByte: acc.firstPktRcvdSizeByte,
				ProbeRateBps:         acc.probeRateBps,
			}
			targetClusterID = id
			break
		}
	}
	if len(rh.probeInfo) > 0 {
		minID := ids[len(ids)-1]
		for id := minID; id <= targetClusterID; id++ {
			delete(rh.probeInfo, id)
		}
	}

	rh.tsLastRtcpReportMs = nowMs
	if estimatedRateBps > 0 {
		rh.tsLastRembMs = nowMs
	}
	rh.PushReply(report)
	rh.CC().OnPktSent(report)
}

// ExtraTick drives the receiver-side RTCP/REMB cadence: every
// RTCPIntervalMs, and a REMB rate only every REMBIntervalMs (or
// immediately via SendRTCPReport when GCC's delay-based estimate
// drops below 0.97 of its previous value).
func (rh *RTPHost) ExtraTick(nowMs int64) {
	if rh.ID() != 1 {
		return
	}
	if nowMs-rh.tsLastRtcpReportMs < rh.cfg.RTCPIntervalMs {
		return
	}
	rembRateBps := -1.0
	if gcc, ok := rh.CC().(*GCC); ok && nowMs-rh.tsLastRembMs >= rh.cfg.REMBIntervalMs {
		rembRateBps = gcc.RemoteRateBps()
	}
	rh.sendRTCPReport(nowMs, rembRateBps)
}
