package netsim

import "sort"

//
// Retransmission managers (spec.md §4.6), grounded on
// _examples/original_source/src/simulator_new/rtx_manager/{rtx_manager,
// aurora_rtx_manager,webrtc_rtx_manager}.py. The TCP manager has no
// standalone source file (the original folds it into tcp_host.py's
// inline bookkeeping); it is built here from the same primitives as
// the Aurora manager with a fast-retransmit trigger, per spec.md §4.6
// "same primitives, different trigger".
//

// RtxManager is the capability set a host's retransmission policy
// exposes, a Go sum-type-by-interface per Design Notes.
type RtxManager interface {
	Ticker
	RegisterHost(h *Host)
	OnPktSent(pkt *Packet)
	OnPktRcvd(nowMs int64, pkt *Packet)
	PeekPkt() int
	GetPkt() *Packet

	// PendingBytes is the total size of packets currently queued for
	// retransmission, used by the rate allocator to keep new encode
	// bytes from starving resends (spec.md §4.11).
	PendingBytes() int
}

// unackedEntry is one outstanding packet, tracked with an explicit
// Acked flag so that "considered lost" checks never re-fire for an
// id already acknowledged — the fix for the disjunction bug flagged
// in Design Notes Open Questions.
type unackedEntry struct {
	pkt     *Packet
	numRtx  int
	acked   bool
}

//
// Aurora rtx manager
//

// AuroraRtxManager implements duplicate-ack plus timeout loss
// detection, grounded on aurora_rtx_manager.py. The timeout is a fixed
// 100ms; it is not derived from the measured RTT and not clamped.
type AuroraRtxManager struct {
	host *Host

	unacked       map[int]*unackedEntry
	rtxQueue      map[int]bool
	maxLostPktID  int
	timeoutMs     int64
}

// NewAuroraRtxManager constructs an [AuroraRtxManager].
func NewAuroraRtxManager() *AuroraRtxManager {
	m := &AuroraRtxManager{timeoutMs: 100}
	m.Reset()
	return m
}

func (m *AuroraRtxManager) RegisterHost(h *Host) { m.host = h }

func (m *AuroraRtxManager) Reset() {
	m.unacked = make(map[int]*unackedEntry)
	m.rtxQueue = make(map[int]bool)
	m.maxLostPktID = -1
}

func (m *AuroraRtxManager) OnPktSent(pkt *Packet) {
	if _, ok := m.unacked[pkt.ID]; !ok {
		m.unacked[pkt.ID] = &unackedEntry{pkt: pkt.Clone()}
	}
}

// OnPktRcvd handles an ACK: evict the acked entry, then mark every
// strictly-lower unacked, not-yet-acked entry lost exactly once.
func (m *AuroraRtxManager) OnPktRcvd(nowMs int64, pkt *Packet) {
	entry, ok := m.unacked[pkt.ID]
	if !ok {
		// Stale ACK for an already-evicted id: swallowed per spec.md §7.
		return
	}
	entry.acked = true
	delete(m.unacked, pkt.ID)

	ids := m.sortedUnackedIDs()
	for _, id := range ids {
		if id >= pkt.ID {
			break
		}
		unacked := m.unacked[id]
		if unacked.acked {
			continue
		}
		if id > m.maxLostPktID {
			m.onPktLost(nowMs, unacked.pkt)
			m.maxLostPktID = id
		}
		if unacked.pkt.TsSentMs == unacked.pkt.TsFirstSentMs || nowMs-unacked.pkt.TsSentMs > m.timeoutMs {
			m.rtxQueue[id] = true
		}
	}
}

func (m *AuroraRtxManager) onPktLost(nowMs int64, pkt *Packet) {
	if m.host == nil {
		return
	}
	if m.host.cc != nil {
		m.host.cc.OnPktLost(pkt)
	}
	if m.host.recorder != nil {
		m.host.recorder.OnPktLost(nowMs, pkt)
	}
}

func (m *AuroraRtxManager) PeekPkt() int {
	id := m.minRtxID()
	if id < 0 {
		return 0
	}
	return m.unacked[id].pkt.SizeBytes
}

func (m *AuroraRtxManager) GetPkt() *Packet {
	id := m.minRtxID()
	if id < 0 {
		return nil
	}
	delete(m.rtxQueue, id)
	return m.unacked[id].pkt
}

func (m *AuroraRtxManager) Tick(nowMs int64) {
	ids := m.sortedUnackedIDs()
	for _, id := range ids {
		if id > m.maxLostPktID {
			break
		}
		entry := m.unacked[id]
		if entry.acked {
			continue
		}
		if entry.pkt.TsSentMs == entry.pkt.TsFirstSentMs || nowMs-entry.pkt.TsSentMs > m.timeoutMs {
			m.rtxQueue[id] = true
		}
	}
}

func (m *AuroraRtxManager) PendingBytes() int {
	total := 0
	for id := range m.rtxQueue {
		if e, ok := m.unacked[id]; ok {
			total += e.pkt.SizeBytes
		}
	}
	return total
}

func (m *AuroraRtxManager) sortedUnackedIDs() []int {
	ids := make([]int, 0, len(m.unacked))
	for id := range m.unacked {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *AuroraRtxManager) minRtxID() int {
	best := -1
	for id := range m.rtxQueue {
		if best < 0 || id < best {
			best = id
		}
	}
	return best
}

//
// WebRTC rtx manager
//

// WebRTCRtxManager is driven by NACKs from the peer, with a bounded
// buffer evicting entries 20s after first send, grounded on
// webrtc_rtx_manager.py.
type WebRTCRtxManager struct {
	host *Host

	buf      map[int]*unackedEntry
	rtxQueue map[int]bool

	evictAfterMs int64
}

// NewWebRTCRtxManager constructs a [WebRTCRtxManager].
func NewWebRTCRtxManager() *WebRTCRtxManager {
	m := &WebRTCRtxManager{evictAfterMs: 20000}
	m.Reset()
	return m
}

func (m *WebRTCRtxManager) RegisterHost(h *Host) { m.host = h }

func (m *WebRTCRtxManager) Reset() {
	m.buf = make(map[int]*unackedEntry)
	m.rtxQueue = make(map[int]bool)
}

func (m *WebRTCRtxManager) OnPktSent(pkt *Packet) {
	if pkt.AppData.Padding {
		return
	}
	if _, ok := m.buf[pkt.ID]; !ok {
		m.buf[pkt.ID] = &unackedEntry{}
	}
	m.buf[pkt.ID].pkt = pkt.Clone()
}

func (m *WebRTCRtxManager) OnPktRcvd(nowMs int64, pkt *Packet) {
	if !pkt.IsNackPkt() {
		return
	}
	entry, ok := m.buf[pkt.ID]
	if !ok {
		// NACK for an unknown id: swallowed per spec.md §7.
		return
	}
	entry.numRtx++
	m.rtxQueue[pkt.ID] = true
}

func (m *WebRTCRtxManager) PeekPkt() int {
	id := m.minRtxID()
	if id < 0 {
		return 0
	}
	return m.buf[id].pkt.SizeBytes
}

func (m *WebRTCRtxManager) GetPkt() *Packet {
	id := m.minRtxID()
	if id < 0 {
		return nil
	}
	delete(m.rtxQueue, id)
	return m.buf[id].pkt
}

func (m *WebRTCRtxManager) PendingBytes() int {
	total := 0
	for id := range m.rtxQueue {
		if e, ok := m.buf[id]; ok {
			total += e.pkt.SizeBytes
		}
	}
	return total
}

func (m *WebRTCRtxManager) minRtxID() int {
	best := -1
	for id := range m.rtxQueue {
		if best < 0 || id < best {
			best = id
		}
	}
	return best
}

// Tick evicts entries whose first send is more than evictAfterMs in
// the past.
func (m *WebRTCRtxManager) Tick(nowMs int64) {
	ids := make([]int, 0, len(m.buf))
	for id := range m.buf {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if nowMs-m.buf[id].pkt.TsFirstSentMs > m.evictAfterMs {
			delete(m.buf, id)
			delete(m.rtxQueue, id)
		}
	}
}

//
// TCP rtx manager
//

// TCPRtxManager implements classical fast-retransmit (3 duplicate
// ACKs) plus RTO, feeding BBR a loss signal. It has no dedicated
// source file; built from the same unacked-buffer primitives as
// [AuroraRtxManager] per spec.md §4.6.
type TCPRtxManager struct {
	host *Host

	unacked        map[int]*unackedEntry
	rtxQueue       map[int]bool
	dupAckCount    map[int]int
	fastRtxThresh  int
	rtoMs          int64
}

// NewTCPRtxManager constructs a [TCPRtxManager]. rtoMs should track
// the host's smoothed RTO estimate; the host updates it via
// SetRTOMs on every ACK.
func NewTCPRtxManager() *TCPRtxManager {
	m := &TCPRtxManager{fastRtxThresh: 3, rtoMs: 1000}
	m.Reset()
	return m
}

func (m *TCPRtxManager) RegisterHost(h *Host) { m.host = h }

func (m *TCPRtxManager) Reset() {
	m.unacked = make(map[int]*unackedEntry)
	m.rtxQueue = make(map[int]bool)
	m.dupAckCount = make(map[int]int)
}

// SetRTOMs lets the owning TCP host push its latest smoothed RTO
// estimate (§4.5), clamped to [1000,60000]ms.
func (m *TCPRtxManager) SetRTOMs(rtoMs int64) {
	if rtoMs < 1000 {
		rtoMs = 1000
	}
	if rtoMs > 60000 {
		rtoMs = 60000
	}
	m.rtoMs = rtoMs
}

func (m *TCPRtxManager) OnPktSent(pkt *Packet) {
	if _, ok := m.unacked[pkt.ID]; !ok {
		m.unacked[pkt.ID] = &unackedEntry{pkt: pkt.Clone()}
	}
}

func (m *TCPRtxManager) OnPktRcvd(nowMs int64, pkt *Packet) {
	entry, ok := m.unacked[pkt.ID]
	if !ok {
		return
	}
	entry.acked = true
	delete(m.unacked, pkt.ID)
	delete(m.dupAckCount, pkt.ID)

	ids := m.sortedUnackedIDs()
	for _, id := range ids {
		if id >= pkt.ID {
			break
		}
		unacked := m.unacked[id]
		if unacked.acked {
			continue
		}
		m.dupAckCount[id]++
		if m.dupAckCount[id] >= m.fastRtxThresh {
			m.onPktLost(nowMs, unacked.pkt)
			m.rtxQueue[id] = true
		}
	}
}

func (m *TCPRtxManager) onPktLost(nowMs int64, pkt *Packet) {
	if m.host == nil {
		return
	}
	if m.host.cc != nil {
		m.host.cc.OnPktLost(pkt)
	}
	if m.host.recorder != nil {
		m.host.recorder.OnPktLost(nowMs, pkt)
	}
}

func (m *TCPRtxManager) PeekPkt() int {
	id := m.minRtxID()
	if id < 0 {
		return 0
	}
	return m.unacked[id].pkt.SizeBytes
}

func (m *TCPRtxManager) GetPkt() *Packet {
	id := m.minRtxID()
	if id < 0 {
		return nil
	}
	delete(m.rtxQueue, id)
	return m.unacked[id].pkt
}

func (m *TCPRtxManager) PendingBytes() int {
	total := 0
	for id := range m.rtxQueue {
		if e, ok := m.unacked[id]; ok {
			total += e.pkt.SizeBytes
		}
	}
	return total
}

func (m *TCPRtxManager) minRtxID() int {
	best := -1
	for id := range m.rtxQueue {
		if best < 0 || id < best {
			best = id
		}
	}
	return best
}

// Tick marks entries older than the current RTO as lost.
func (m *TCPRtxManager) Tick(nowMs int64) {
	ids := m.sortedUnackedIDs()
	for _, id := range ids {
		entry := m.unacked[id]
		if entry.acked {
			continue
		}
		if nowMs-entry.pkt.TsSentMs > m.rtoMs {
			if !m.rtxQueue[id] {
				m.onPktLost(nowMs, entry.pkt)
			}
			m.rtxQueue[id] = true
		}
	}
}

func (m *TCPRtxManager) sortedUnackedIDs() []int {
	ids := make([]int, 0, len(m.unacked))
	for id := range m.unacked {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
