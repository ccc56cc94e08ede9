package netsim

//
// Host (spec.md §4.4), grounded on
// _examples/original_source/src/simulator_new/host.py, generalized:
// the source splits pacing between a per-host next_send_ts_ms field
// and an independent Pacer class depending on which Host subclass is
// in play; every host here goes through the one [Pacer] built in
// pacer.go, and protocol-specific receive handling is a delegate
// interface rather than subclass overrides, since Go has no virtual
// dispatch through embedding.
//

// Application is the capability set a host's traffic source exposes
// (file transfer, video streaming), a Go sum-type-by-interface.
type Application interface {
	Ticker
	RegisterHost(h *Host)
	HasData() bool
	PeekSizeBytes() int
	GetPkt() (sizeBytes int, appData AppData)
	DeliverPkt(nowMs int64, pkt *Packet)
}

// Recorder is the capability set a stats recorder exposes to a host;
// satisfied by [StatsRecorder].
type Recorder interface {
	OnPktSent(nowMs int64, pkt *Packet)
	OnPktRcvd(nowMs int64, pkt *Packet)
	OnPktAcked(nowMs int64, pkt *Packet)
	OnPktLost(nowMs int64, pkt *Packet)
	OnPktNack(nowMs int64, pkt *Packet)
}

// HostProtocol is the per-transport receive/send delegate a host
// specialization (AuroraHost, TCPHost, RTPHost) implements. It stands
// in for the source's subclass-overridden `_on_pkt_rcvd` hooks.
type HostProtocol interface {
	// DataPacketKind is the wire kind used for freshly originated data
	// packets.
	DataPacketKind() PacketKind

	// OnPktRcvd handles every packet the host's rx link yields,
	// including generating any ACK/NACK/RTCP replies.
	OnPktRcvd(nowMs int64, pkt *Packet)

	// ExtraTick runs protocol-specific per-tick work beyond the common
	// app/cc/rtx/pacer/send/receive sequence (e.g. RTP's RTCP cadence).
	ExtraTick(nowMs int64)
}

// cwndLimiter is implemented by congestion controllers that gate
// sending on a window in addition to the pacer (currently [BBRv1]).
type cwndLimiter interface {
	CanSend() bool
}

// Host is the common per-endpoint state and tick loop shared by every
// transport specialization.
type Host struct {
	id int

	txLink *Link
	rxLink *Link

	cc      CongestionControl
	rtxMngr RtxManager
	app     Application
	pacer   *Pacer
	proto   HostProtocol

	recorder Recorder

	rtcpSender func(nowMs int64, estimatedRateBps float64)

	tsMs          int64
	pktCount      int
	pacingRateBps float64

	logger Logger
}

// NewHost constructs the common [Host] state. Callers must call
// RegisterProtocol once the specialization wrapping this Host exists,
// before the first Tick.
func NewHost(id int, cfg *SimConfig, txLink, rxLink *Link, cc CongestionControl, rtxMngr RtxManager, app Application, logger Logger) *Host {
	if logger == nil {
		logger = DiscardLogger()
	}
	h := &Host{
		id:      id,
		txLink:  txLink,
		rxLink:  rxLink,
		cc:      cc,
		rtxMngr: rtxMngr,
		app:     app,
		logger:  logger,
	}
	h.pacer = NewPacer(cfg, cc, logger)
	cc.RegisterHost(h)
	rtxMngr.RegisterHost(h)
	app.RegisterHost(h)
	return h
}

// RegisterProtocol binds the transport-specific receive/send delegate.
func (h *Host) RegisterProtocol(p HostProtocol) {
	h.proto = p
}

// RegisterRecorder attaches a [Recorder]; nil disables stats.
func (h *Host) RegisterRecorder(r Recorder) {
	h.recorder = r
}

// SetRTCPSender installs the callback GCC's delay-based controller
// invokes to trigger a REMB/RTCP report; only [RTPHost] sets this.
func (h *Host) SetRTCPSender(f func(nowMs int64, estimatedRateBps float64)) {
	h.rtcpSender = f
}

// SendRTCPReport asks the host to emit an RTCP report carrying the
// given estimated rate, a no-op on hosts that did not register one.
func (h *Host) SendRTCPReport(nowMs int64, estimatedRateBps float64) {
	if h.rtcpSender != nil {
		h.rtcpSender(nowMs, estimatedRateBps)
	}
}

// ID returns this host's endpoint id (0 = sender, 1 = receiver, by
// simulator convention).
func (h *Host) ID() int { return h.id }

// TsMs returns the host's current view of simulation time.
func (h *Host) TsMs() int64 { return h.tsMs }

// CC exposes the congestion controller, for protocol delegates that
// need to call it directly (e.g. RTP's on_pkt_rcvd/on_pkt_sent).
func (h *Host) CC() CongestionControl { return h.cc }

// RtxMngr exposes the retransmission manager.
func (h *Host) RtxMngr() RtxManager { return h.rtxMngr }

// Pacer exposes the host's pacer, used by [RateAllocator] to read
// back the sender's current budget.
func (h *Host) Pacer() *Pacer { return h.pacer }

// App exposes the application layer, for protocol delegates that
// deliver received packets to it directly.
func (h *Host) App() Application { return h.app }

// RecorderOrNil exposes the stats recorder, nil if none registered.
func (h *Host) RecorderOrNil() Recorder { return h.recorder }

// PacingRateBps is the last rate a congestion controller pushed via
// SetPacingRateBps, read back by that same controller's
// GetEstRateBps so the pull-based [Pacer] and the source's push-based
// rate-setting calls agree on one number.
func (h *Host) PacingRateBps() float64 { return h.pacingRateBps }

// SetPacingRateBps lets a congestion controller record its current
// target rate.
func (h *Host) SetPacingRateBps(rateBps float64) {
	h.pacingRateBps = rateBps
}

// NextPktID allocates the next packet id and advances the counter.
func (h *Host) NextPktID() int {
	id := h.pktCount
	h.pktCount++
	return id
}

// PushReply stamps send timestamps and pushes pkt directly onto the
// tx link, bypassing the pacer/cc/rtx bookkeeping a freshly originated
// data packet goes through — used for ACK/NACK/RTCP replies.
func (h *Host) PushReply(pkt *Packet) {
	pkt.TsSentMs = h.tsMs
	if pkt.TsFirstSentMs == 0 {
		pkt.TsFirstSentMs = h.tsMs
	}
	h.txLink.Push(pkt)
}

// Tick advances the host by one step: app/cc/rtx/pacer tick, then
// send, then receive, then any protocol-specific extra work.
func (h *Host) Tick(nowMs int64) {
	h.tsMs = nowMs
	h.app.Tick(nowMs)
	h.cc.Tick(nowMs)
	h.rtxMngr.Tick(nowMs)
	h.pacer.Tick(nowMs)
	h.send()
	h.receive()
	if h.proto != nil {
		h.proto.ExtraTick(nowMs)
	}
}

// Reset returns the host to its just-constructed state.
func (h *Host) Reset() {
	h.tsMs = 0
	h.pktCount = 0
	h.pacingRateBps = 0
	h.cc.Reset()
	h.rtxMngr.Reset()
	h.app.Reset()
	h.pacer.Reset()
}

func (h *Host) send() {
	for {
		rtxSize := h.rtxMngr.PeekPkt()
		fromRtx := rtxSize > 0
		size := rtxSize
		if !fromRtx {
			if !h.app.HasData() {
				return
			}
			size = h.app.PeekSizeBytes()
		}
		if !h.pacer.CanSend(size) {
			return
		}
		if limiter, ok := h.cc.(cwndLimiter); ok && !limiter.CanSend() {
			return
		}

		var pkt *Packet
		if fromRtx {
			pkt = h.rtxMngr.GetPkt()
		} else {
			sizeBytes, appData := h.app.GetPkt()
			pkt = NewPacket(h.proto.DataPacketKind(), sizeBytes)
			pkt.ID = h.NextPktID()
			pkt.AppData = appData
		}

		h.cc.OnPktToSend(pkt)
		pkt.TsSentMs = h.tsMs
		if pkt.TsFirstSentMs == 0 {
			pkt.TsFirstSentMs = h.tsMs
		}
		h.txLink.Push(pkt)
		h.cc.OnPktSent(pkt)
		h.rtxMngr.OnPktSent(pkt)
		h.pacer.OnPktSent(pkt)
		if h.recorder != nil {
			h.recorder.OnPktSent(h.tsMs, pkt)
		}
	}
}

func (h *Host) receive() {
	for {
		pkt := h.rxLink.Pull(h.tsMs)
		if pkt == nil {
			return
		}
		pkt.TsRcvdMs = h.tsMs
		h.proto.OnPktRcvd(h.tsMs, pkt)
	}
}
