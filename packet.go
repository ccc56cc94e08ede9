package netsim

//
// Packet envelope (spec.md §3 "Packet")
//

// PacketKind identifies the kind of a [Packet].
type PacketKind int

const (
	// DataPkt is a plain data-carrying packet (file transfer / Aurora host).
	DataPkt PacketKind = iota

	// AckPkt acknowledges a previously-received DataPkt/TCPDataPkt/BBRDataPkt.
	AckPkt

	// RTPPkt carries a video payload over the RTP host.
	RTPPkt

	// RTCPPkt carries receiver feedback (loss fraction, OWD, REMB, probe info).
	RTCPPkt

	// NACKPkt names a single missing RTP sequence number.
	NACKPkt

	// BBRDataPkt is a data packet carrying BBR/TCP delivery-rate metadata.
	BBRDataPkt

	// TCPDataPkt is an alias kind kept distinct from BBRDataPkt for stats
	// purposes, even though BBRv1 is the only TCP congestion controller
	// implemented here (spec.md lists them as separate wire kinds).
	TCPDataPkt
)

// String renders the [PacketKind] the way the stats recorder's CSV
// columns expect ("lost"/"arrived" are synthesized separately by
// [StatsRecorder], not by this method).
func (k PacketKind) String() string {
	switch k {
	case DataPkt:
		return "data"
	case AckPkt:
		return "ack"
	case RTPPkt:
		return "rtp"
	case RTCPPkt:
		return "rtcp"
	case NACKPkt:
		return "nack"
	case BBRDataPkt:
		return "bbr-data"
	case TCPDataPkt:
		return "tcp-data"
	default:
		return "unknown"
	}
}

// ProbeInfo is the probe-cluster telemetry an RTP host attaches to an
// RTCP report once the cluster has accumulated enough packets
// (spec.md §4.5 RTP host, §4.8 probe controller).
type ProbeInfo struct {
	ProbeClusterID      int
	NumProbePkts        int
	TotSizeByte         int64
	FirstPktSentTsMs    int64
	LastPktSentTsMs     int64
	FirstPktRcvdTsMs    int64
	LastPktRcvdTsMs     int64
	LastPktSentSizeByte int64
	FirstPktRcvdSizeByte int64
	ProbeRateBps        float64
}

// Empty reports whether this is the zero value, i.e. no probe cluster
// was attached to the report carrying it.
func (p *ProbeInfo) Empty() bool {
	return p == nil || p.NumProbePkts == 0
}

// AppData is the application-layer metadata the source attaches to a
// packet as a free-form dict; here it is a typed struct, the
// idiomatic Go shape for app_data's small closed set of keys (spec.md
// §9 Design Notes).
type AppData struct {
	// FrameID is set on video packets.
	FrameID int

	// FrameSizeBytes is the full encoded size of the frame this packet
	// belongs to.
	FrameSizeBytes int

	// ModelID is the auto-encoder model id that produced this frame.
	ModelID int

	// Padding marks a packet as spare-budget filler, not video payload.
	Padding bool

	// Probe marks this packet as belonging to a GCC probe cluster.
	Probe bool

	// ProbeClusterID identifies which probe cluster this packet belongs to.
	ProbeClusterID int
}

// Packet is the uniform envelope carrying every kind of traffic in the
// simulator (spec.md §3). Algorithm-specific fields that only apply
// to some kinds are zero-valued on packets of other kinds.
type Packet struct {
	// ID is assigned by the sender when the packet is first sent (not
	// reassigned on retransmission).
	ID int

	// Kind identifies the wire format of this packet.
	Kind PacketKind

	// SizeBytes is the size on the wire.
	SizeBytes int

	// PropDelayMs accumulates propagation delay as the packet crosses
	// links.
	PropDelayMs int64

	// QueueDelayMs accumulates queuing delay inside a [Link].
	QueueDelayMs int64

	// TsSentMs is the timestamp of the most recent send (updated on
	// every retransmission).
	TsSentMs int64

	// TsFirstSentMs is the timestamp of the very first send.
	TsFirstSentMs int64

	// TsRcvdMs is the timestamp at which the receiver observed this
	// packet.
	TsRcvdMs int64

	// TsPrevPktSentMs/TsPrevPktRcvdMs let the RTP host compute RFC 3550
	// style jitter without a side channel.
	TsPrevPktSentMs int64
	TsPrevPktRcvdMs int64

	// AppData is the application-layer payload metadata.
	AppData AppData

	// --- BBR/TCP extension (spec.md §3, §4.7) ---

	DeliveredByte   int64
	DeliveredTimeMs int64
	IsAppLimited    bool

	// --- ACK extension ---

	AckedSizeBytes  int
	DataPktTsSentMs int64

	// --- RTP/RTCP extension (spec.md §4.5, §4.8) ---

	EstimatedRateBps float64
	LossFraction     float64
	OWDMs            float64
	ThroughputBps    float64
	JitterMs         float64
	ProbeInfo        *ProbeInfo
	PacingRateBps    float64
}

// NewPacket constructs a [Packet] of the given kind and size. The
// caller is responsible for assigning ID and timestamps at send time.
func NewPacket(kind PacketKind, sizeBytes int) *Packet {
	return &Packet{Kind: kind, SizeBytes: sizeBytes}
}

// Clone returns a value copy of the packet, used when a packet is
// buffered for possible retransmission: the buffered copy and the
// in-flight one must not alias (spec.md §3 "Packets have value
// semantics").
func (p *Packet) Clone() *Packet {
	cp := *p
	if p.ProbeInfo != nil {
		pi := *p.ProbeInfo
		cp.ProbeInfo = &pi
	}
	return &cp
}

// AddPropDelayMs adds to the accumulated propagation delay.
func (p *Packet) AddPropDelayMs(delayMs int64) {
	p.PropDelayMs += delayMs
}

// AddQueueDelayMs adds to the accumulated queuing delay.
func (p *Packet) AddQueueDelayMs(delayMs int64) {
	p.QueueDelayMs += delayMs
}

// CurDelayMs is the sum of propagation and queuing delay accrued so
// far.
func (p *Packet) CurDelayMs() int64 {
	return p.PropDelayMs + p.QueueDelayMs
}

// DelayMs is the one-way delay observed once the packet has arrived:
// the time from the most recent send (TsSentMs) to receipt.
func (p *Packet) DelayMs() int64 {
	if p.TsRcvdMs == 0 {
		return 0
	}
	return p.TsRcvdMs - p.TsSentMs
}

// RTTMs is valid on an ACK packet: the round trip from the data
// packet's send time to the ACK's receipt.
func (p *Packet) RTTMs() int64 {
	if p.TsRcvdMs == 0 {
		return 0
	}
	return p.TsRcvdMs - p.DataPktTsSentMs
}

// IsDataPkt reports whether this packet carries payload in the plain
// (non-RTP) transport.
func (p *Packet) IsDataPkt() bool {
	return p.Kind == DataPkt || p.Kind == BBRDataPkt || p.Kind == TCPDataPkt
}

// IsAckPkt reports whether this is an acknowledgement.
func (p *Packet) IsAckPkt() bool {
	return p.Kind == AckPkt
}

// IsRTPPkt reports whether this packet is an RTP data packet.
func (p *Packet) IsRTPPkt() bool {
	return p.Kind == RTPPkt
}

// IsRTCPPkt reports whether this packet is an RTCP feedback report.
func (p *Packet) IsRTCPPkt() bool {
	return p.Kind == RTCPPkt
}

// IsNackPkt reports whether this packet names a missing RTP sequence
// number.
func (p *Packet) IsNackPkt() bool {
	return p.Kind == NACKPkt
}
