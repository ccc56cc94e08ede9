package netsim

//
// TCPHost (spec.md §4.5), grounded on
// _examples/original_source/src/simulator_new/tcp_host.py. The
// source splits TCP connection state across a TCPHost mixin and a
// ConnectionState/RateSample pair; this port keeps that bookkeeping
// inside [BBRv1] itself (the only TCP-family controller implemented),
// so TCPHost reduces to the same ack-every-packet protocol as
// [AuroraHost] with a different wire kind, plus pushing the
// controller's smoothed RTO down to the retransmission manager.
//

const tcpAckSizeBytes = 80

// TCPHost wraps [Host] for BBR-style transport.
type TCPHost struct {
	*Host
	bbr *BBRv1
}

// NewTCPHost constructs a [TCPHost]. The sender side is expected to
// carry a [*BBRv1] controller (its smoothed RTO feeds the
// retransmission manager); the receiver side runs [NoCC] and has no
// RTO to report, so bbr is left nil there.
func NewTCPHost(id int, cfg *SimConfig, txLink, rxLink *Link, cc CongestionControl, rtxMngr RtxManager, app Application, logger Logger) *TCPHost {
	h := NewHost(id, cfg, txLink, rxLink, cc, rtxMngr, app, logger)
	bbr, _ := cc.(*BBRv1)
	th := &TCPHost{Host: h, bbr: bbr}
	h.RegisterProtocol(th)
	return th
}

func (th *TCPHost) DataPacketKind() PacketKind { return BBRDataPkt }

func (th *TCPHost) ExtraTick(nowMs int64) {}

func (th *TCPHost) OnPktRcvd(nowMs int64, pkt *Packet) {
	switch {
	case pkt.IsDataPkt():
		th.App().DeliverPkt(nowMs, pkt)
		if r := th.RecorderOrNil(); r != nil {
			r.OnPktRcvd(nowMs, pkt)
		}
		ack := NewPacket(AckPkt, tcpAckSizeBytes)
		ack.ID = pkt.ID
		ack.DataPktTsSentMs = pkt.TsSentMs
		ack.AckedSizeBytes = pkt.SizeBytes
		ack.DeliveredByte = pkt.DeliveredByte
		ack.DeliveredTimeMs = pkt.DeliveredTimeMs
		ack.IsAppLimited = pkt.IsAppLimited
		th.PushReply(ack)
	case pkt.IsAckPkt():
		th.CC().OnPktAcked(nowMs, pkt)
		th.RtxMngr().OnPktRcvd(nowMs, pkt)
		if tm, ok := th.RtxMngr().(*TCPRtxManager); ok && th.bbr != nil {
			tm.SetRTOMs(th.bbr.RTOMs())
		}
		if r := th.RecorderOrNil(); r != nil {
			r.OnPktAcked(nowMs, pkt)
		}
	}
}
