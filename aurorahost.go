package netsim

//
// AuroraHost (spec.md §4.5), grounded on
// _examples/original_source/src/simulator_new/aurora_host.py: acks
// every DATA packet immediately, no NACK/RTCP machinery.
//

const auroraAckSizeBytes = 80

// AuroraHost wraps [Host] with the plain stop-and-wait-free ACK
// protocol Aurora and file transfer use.
type AuroraHost struct {
	*Host
}

// NewAuroraHost constructs an [AuroraHost] and wires it into the
// shared [Host] as its receive delegate.
func NewAuroraHost(id int, cfg *SimConfig, txLink, rxLink *Link, cc CongestionControl, rtxMngr RtxManager, app Application, logger Logger) *AuroraHost {
	h := NewHost(id, cfg, txLink, rxLink, cc, rtxMngr, app, logger)
	ah := &AuroraHost{Host: h}
	h.RegisterProtocol(ah)
	return ah
}

func (ah *AuroraHost) DataPacketKind() PacketKind { return DataPkt }

func (ah *AuroraHost) ExtraTick(nowMs int64) {}

func (ah *AuroraHost) OnPktRcvd(nowMs int64, pkt *Packet) {
	switch {
	case pkt.IsDataPkt():
		ah.App().DeliverPkt(nowMs, pkt)
		if r := ah.RecorderOrNil(); r != nil {
			r.OnPktRcvd(nowMs, pkt)
		}
		ack := NewPacket(AckPkt, auroraAckSizeBytes)
		ack.ID = pkt.ID
		ack.DataPktTsSentMs = pkt.TsSentMs
		ack.AckedSizeBytes = pkt.SizeBytes
		ah.PushReply(ack)
	case pkt.IsAckPkt():
		ah.CC().OnPktAcked(nowMs, pkt)
		ah.RtxMngr().OnPktRcvd(nowMs, pkt)
		if r := ah.RecorderOrNil(); r != nil {
			r.OnPktAcked(nowMs, pkt)
		}
	}
}
