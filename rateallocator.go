package netsim

//
// Rate allocator (spec.md §4.11): keeps new encode bytes from
// starving retransmissions and packets still queued inside the
// encoder, by handing the encoder only the residual of the pacer's
// per-step budget.
//

// RateAllocator computes the video encoder's target bitrate from the
// pacer's budget for the next step, minus pending retransmission and
// encoder-queue bytes.
type RateAllocator struct {
	cfg     *SimConfig
	pacer   *Pacer
	rtxMngr RtxManager
}

// NewRateAllocator constructs a [RateAllocator] bound to the sending
// host's pacer and retransmission manager.
func NewRateAllocator(cfg *SimConfig, pacer *Pacer, rtxMngr RtxManager) *RateAllocator {
	return &RateAllocator{cfg: cfg, pacer: pacer, rtxMngr: rtxMngr}
}

// TargetEncodeBitrateBps returns the bitrate the encoder should
// target for its next frame, given queuedBytes still sitting in the
// encoder's own packet queue.
func (r *RateAllocator) TargetEncodeBitrateBps(queuedBytes int) float64 {
	stepSec := float64(r.cfg.PacingRateUpdateStepMs) / 1000
	budgetBytes := r.pacer.PacingRateBps() * stepSec

	residual := budgetBytes - float64(r.rtxMngr.PendingBytes()) - float64(queuedBytes)
	if residual < 0 {
		residual = 0
	}
	return residual * fps
}
