package netsim

//
// Pacer (spec.md §4.3), grounded on
// _examples/original_source/src/simulator_new/pacer.py.
//

// rateSource is whatever can answer "what rate should I pace at over
// this interval" — satisfied by [CongestionControl].
type rateSource interface {
	GetEstRateBps(nowMs, futureMs int64) float64
}

// Pacer is a leaky-bucket permit pool gating how much a host may send
// per tick. capacity is fixed at 2*MSS; it asks its [CongestionControl]
// for a fresh rate every PacingRateUpdateStepMs.
type Pacer struct {
	cfg    *SimConfig
	cc     rateSource
	logger Logger

	capacityBytes float64
	permitBytes   float64
	pacingRateBps float64

	lastTickMs       int64
	lastRateUpdateMs int64
}

// NewPacer constructs a [Pacer] bound to cc, which supplies the
// pacing rate.
func NewPacer(cfg *SimConfig, cc rateSource, logger Logger) *Pacer {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Pacer{
		cfg:           cfg,
		cc:            cc,
		logger:        logger,
		capacityBytes: float64(2 * cfg.MSS),
	}
}

// Reset returns the pacer to its just-constructed state.
func (p *Pacer) Reset() {
	p.permitBytes = 0
	p.pacingRateBps = 0
	p.lastTickMs = 0
	p.lastRateUpdateMs = 0
}

// CanSend reports whether n bytes currently fit the permit pool.
func (p *Pacer) CanSend(n int) bool {
	return p.permitBytes >= float64(n)
}

// OnPktSent debits the permit pool by the packet's size.
func (p *Pacer) OnPktSent(pkt *Packet) {
	p.permitBytes -= float64(pkt.SizeBytes)
	if p.permitBytes < 0 {
		p.permitBytes = 0
	}
}

// Tick refills the permit pool at the current pacing rate and, every
// PacingRateUpdateStepMs, re-queries the congestion controller.
func (p *Pacer) Tick(nowMs int64) {
	elapsedMs := nowMs - p.lastTickMs
	if elapsedMs > 0 {
		p.permitBytes += p.pacingRateBps * float64(elapsedMs) / 1000
		if p.permitBytes > p.capacityBytes {
			p.permitBytes = p.capacityBytes
		}
	}
	p.lastTickMs = nowMs

	step := p.cfg.PacingRateUpdateStepMs
	if nowMs-p.lastRateUpdateMs >= step {
		newRate := p.cc.GetEstRateBps(nowMs, nowMs+step)
		if newRate != p.pacingRateBps {
			p.logger.Debugf("pacer: rate %v -> %v Bps at t=%dms", p.pacingRateBps, newRate, nowMs)
		}
		p.pacingRateBps = newRate
		p.lastRateUpdateMs = nowMs
	}
}

// PacingRateBps returns the pacer's current rate, used by the
// [RateAllocator] to size the encoder's budget.
func (p *Pacer) PacingRateBps() float64 {
	return p.pacingRateBps
}
