package netsim

//
// Link + Queue (spec.md §4.2), grounded on
// _examples/original_source/src/simulator_new/link.py's Link class,
// rebuilt in the tick-driven idiom instead of the teacher's
// goroutine-and-ticker linkForward (see SPEC_FULL.md §4).
//

// lossNotifier receives loss notifications from a [Link]. Both
// CongestionControl and a host's recorder satisfy a subset of this by
// wrapping OnPktLost.
type lossNotifier interface {
	OnPktLost(pkt *Packet)
}

// linkQueueEntry is one packet sitting in the FIFO queue, still
// waiting for bandwidth budget to drain it.
type linkQueueEntry struct {
	pkt      *Packet
	tsSentMs int64
}

// Link models the bottleneck (or, with a trace that has no bandwidth
// breakpoints as built by [NewAckLink], an ACK return path that
// imposes only propagation delay). It is driven purely by
// Push/Tick/Pull calls from the [Simulator]; it never spawns a
// goroutine.
type Link struct {
	trace  *Trace
	loss   *lossSource
	notify lossNotifier
	logger Logger

	queueCapBytes int
	queueBytes    int
	queue         []linkQueueEntry

	budgetBytes     float64
	lastBudgetTsMs  int64

	ready []*Packet

	nowMs int64
}

// NewDataLink builds the sender→receiver link: bandwidth-limited,
// loss-capable, queuing.
func NewDataLink(trace *Trace, loss *lossSource, notify lossNotifier, logger Logger) *Link {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Link{
		trace:         trace,
		loss:          loss,
		notify:        notify,
		logger:        logger,
		queueCapBytes: trace.QueueSizePackets * MSS,
	}
}

// NewAckLink builds the receiver→sender feedback link: propagation
// delay only, no trace, no queue, no loss.
func NewAckLink(minDelayMs int64, logger Logger) *Link {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Link{
		trace:  &Trace{MinDelayMs: minDelayMs},
		logger: logger,
	}
}

// Reset returns the link to its just-constructed state.
func (l *Link) Reset() {
	l.queueBytes = 0
	l.queue = nil
	l.budgetBytes = 0
	l.lastBudgetTsMs = 0
	l.ready = nil
	l.nowMs = 0
}

// hasQueue reports whether this link models a trace-limited queue
// (the data link) as opposed to a pure propagation-delay path (the
// ACK link).
func (l *Link) hasQueue() bool {
	return l.trace != nil && len(l.trace.TimestampsSec) > 0
}

// Push enqueues pkt, per spec.md §4.2 step 1: random loss first, then
// queue-capacity check, then (absent a trace) direct placement into
// the ready set.
func (l *Link) Push(pkt *Packet) {
	if l.hasQueue() && l.loss != nil && l.loss.ShouldDrop(l.trace.LossRate) {
		l.logger.Debugf("link: random loss of pkt %d", pkt.ID)
		if l.notify != nil {
			l.notify.OnPktLost(pkt)
		}
		return
	}
	propDelayMs := l.trace.MinDelayMs
	if l.loss != nil && l.trace.DelayNoiseMs > 0 {
		propDelayMs += int64(l.loss.JitterMs(l.trace.DelayNoiseMs))
		if propDelayMs < 0 {
			propDelayMs = 0
		}
	}
	pkt.AddPropDelayMs(propDelayMs)
	if !l.hasQueue() {
		l.ready = append(l.ready, pkt)
		return
	}
	if l.queueBytes+pkt.SizeBytes > l.queueCapBytes {
		l.logger.Debugf("link: queue overflow, dropping pkt %d", pkt.ID)
		if l.notify != nil {
			l.notify.OnPktLost(pkt)
		}
		return
	}
	l.queueBytes += pkt.SizeBytes
	l.queue = append(l.queue, linkQueueEntry{pkt: pkt, tsSentMs: l.nowMs})
}

// Tick advances the link's budget and drains queued packets into the
// ready set per spec.md §4.2 step 2.
func (l *Link) Tick(nowMs int64) {
	l.nowMs = nowMs
	if !l.hasQueue() {
		return
	}
	from := l.lastBudgetTsMs
	if len(l.queue) > 0 && l.queue[0].tsSentMs > from {
		from = l.queue[0].tsSentMs
	}
	if nowMs > from {
		bits := l.trace.BitsAvailable(float64(from)/1000, float64(nowMs)/1000)
		l.budgetBytes += bits / BitsPerByte
	}
	l.lastBudgetTsMs = nowMs

	for len(l.queue) > 0 {
		head := l.queue[0]
		if l.budgetBytes < float64(head.pkt.SizeBytes) {
			break
		}
		l.budgetBytes -= float64(head.pkt.SizeBytes)
		head.pkt.AddQueueDelayMs(nowMs - head.tsSentMs)
		l.queueBytes -= head.pkt.SizeBytes
		l.queue = l.queue[1:]
		l.ready = append(l.ready, head.pkt)
	}
}

// Pull returns the next packet whose propagation has elapsed, or nil
// if none is yet visible, per spec.md §4.2 step 3.
func (l *Link) Pull(nowMs int64) *Packet {
	if len(l.ready) == 0 {
		return nil
	}
	head := l.ready[0]
	if nowMs < head.TsSentMs+head.PropDelayMs+head.QueueDelayMs {
		return nil
	}
	l.ready = l.ready[1:]
	return head
}

// QueueSizeBytes reports the current FIFO occupancy, used by tests
// asserting the queue-capacity invariant (spec.md §8).
func (l *Link) QueueSizeBytes() int {
	return l.queueBytes
}

// QueueCapBytes reports the configured queue capacity.
func (l *Link) QueueCapBytes() int {
	return l.queueCapBytes
}
